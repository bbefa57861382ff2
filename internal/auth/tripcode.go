package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// tripcodeLen is the number of hex characters kept from the derived key.
const tripcodeLen = 8

// Tripcode derives a short stable code from secret so the same name can be
// claimed by different people without impersonation. Empty secret yields "".
func Tripcode(secret, salt string) string {
	if secret == "" {
		return ""
	}
	key := argon2.IDKey([]byte(secret), []byte(salt), 1, 16*1024, 1, tripcodeLen/2)
	return hex.EncodeToString(key)
}

// DisplayName renders the public label for a user.
func DisplayName(username, tripcode string) string {
	if tripcode == "" {
		return username
	}
	return username + "!" + tripcode
}
