package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/lobbychat/internal/store"
)

// maxUsernameLen bounds the name part of a display label, in runes.
const maxUsernameLen = 50

var (
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidToken is returned when a session token fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is a resolved chat identity.
type Identity struct {
	UserID      int64
	DisplayName string
}

// Service resolves chat identities and issues session tokens.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
	salt      string
	now       func() time.Time
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig, tripcodeSalt string) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
		salt:      tripcodeSalt,
		now:       time.Now,
	}
}

// ResolveIdentity validates username, derives the tripcode from secret and
// returns the persisted user for that pair.
func (s *Service) ResolveIdentity(ctx context.Context, username, secret string) (Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLen || strings.Contains(username, "!") {
		return Identity{}, ErrInvalidUsername
	}

	trip := Tripcode(secret, s.salt)
	display := DisplayName(username, trip)

	user, err := s.store.CreateOrGetUser(ctx, username, trip, display)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve user: %w", err)
	}
	return Identity{UserID: user.ID, DisplayName: user.DisplayName}, nil
}

// IssueToken resolves the identity and signs a session token for it.
func (s *Service) IssueToken(ctx context.Context, username, secret string) (string, Identity, error) {
	id, err := s.ResolveIdentity(ctx, username, secret)
	if err != nil {
		return "", Identity{}, err
	}
	token, err := GenerateToken(s.jwtConfig, id.UserID, id.DisplayName, s.now())
	if err != nil {
		return "", Identity{}, fmt.Errorf("generate token: %w", err)
	}
	return token, id, nil
}

// ValidateToken validates a JWT token and returns the identity it carries.
func (s *Service) ValidateToken(tokenString string) (Identity, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}, nil
}

// Profile returns the stored user behind a validated identity.
func (s *Service) Profile(ctx context.Context, userID int64) (*store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}
