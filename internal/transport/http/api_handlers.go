package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lobbychat/internal/auth"
	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/proto"
	"github.com/vovakirdan/lobbychat/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	authService  *auth.Service
	hub          core.Hub
	store        core.Store
	historyLimit int
	log          *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, hub core.Hub, st core.Store, historyLimit int, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService:  authService,
		hub:          hub,
		store:        st,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// SessionRequest represents the session request body.
type SessionRequest struct {
	Username string `json:"username" binding:"required"`
	Secret   string `json:"secret"`
}

// SessionResponse carries a signed session token.
type SessionResponse struct {
	Token       string `json:"token"`
	DisplayName string `json:"displayName"`
}

// MessagesResponse lists recent room messages, oldest first.
type MessagesResponse struct {
	Messages []proto.HistoryMessage `json:"messages"`
}

// OnlineResponse reports current presence.
type OnlineResponse struct {
	TotalIdentities int      `json:"totalIdentities"`
	Identities      []string `json:"identities"`
	Connections     int      `json:"connections"`
}

// ProfileResponse describes the caller's stored user.
type ProfileResponse struct {
	ID           int64  `json:"id"`
	DisplayName  string `json:"displayName"`
	MessageCount int64  `json:"messageCount"`
	CreatedAt    string `json:"createdAt"`
	LastSeen     string `json:"lastSeen"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateSession resolves a name and optional secret to a display label and token.
// POST /api/session
func (h *APIHandlers) CreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid session request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, id, err := h.authService.IssueToken(c.Request.Context(), req.Username, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidUsername) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid username"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to create session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("identity", id.DisplayName).Int64("user_id", id.UserID).Msg("session issued")
	c.JSON(http.StatusOK, SessionResponse{Token: token, DisplayName: id.DisplayName})
}

// RecentMessages returns persisted room history with read receipts.
// GET /api/messages?limit=N
func (h *APIHandlers) RecentMessages(c *gin.Context) {
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}
	limit = max(1, min(limit, h.historyLimit))

	ctx := c.Request.Context()
	records, err := h.store.RecentMessages(ctx, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	receipts := map[int64][]string{}
	if len(ids) > 0 {
		if receipts, err = h.store.ListReceipts(ctx, ids); err != nil {
			h.log.Warn().Err(err).Msg("failed to load read receipts")
			receipts = map[int64][]string{}
		}
	}

	out := make([]proto.HistoryMessage, 0, len(records))
	for _, rec := range records {
		readBy := receipts[rec.ID]
		if readBy == nil {
			readBy = []string{}
		}
		out = append(out, proto.HistoryMessage{
			ID:        rec.ID,
			Identity:  rec.Author,
			Body:      rec.Body,
			Timestamp: proto.FormatTime(rec.CreatedAt),
			ReadBy:    readBy,
		})
	}

	c.JSON(http.StatusOK, MessagesResponse{Messages: out})
}

// Online reports identities currently connected.
// GET /api/online
func (h *APIHandlers) Online(c *gin.Context) {
	snap, err := h.hub.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("presence snapshot failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "chat unavailable"})
		return
	}
	identities := snap.Identities
	if identities == nil {
		identities = []string{}
	}
	c.JSON(http.StatusOK, OnlineResponse{
		TotalIdentities: len(identities),
		Identities:      identities,
		Connections:     snap.Connections,
	})
}

// Me returns the profile of the token holder.
// GET /api/me
func (h *APIHandlers) Me(c *gin.Context) {
	userID := c.GetInt64(ContextKeyUserID)

	user, err := h.authService.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load profile")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		MessageCount: user.MessageCount,
		CreatedAt:    proto.FormatTime(user.CreatedAt),
		LastSeen:     proto.FormatTime(user.LastSeen),
	})
}
