package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

type createUserRequest struct {
	Username       string `json:"username" binding:"required"`
	WalletRef      string `json:"wallet_ref" binding:"required"`
	TelegramChatID int64  `json:"telegram_chat_id"`
	Language       string `json:"language"`
}

type userView struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	WalletRef      string    `json:"wallet_ref"`
	Active         bool      `json:"active"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	Language       string    `json:"language,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toUserView(u *domain.UserAccount) userView {
	return userView{
		UserID:         u.UserID,
		Username:       u.Username,
		WalletRef:      u.WalletRef,
		Active:         u.Active,
		TelegramChatID: u.TelegramChatID,
		Language:       u.Language,
		CreatedAt:      u.CreatedAt,
	}
}

// createUser registers an account. New accounts start inactive; activation
// is a separate, deliberate step because it opts the wallet into every
// future buy fan-out.
func (s *Server) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	u := &domain.UserAccount{
		UserID:         uuid.NewString(),
		Username:       req.Username,
		WalletRef:      req.WalletRef,
		TelegramChatID: req.TelegramChatID,
		Language:       req.Language,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.users.Insert(c.Request.Context(), u); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			fail(c, http.StatusConflict, "username already exists")
			return
		}
		s.log.Error().Err(err).Str("username", req.Username).Msg("create user")
		fail(c, http.StatusInternalServerError, "storage error")
		return
	}

	created(c, toUserView(u))
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.users.ListAll(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list users")
		fail(c, http.StatusInternalServerError, "storage error")
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	ok(c, views)
}

func (s *Server) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		err := s.users.SetActive(c.Request.Context(), id, active)
		if errors.Is(err, storage.ErrNotFound) {
			fail(c, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			s.log.Error().Err(err).Str("user_id", id).Msg("set active")
			fail(c, http.StatusInternalServerError, "storage error")
			return
		}
		ok(c, gin.H{"user_id": id, "active": active})
	}
}
