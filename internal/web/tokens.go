package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solana-migration-sniper/internal/domain"
)

type tokenView struct {
	Address       string    `json:"address"`
	Name          string    `json:"name,omitempty"`
	Symbol        string    `json:"symbol,omitempty"`
	Platform      string    `json:"platform"`
	MigrationPct  float64   `json:"migration_pct"`
	State         string    `json:"state"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

func (s *Server) listTokens(c *gin.Context) {
	state := domain.LifecycleState(c.DefaultQuery("state", string(domain.LifecycleTracking)))
	switch state {
	case domain.LifecycleTracking, domain.LifecycleThresholdCrossed, domain.LifecycleClosed:
	default:
		fail(c, http.StatusBadRequest, "unknown lifecycle state")
		return
	}

	tokens, err := s.tokens.ListByState(c.Request.Context(), state)
	if err != nil {
		s.log.Error().Err(err).Str("state", string(state)).Msg("list tokens")
		fail(c, http.StatusInternalServerError, "storage error")
		return
	}

	views := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, tokenView{
			Address:       t.Address,
			Name:          t.Name,
			Symbol:        t.Symbol,
			Platform:      string(t.Platform),
			MigrationPct:  t.MigrationPercentage,
			State:         string(t.LifecycleState),
			DiscoveredAt:  t.DiscoveredAt,
			LastCheckedAt: t.LastCheckedAt,
		})
	}
	ok(c, views)
}
