package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
)

type positionView struct {
	UserID        string    `json:"user_id"`
	TokenAddress  string    `json:"token_address"`
	CycleID       int64     `json:"cycle_id"`
	State         string    `json:"state"`
	PurchasePrice string    `json:"purchase_price,omitempty"`
	TokenAmount   string    `json:"token_amount,omitempty"`
	SellPrice     string    `json:"sell_price,omitempty"`
	ProfitPct     string    `json:"profit_pct,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toPositionView(p *domain.PositionRecord) positionView {
	v := positionView{
		UserID:       p.UserID,
		TokenAddress: p.TokenAddress,
		CycleID:      p.CycleID,
		State:        string(p.State),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if !p.PurchasePrice.IsZero() {
		v.PurchasePrice = p.PurchasePrice.String()
		v.TokenAmount = p.TokenAmount.String()
	}
	if p.State == domain.PositionSold {
		v.SellPrice = p.SellPrice.String()
		v.ProfitPct = p.ProfitPercentage.Round(2).String()
	}
	return v
}

func (s *Server) listUserPositions(c *gin.Context) {
	positions, err := s.positions.ListByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.log.Error().Err(err).Str("user_id", c.Param("id")).Msg("list positions")
		fail(c, http.StatusInternalServerError, "storage error")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	ok(c, views)
}

type userStatsView struct {
	Total          int    `json:"total"`
	Sold           int    `json:"sold"`
	Failed         int    `json:"failed"`
	Open           int    `json:"open"`
	Profitable     int    `json:"profitable"`
	TotalProfitPct string `json:"total_profit_pct"`
}

// userStats aggregates a user's trading record from the position ledger.
func (s *Server) userStats(c *gin.Context) {
	positions, err := s.positions.ListByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.log.Error().Err(err).Str("user_id", c.Param("id")).Msg("user stats")
		fail(c, http.StatusInternalServerError, "storage error")
		return
	}

	var stats userStatsView
	totalProfit := decimal.Zero
	for _, p := range positions {
		stats.Total++
		switch p.State {
		case domain.PositionSold:
			stats.Sold++
			totalProfit = totalProfit.Add(p.ProfitPercentage)
			if p.ProfitPercentage.IsPositive() {
				stats.Profitable++
			}
		case domain.PositionFailed:
			stats.Failed++
		default:
			stats.Open++
		}
	}
	stats.TotalProfitPct = totalProfit.Round(2).String()
	ok(c, stats)
}

// listStalePositions is the manual-review surface: non-terminal positions
// with no recent progress, PENDING ones with an indeterminate buy first
// among them.
func (s *Server) listStalePositions(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "10"))
	if err != nil || minutes < 0 {
		fail(c, http.StatusBadRequest, "minutes must be a non-negative integer")
		return
	}
	cutoff := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)

	states := []domain.PositionState{
		domain.PositionPending,
		domain.PositionBought,
		domain.PositionSellScheduled,
	}
	if q := c.Query("state"); q != "" {
		states = []domain.PositionState{domain.PositionState(q)}
	}

	views := make([]positionView, 0)
	for _, state := range states {
		stale, err := s.positions.ListStale(c.Request.Context(), state, cutoff)
		if err != nil {
			s.log.Error().Err(err).Str("state", string(state)).Msg("list stale positions")
			fail(c, http.StatusInternalServerError, "storage error")
			return
		}
		for _, p := range stale {
			views = append(views, toPositionView(p))
		}
	}
	ok(c, views)
}
