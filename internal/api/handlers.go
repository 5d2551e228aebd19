package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"regime-engine/internal/engine"
	"regime-engine/internal/service"
	"regime-engine/internal/store"
)

func lastPrice(session *engine.Session) float64 {
	if len(session.Snapshots) == 0 {
		return 0
	}
	return session.Snapshots[len(session.Snapshots)-1].Price
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.svc.List(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list sessions")
		errorResponse(c, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	// List view carries summaries, not full histories
	summaries := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, gin.H{
			"id":           session.ID,
			"symbol":       session.Symbol,
			"interval":     session.Interval,
			"state":        session.State,
			"total_return": session.Metrics.TotalReturn,
			"max_drawdown": session.Metrics.MaxDrawdown,
			"trade_count":  session.Portfolio.TradeCount,
			"created_at":   session.CreatedAt,
			"updated_at":   session.UpdatedAt,
		})
	}
	successResponse(c, summaries)
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	successResponse(c, session)
}

func (s *Server) handleGetTrades(c *gin.Context) {
	session, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	successResponse(c, session.Trades)
}

func (s *Server) handleGetSnapshots(c *gin.Context) {
	session, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	successResponse(c, session.Snapshots)
}

func (s *Server) handleGetBreaker(c *gin.Context) {
	session, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	successResponse(c, gin.H{
		"state":            session.BreakerState,
		"reason":           session.BreakerReason,
		"rolling_win_rate": session.Metrics.RollingWinRate,
		"rolling_sample":   session.Metrics.RollingSample,
		"max_drawdown":     session.Metrics.MaxDrawdown,
	})
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req service.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	session, err := s.svc.RunBacktest(c.Request.Context(), req)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("backtest failed")
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	successResponse(c, gin.H{
		"session_id":   session.ID,
		"state":        session.State,
		"trade_count":  session.Portfolio.TradeCount,
		"win_rate":     session.WinRate(),
		"final_value":  session.Portfolio.TotalValue(lastPrice(session)),
		"total_return": session.Metrics.TotalReturn,
		"max_drawdown": session.Metrics.MaxDrawdown,
		"sharpe":       session.Metrics.Sharpe,
	})
}

func (s *Server) handleAdvance(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			errorResponse(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	session, err := s.svc.Advance(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			errorResponse(c, http.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrLocked):
			errorResponse(c, http.StatusConflict, "update already in progress")
		default:
			s.log.Error().Err(err).Str("session_id", c.Param("id")).Msg("advance failed")
			errorResponse(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	successResponse(c, gin.H{
		"session_id":  session.ID,
		"state":       session.State,
		"next_bar":    session.NextBar,
		"trade_count": session.Portfolio.TradeCount,
	})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondStoreError(c, err)
		return
	}
	successResponse(c, gin.H{"deleted": c.Param("id")})
}

func (s *Server) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "session not found")
		return
	}
	s.log.Error().Err(err).Msg("store error")
	errorResponse(c, http.StatusInternalServerError, "internal error")
}
