package handler

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"login-server/internal/interfaces"
	"login-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint.
const Version = "1.0.0"

// StatusHandler serves the operational HTTP API: the public status page
// and the admin session endpoints.
type StatusHandler struct {
	auth        service.AuthService
	accounts    interfaces.AccountRepository
	sessions    interfaces.SessionRepository
	auctions    interfaces.AuctionRepository
	adminSecret string
	startedAt   time.Time
	logger      *zap.Logger
}

func NewStatusHandler(
	auth service.AuthService,
	accounts interfaces.AccountRepository,
	sessions interfaces.SessionRepository,
	auctions interfaces.AuctionRepository,
	adminSecret string,
	startedAt time.Time,
	logger *zap.Logger,
) *StatusHandler {
	return &StatusHandler{
		auth:        auth,
		accounts:    accounts,
		sessions:    sessions,
		auctions:    auctions,
		adminSecret: adminSecret,
		startedAt:   startedAt,
		logger:      logger.Named("StatusHandler"),
	}
}

func (h *StatusHandler) RegisterRoutes(router *gin.Engine) {
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	router.GET("/status", h.getStatus)

	adminGroup := router.Group("/admin")
	adminGroup.Use(h.adminAuthMiddleware())
	{
		adminGroup.GET("/sessions", h.listSessions)
		adminGroup.DELETE("/accounts/:account_id/sessions", h.kickAccount)
	}
}

// adminAuthMiddleware guards the admin group with a shared secret
// header. The compare is constant time.
func (h *StatusHandler) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Admin-Secret")
		if h.adminSecret == "" ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminSecret)) != 1 {
			h.logger.Warn("Rejected admin request", zap.String("ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *StatusHandler) getStatus(c *gin.Context) {
	ctx := c.Request.Context()

	accountCount, err := h.accounts.GetAccountCount(ctx)
	if err != nil {
		h.logger.Error("Failed to count accounts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	sessionCount, err := h.sessions.CountSessions(ctx)
	if err != nil {
		h.logger.Error("Failed to count sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	openListings, err := h.auctions.CountOpen(ctx)
	if err != nil {
		h.logger.Error("Failed to count open auctions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	uptime := time.Since(h.startedAt)
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"version":             Version,
		"uptime":              uptime.Round(time.Second).String(),
		"uptime_seconds":      int64(uptime.Seconds()),
		"accounts":            accountCount,
		"active_sessions":     sessionCount,
		"open_auction_listings": openListings,
	})
}

func (h *StatusHandler) listSessions(c *gin.Context) {
	sessions, err := h.sessions.ListSessions(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// The handoff token never leaves the server.
	type sessionView struct {
		ID        string    `json:"id"`
		AccountID uint32    `json:"account_id"`
		Username  string    `json:"username"`
		ClientIP  string    `json:"client_ip,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID.String(),
			AccountID: s.AccountID,
			Username:  s.Username,
			ClientIP:  s.ClientIP,
			CreatedAt: s.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"count": len(views), "sessions": views})
}

func (h *StatusHandler) kickAccount(c *gin.Context) {
	accountID, err := strconv.ParseUint(c.Param("account_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	kicked, err := h.auth.KickAccount(c.Request.Context(), uint32(accountID))
	if err != nil {
		h.logger.Error("Failed to kick account", zap.Uint64("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.logger.Info("Account sessions kicked via admin API",
		zap.Uint64("account_id", accountID),
		zap.Int64("sessions_removed", kicked))
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "sessions_removed": kicked})
}
