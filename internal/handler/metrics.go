package handler

import (
	"context"
	"time"

	"login-server/internal/interfaces"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterSessionsGauge exposes the live session count as a gauge. Call
// once at startup; the value is read from Redis on every scrape and
// reports -1 when the count cannot be fetched.
func RegisterSessionsGauge(sessions interfaces.SessionRepository) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "login_active_sessions",
		Help: "Number of live login sessions.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		count, err := sessions.CountSessions(ctx)
		if err != nil {
			return -1
		}
		return float64(count)
	})
}
