package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_requests_total",
			Help: "Total number of login protocol requests by op and result.",
		},
		[]string{"op", "result"},
	)

	rejectedConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_rejected_connections_total",
			Help: "Total number of TCP connections rejected before the handshake.",
		},
		[]string{"reason"},
	)
)
