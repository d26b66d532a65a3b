// Package metrics declares the Prometheus collectors exported by the
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for the counters below.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// Logins counts login attempts by outcome.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	// TokenRefreshes counts refresh token redemptions by outcome.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_token_refreshes_total",
		Help: "Refresh token redemptions by result.",
	}, []string{"result"})

	// TokensSwept counts session records removed by the cleanup sweep.
	TokensSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authd_tokens_swept_total",
		Help: "Expired or revoked session records removed by the cleanup sweep.",
	})
)
