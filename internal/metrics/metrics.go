// Package metrics exposes the service counters on the default Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PastesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebox_pastes_created_total",
		Help: "no. of pastes created",
	})
	PastesViewed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebox_pastes_viewed_total",
		Help: "no. of successful paste views",
	})
	PasteDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastebox_paste_password_denials_total",
			Help: "no. of gated views refused",
		},
		[]string{"reason"},
	)
	PastesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastebox_pastes_deleted_total",
			Help: "no. of pastes deleted",
		},
		[]string{"cause"},
	)
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebox_sweep_cycles_total",
		Help: "no. of expiry sweeper runs",
	})
	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebox_registrations_total",
		Help: "no. of accounts created",
	})
	LoginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebox_login_failures_total",
		Help: "no. of rejected logins",
	})
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastebox_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"method"},
	)
)

// Deletion causes.
const (
	CauseOwner = "owner"
	CauseLazy  = "lazy_expiry"
	CauseSweep = "sweep"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
