package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_registrations_total",
		Help: "Accounts created through registration",
	})

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"result"},
	)

	lockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts locked after too many failed logins",
	})

	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Refresh token exchanges by outcome",
		},
		[]string{"result"},
	)

	passwordChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_password_changes_total",
			Help: "Successful password changes by flow",
		},
		[]string{"flow"},
	)

	sweptTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_tokens_swept_total",
		Help: "Expired refresh tokens removed by cleanup",
	})

	mailTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_messages_total",
			Help: "Outgoing mail by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	mailBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mail_circuit_breaker_state",
		Help: "State of the SMTP circuit breaker (0=closed, 1=half-open, 2=open)",
	})
)

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
