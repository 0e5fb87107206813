// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tesoro"

// Hold outcomes.
const (
	HoldCreated   = "created"
	HoldRenewed   = "renewed"
	HoldConflict  = "conflict"
	HoldExhausted = "exhausted"
)

var ReservationHolds = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reservation",
	Name:      "holds_total",
	Help:      "Hold attempts on budget lines by outcome.",
}, []string{"outcome"})

var ReservationsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reservation",
	Name:      "confirmed_total",
	Help:      "Reservations confirmed into a request.",
})

var ReservationsReleased = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reservation",
	Name:      "released_total",
	Help:      "Held reservations released by their holder.",
})

var SweptReservations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweeper",
	Name:      "released_total",
	Help:      "Expired held reservations deleted by the sweeper.",
})

var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweeper",
	Name:      "runs_total",
	Help:      "Sweeper runs by result.",
}, []string{"result"})

var RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "request",
	Name:      "transitions_total",
	Help:      "Request lifecycle operations that committed, by operation.",
}, []string{"operation"})

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})
