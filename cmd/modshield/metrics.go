package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modshield_events_received",
	Help: "Number of webhook events received",
}, []string{"type"})

var eventsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modshield_events_failed",
	Help: "Number of webhook events which could not be processed",
})
