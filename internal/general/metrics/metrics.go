package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "dispatch_runs_total",
		Help: "Dispatch coordinator runs started"})
	DispatchOffersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "dispatch_offers_total",
		Help: "Ride offers pushed to drivers"})
	DispatchMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "dispatch_matches_total",
		Help: "Rides accepted by a driver"})
	DispatchNotApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "dispatch_not_approved_total",
		Help: "Rides that exhausted the dispatch deadline"})
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch", Name: "dispatch_duration_seconds",
		Help:    "Time from dispatch start to terminal outcome",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11)})

	SweepClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "sweep_claims_total",
		Help: "Orphaned rides claimed by the reconciliation sweep"})

	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ride_dispatch", Name: "drivers_online",
		Help: "Drivers with a live WebSocket connection"})
	PassengersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ride_dispatch", Name: "passengers_online",
		Help: "Passengers with a live WebSocket connection"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ride_dispatch", Name: "http_requests_total",
			Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
)
