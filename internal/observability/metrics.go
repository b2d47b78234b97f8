package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "flows_total", Help: "Completed dispatch flows by outcome"},
		[]string{"outcome"},
	)
	OffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "offers_total", Help: "Offers sent to drivers by result"},
		[]string{"result"},
	)
	ReservationConflicts = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "reservation_conflicts_total", Help: "Reserve attempts lost to a concurrent dispatch"},
	)
	TimeToMatch = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "time_to_match_seconds",
			Help:      "Elapsed time from dispatch start to driver acceptance",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 15, 30, 60},
		},
	)
	CascadeDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "cascade_depth",
			Help:      "Number of candidates offered before a dispatch resolved",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 12, 20},
		},
	)
	DriversAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "dispatch", Name: "drivers_available", Help: "Drivers currently available for matching"},
	)
)
