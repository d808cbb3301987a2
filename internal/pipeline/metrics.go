package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "faultline_reports_total",
		Help: "Reports processed by outcome.",
	},
	[]string{"outcome"},
)
