package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var retrievalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "faultline_retrievals_total",
		Help: "Traceback retrieval requests by result.",
	},
	[]string{"result"},
)
