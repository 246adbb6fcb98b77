// metrics.go -- Prometheus counters for the sign-in lifecycle.
package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var signInsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gatekeep_sign_ins_started_total",
	Help: "Number of redirects to the identity provider",
})

var callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatekeep_callbacks_total",
	Help: "Number of sign-in callbacks handled, by result",
}, []string{"result"})

var signOuts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gatekeep_sign_outs_total",
	Help: "Number of sign-outs",
})

var identityFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gatekeep_identity_fetch_failures_total",
	Help: "Number of failed token or userinfo lookups, by kind",
}, []string{"kind"})
