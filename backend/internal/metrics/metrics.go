package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EditsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsync_edits_accepted_total",
		Help: "Edits applied to the authoritative document state.",
	})
	EditsDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsync_edits_denied_total",
		Help: "Edits rejected by the sharing gate.",
	})
	VersionAppendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsync_version_append_failures_total",
		Help: "Edits that were broadcast but could not be recorded as a version.",
	})
	SubscriberDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docsync_subscriber_dropped_total",
		Help: "Document states dropped from a full subscriber buffer.",
	})
	ActiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docsync_subscribers",
		Help: "Currently open document subscriptions.",
	})
	EventsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docsync_events_total",
		Help: "Domain events handed to the broker, by outcome.",
	}, []string{"outcome"})
)

var registerOnce sync.Once

// Register 只注册一次，重复调用无副作用
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			EditsAccepted,
			EditsDenied,
			VersionAppendFailures,
			SubscriberDrops,
			ActiveSubscribers,
			EventsDispatched,
		)
	})
}
