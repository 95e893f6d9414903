// Package metrics exposes Prometheus collectors for the crawl fleet.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crawlfleet"

// Set bundles the collectors shared by agents and consumers. All
// methods are safe on a nil Set, so tests can skip wiring it.
type Set struct {
	pagesCrawled     prometheus.Counter
	fetchFailures    prometheus.Counter
	robotsDenied     prometheus.Counter
	dedupHits        prometheus.Counter
	publishFailures  prometheus.Counter
	messagesConsumed prometheus.Counter
	messagesAcked    prometheus.Counter
	messagesRejected prometheus.Counter
}

// New registers the fleet collectors on reg.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		pagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_crawled_total",
			Help:      "Total pages that completed fetch+parse.",
		}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Total tasks dropped because fetch+parse failed.",
		}),
		robotsDenied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "robots_denied_total",
			Help:      "Total tasks dropped by the robots policy gate.",
		}),
		dedupHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_hits_total",
			Help:      "Total discovered links skipped as already visited.",
		}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Total page results that failed to publish.",
		}),
		messagesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total deliveries received from the outbound queue.",
		}),
		messagesAcked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_acked_total",
			Help:      "Total deliveries acknowledged after handling.",
		}),
		messagesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Total deliveries rejected without requeue.",
		}),
	}
}

// PageCrawled counts a page that completed fetch+parse.
func (s *Set) PageCrawled() {
	if s != nil {
		s.pagesCrawled.Inc()
	}
}

// FetchFailed counts a task dropped by a fetch failure.
func (s *Set) FetchFailed() {
	if s != nil {
		s.fetchFailures.Inc()
	}
}

// RobotsDenied counts a task dropped by the robots gate.
func (s *Set) RobotsDenied() {
	if s != nil {
		s.robotsDenied.Inc()
	}
}

// DedupHit counts a link skipped as already visited.
func (s *Set) DedupHit() {
	if s != nil {
		s.dedupHits.Inc()
	}
}

// PublishFailed counts a page result that failed to publish.
func (s *Set) PublishFailed() {
	if s != nil {
		s.publishFailures.Inc()
	}
}

// MessageConsumed counts a delivery received from the queue.
func (s *Set) MessageConsumed() {
	if s != nil {
		s.messagesConsumed.Inc()
	}
}

// MessageAcked counts a delivery acknowledged after handling.
func (s *Set) MessageAcked() {
	if s != nil {
		s.messagesAcked.Inc()
	}
}

// MessageRejected counts a delivery rejected without requeue.
func (s *Set) MessageRejected() {
	if s != nil {
		s.messagesRejected.Inc()
	}
}
