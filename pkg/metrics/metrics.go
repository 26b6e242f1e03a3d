// Package metrics defines the collection interface the dispatchers
// report into, plus a Prometheus implementation. The framework only
// depends on the Collector interface, so hosts can supply their own.
package metrics

import (
	"net/http"
	"time"
)

// Collector receives observations from the dispatch boundary.
type Collector interface {
	// ObserveCall records one completed call with its kind
	// (query|mutation|server_fn), outcome code ("ok" or an error code),
	// and duration.
	ObserveCall(kind, code string, duration time.Duration)

	// SubscriptionStarted and SubscriptionEnded track the number of
	// active WebSocket subscriptions.
	SubscriptionStarted()
	SubscriptionEnded()
}

// Nop is a Collector that discards everything.
type Nop struct{}

func (Nop) ObserveCall(string, string, time.Duration) {}
func (Nop) SubscriptionStarted()                      {}
func (Nop) SubscriptionEnded()                        {}

// Exposer is implemented by collectors that can serve their own scrape
// endpoint.
type Exposer interface {
	Handler() http.Handler
}
