// Package queue routes payment jobs to named queues and owns the administrative
// operations over those queues. Every queue is a Kafka topic.
package queue

import (
	"log/slog"
	"sort"

	"github.com/fsp-disbursement/internal/domain/shared"
)

// DefaultQueue receives jobs of providers without a route
const DefaultQueue = "transactions.default"

// BulkRoute sends batches smaller than Below to Queue. Below <= 0 matches any size.
type BulkRoute struct {
	Below int
	Queue string
}

// ProviderRoute is the static queue mapping of one provider
type ProviderRoute struct {
	Queue string
	Bulk  []BulkRoute
}

// Router decides the queue of every job. Routing never fails: a missing mapping
// degrades to the provider queue or to DefaultQueue.
type Router struct {
	routes map[shared.ProviderName]ProviderRoute
	logger *slog.Logger
}

// NewRouter builds the route table of the known providers. Each provider gets a
// small-bulk queue for batches below bulkThreshold and a large-bulk queue for the rest.
// A threshold <= 0 disables the bulk split.
func NewRouter(logger *slog.Logger, bulkThreshold int) *Router {
	routes := make(map[shared.ProviderName]ProviderRoute)
	for _, provider := range []shared.ProviderName{shared.ProviderNedbank, shared.ProviderSafaricom} {
		base := ProviderQueue(provider)
		route := ProviderRoute{Queue: base}
		if bulkThreshold > 0 {
			route.Bulk = []BulkRoute{
				{Below: bulkThreshold, Queue: base + ".small-bulk"},
				{Queue: base + ".large-bulk"},
			}
		}
		routes[provider] = route
	}
	return NewRouterWithRoutes(logger, routes)
}

func NewRouterWithRoutes(logger *slog.Logger, routes map[shared.ProviderName]ProviderRoute) *Router {
	return &Router{routes: routes, logger: logger}
}

// ProviderQueue is the default queue name of a provider
func ProviderQueue(provider shared.ProviderName) string {
	return "transactions." + provider.String()
}

// Route returns the queue for a job of the given provider from a batch of bulkSize jobs
func (r *Router) Route(provider shared.ProviderName, bulkSize int) string {
	route, ok := r.routes[provider]
	if !ok {
		r.logger.Warn("No queue mapping for provider, using default queue",
			"provider", provider,
			"queue", DefaultQueue,
		)
		return DefaultQueue
	}

	if len(route.Bulk) == 0 || bulkSize <= 0 {
		return route.Queue
	}

	for _, bulk := range route.Bulk {
		if bulk.Below <= 0 || bulkSize < bulk.Below {
			return bulk.Queue
		}
	}

	r.logger.Warn("No bulk route matches batch size, using provider queue",
		"provider", provider,
		"bulk_size", bulkSize,
		"queue", route.Queue,
	)
	return route.Queue
}

// Queues lists every queue a job can be routed to, sorted
func (r *Router) Queues() []string {
	seen := map[string]struct{}{DefaultQueue: {}}
	for _, route := range r.routes {
		seen[route.Queue] = struct{}{}
		for _, bulk := range route.Bulk {
			seen[bulk.Queue] = struct{}{}
		}
	}

	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}
