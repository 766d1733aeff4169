package queue

import (
	"context"
	"fmt"
	"sort"

	"github.com/fsp-disbursement/internal/domain/job"
)

// JobHandler processes one dequeued job
type JobHandler interface {
	Handle(ctx context.Context, j *job.Job) error
}

// Registration binds a queue to its handler and its concurrency cap
type Registration struct {
	Queue       string
	Concurrency int
	Handler     JobHandler
}

// Registry maps queue names to handlers. It is filled explicitly at startup.
type Registry struct {
	entries map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds a queue. Each queue may be registered once.
func (r *Registry) Register(queue string, concurrency int, handler JobHandler) error {
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("queue %s has no handler", queue)
	}
	if concurrency <= 0 {
		return fmt.Errorf("queue %s: concurrency must be greater than 0", queue)
	}
	if _, exists := r.entries[queue]; exists {
		return fmt.Errorf("queue %s is already registered", queue)
	}
	r.entries[queue] = Registration{Queue: queue, Concurrency: concurrency, Handler: handler}
	return nil
}

func (r *Registry) Lookup(queue string) (Registration, bool) {
	reg, ok := r.entries[queue]
	return reg, ok
}

// Registrations returns every registration sorted by queue name
func (r *Registry) Registrations() []Registration {
	out := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Queue < out[j].Queue })
	return out
}
