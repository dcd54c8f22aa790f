// Package health provides a registry of named subsystem health checkers and
// ready-made checks for datastores and background jobs.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Detail   string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name     string
	critical bool
	check    Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a critical checker: when it fails the service is unhealthy.
func (r *Registry) Register(name string, check Checker) {
	r.add(name, true, check)
}

// RegisterOptional adds a checker whose failure is reported but only
// degrades the service.
func (r *Registry) RegisterOptional(name string, check Checker) {
	r.add(name, false, check)
}

func (r *Registry) add(name string, critical bool, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, critical: critical, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers concurrently and returns the
// aggregate health plus each result in registration order. Only critical
// failures make the aggregate unhealthy.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	statuses = make([]Status, len(checkers))
	var wg sync.WaitGroup
	for i, nc := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := nc.check(ctx)
			st.Name = nc.name
			st.Critical = nc.critical
			statuses[i] = st
		}()
	}
	wg.Wait()

	healthy = true
	for _, st := range statuses {
		if st.Critical && !st.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

// Pinger is implemented by datastores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports p healthy when Ping answers within timeout.
func PingCheck(p Pinger, timeout time.Duration) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return Status{Healthy: false, Detail: err.Error()}
		}
		return Status{Healthy: true}
	}
}

// FreshnessCheck reports healthy while last() is within maxAge of now.
// last returns false when the job has not completed yet.
func FreshnessCheck(last func() (time.Time, bool), maxAge time.Duration, now func() time.Time) Checker {
	return func(context.Context) Status {
		at, ok := last()
		if !ok {
			return Status{Healthy: false, Detail: "not run yet"}
		}
		age := now().Sub(at)
		if age > maxAge {
			return Status{Healthy: false, Detail: fmt.Sprintf("stale: last run %s ago", age.Round(time.Second))}
		}
		return Status{Healthy: true, Detail: fmt.Sprintf("last run %s ago", age.Round(time.Second))}
	}
}
