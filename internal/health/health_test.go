package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("postgres", func(_ context.Context) Status {
		return Status{Healthy: true}
	})
	r.Register("graph", func(_ context.Context) Status {
		return Status{Healthy: true, Detail: "ok"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "postgres" || statuses[1].Name != "graph" {
		t.Errorf("statuses out of registration order: %+v", statuses)
	}
	if !statuses[0].Critical {
		t.Error("Register should mark checks critical")
	}
}

func TestRegistryCriticalFailure(t *testing.T) {
	r := NewRegistry()
	r.Register("postgres", func(_ context.Context) Status {
		return Status{Healthy: false, Detail: "connection refused"}
	})
	r.RegisterOptional("neo4j", func(_ context.Context) Status {
		return Status{Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("critical failure should make the registry unhealthy")
	}
	if statuses[0].Detail != "connection refused" {
		t.Errorf("unexpected detail %q", statuses[0].Detail)
	}
}

func TestRegistryOptionalFailureDegrades(t *testing.T) {
	r := NewRegistry()
	r.Register("postgres", func(_ context.Context) Status { return Status{Healthy: true} })
	r.RegisterOptional("neo4j", func(_ context.Context) Status { return Status{Healthy: false} })

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("optional failure should not make the registry unhealthy")
	}
	if statuses[1].Healthy || statuses[1].Critical {
		t.Errorf("expected unhealthy optional status, got %+v", statuses[1])
	}
}

func TestRegistryRunsChecksConcurrently(t *testing.T) {
	r := NewRegistry()
	var running atomic.Int32
	release := make(chan struct{})
	for _, name := range []string{"a", "b"} {
		r.Register(name, func(_ context.Context) Status {
			if running.Add(1) == 2 {
				close(release)
			}
			select {
			case <-release:
				return Status{Healthy: true}
			case <-time.After(time.Second):
				return Status{Healthy: false, Detail: "ran serially"}
			}
		})
	}
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatalf("expected checks to overlap: %+v", statuses)
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	ok := PingCheck(pingerFunc(func(context.Context) error { return nil }), time.Second)
	if st := ok(context.Background()); !st.Healthy {
		t.Errorf("expected healthy, got %+v", st)
	}

	down := PingCheck(pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }), time.Second)
	if st := down(context.Background()); st.Healthy || st.Detail != "dial tcp: refused" {
		t.Errorf("expected failure detail, got %+v", st)
	}

	slow := PingCheck(pingerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 10*time.Millisecond)
	if st := slow(context.Background()); st.Healthy {
		t.Error("expected timeout to be unhealthy")
	}
}

func TestFreshnessCheck(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	never := FreshnessCheck(func() (time.Time, bool) { return time.Time{}, false }, time.Minute, clock)
	if st := never(context.Background()); st.Healthy || st.Detail != "not run yet" {
		t.Errorf("unexpected status %+v", st)
	}

	fresh := FreshnessCheck(func() (time.Time, bool) { return now.Add(-30 * time.Second), true }, time.Minute, clock)
	if st := fresh(context.Background()); !st.Healthy {
		t.Errorf("expected fresh, got %+v", st)
	}

	stale := FreshnessCheck(func() (time.Time, bool) { return now.Add(-2 * time.Minute), true }, time.Minute, clock)
	if st := stale(context.Background()); st.Healthy || st.Detail != "stale: last run 2m0s ago" {
		t.Errorf("expected stale, got %+v", st)
	}
}
