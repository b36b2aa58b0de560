// Package health aggregates the pipeline's readiness signals (host memory,
// buffer backlog and the translation store) and serves them next to /metrics.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/resilience"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// DefaultCheckTimeout bounds a single check when the checker has no limit.
const DefaultCheckTimeout = 2 * time.Second

// Check reports the state of one signal.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Took     string `json:"took"`
}

// Report lists every check in name order. Status is the worst result, where
// an advisory check that is down only degrades the total.
type Report struct {
	Status    Status            `json:"status"`
	Checks    []ComponentHealth `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

type registered struct {
	check    Check
	critical bool
}

type Checker struct {
	mu      sync.RWMutex
	checks  map[string]registered
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker bounds every check by timeout; zero uses DefaultCheckTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Checker{
		checks:  make(map[string]registered),
		timeout: timeout,
		logger:  logger.WithComponent("health"),
	}
}

// Register adds a check whose failure makes the process unready.
func (c *Checker) Register(name string, check Check) {
	c.add(name, check, true)
}

// RegisterAdvisory adds a check that can degrade the report but never
// takes it down.
func (c *Checker) RegisterAdvisory(name string, check Check) {
	c.add(name, check, false)
}

func (c *Checker) add(name string, check Check, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registered{check: check, critical: critical}
}

// Run executes every check concurrently, each under the checker's timeout.
// A check that overruns is reported down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	checks := make(map[string]registered, len(c.checks))
	for name, r := range c.checks {
		names = append(names, name)
		checks[name] = r
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make([]ComponentHealth, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.runOne(ctx, name, checks[name])
		}()
	}
	wg.Wait()

	report := Report{Status: StatusUp, Checks: results, CheckedAt: time.Now().UTC()}
	for _, r := range results {
		s := r.Status
		if !r.Critical && s == StatusDown {
			s = StatusDegraded
		}
		if s.rank() > report.Status.rank() {
			report.Status = s
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, name string, r registered) ComponentHealth {
	start := time.Now()
	out := make(chan ComponentHealth, 1)
	err := resilience.Bounded(ctx, "health-"+name, c.timeout, func(ctx context.Context) error {
		out <- r.check(ctx)
		return nil
	})
	var res ComponentHealth
	if err != nil {
		res = ComponentHealth{Status: StatusDown, Message: err.Error()}
		c.logger.Warn("health check did not finish", "check", name, "error", err)
	} else {
		res = <-out
	}
	res.Name = name
	res.Critical = r.critical
	res.Took = time.Since(start).Round(time.Millisecond).String()
	return res
}

// Pinger is a store that can confirm it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports p down while Ping fails.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Routes returns the liveness and readiness handlers keyed by path.
func (c *Checker) Routes() map[string]http.Handler {
	return map[string]http.Handler{
		"/health/live":  c.LiveHandler(),
		"/health/ready": c.ReadyHandler(),
	}
}

// LiveHandler answers 200 as long as the listener is serving.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.write(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 only when every check is up, so a peer under
// memory pressure or with an unreachable store is taken out of rotation.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if report.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		c.write(w, code, report)
	}
}

func (c *Checker) write(w http.ResponseWriter, code int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("failed to encode health response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		c.logger.Debug("failed to write health response", "error", err)
	}
}
