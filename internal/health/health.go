// Package health reports whether the keyboard's collaborators are working.
//
// Checks run on demand from the HTTP handler, each with its own timeout, and
// roll up into one status:
//   - a critical check failing makes the process unhealthy
//   - any other failure only degrades it
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the health of one check or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Result is the outcome of one check.
type Result struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check inspects one collaborator.
type Check func(ctx context.Context) Result

type component struct {
	name     string
	critical bool
	check    Check
	timeout  time.Duration
}

// Checker holds the registered checks and their last results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*component
	results    map[string]Result
	started    time.Time
	now        func() time.Time
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*component),
		results:    make(map[string]Result),
		started:    time.Now(),
		now:        time.Now,
	}
}

// Register adds a check. A critical check that fails makes the process
// unhealthy. A zero timeout means five seconds.
func (c *Checker) Register(name string, critical bool, timeout time.Duration, check Check) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = &component{name: name, critical: critical, check: check, timeout: timeout}
	c.results[name] = Result{Status: StatusUnknown}
}

// Run executes every check concurrently and stores the results.
func (c *Checker) Run(ctx context.Context) map[string]Result {
	c.mu.RLock()
	components := make([]*component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]Result, len(components))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, comp := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := c.run(ctx, comp)
			mu.Lock()
			results[comp.name] = r
			mu.Unlock()
		}()
	}
	wg.Wait()

	c.mu.Lock()
	for name, r := range results {
		c.results[name] = r
	}
	c.mu.Unlock()
	return results
}

func (c *Checker) run(ctx context.Context, comp *component) Result {
	ctx, cancel := context.WithTimeout(ctx, comp.timeout)
	defer cancel()

	start := c.now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.check(ctx)
	}()

	var result Result
	select {
	case result = <-done:
	case <-ctx.Done():
		result = Result{Status: StatusUnhealthy, Message: "check timed out", Error: ctx.Err().Error()}
	}
	result.LastChecked = start
	result.Duration = c.now().Sub(start)
	return result
}

// Status rolls the last results up.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unknown, degraded := false, false
	for name, r := range c.results {
		comp := c.components[name]
		switch r.Status {
		case StatusUnhealthy:
			if comp.critical {
				return StatusUnhealthy
			}
			degraded = true
		case StatusDegraded:
			degraded = true
		case StatusUnknown:
			if comp.critical {
				unknown = true
			}
		}
	}
	switch {
	case unknown:
		return StatusUnknown
	case degraded:
		return StatusDegraded
	}
	return StatusHealthy
}

// Response is the body served by Handler.
type Response struct {
	Status     Status            `json:"status"`
	Uptime     string            `json:"uptime"`
	Checks     []string          `json:"checks"`
	Components map[string]Result `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Handler runs the checks and serves the result as JSON. "?full=true"
// includes each check's result. Unhealthy and unknown answer 503.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := c.Run(r.Context())
		resp := Response{
			Status:    c.Status(),
			Uptime:    c.now().Sub(c.started).Round(time.Second).String(),
			Timestamp: c.now(),
		}
		for name := range results {
			resp.Checks = append(resp.Checks, name)
		}
		sort.Strings(resp.Checks)
		if r.URL.Query().Get("full") == "true" {
			resp.Components = results
		}

		w.Header().Set("Content-Type", "application/json")
		switch resp.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})
}

// PingCheck fails when ping does. Used for the journal database.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) Result {
		if err := ping(ctx); err != nil {
			return Result{Status: StatusUnhealthy, Message: "ping failed", Error: err.Error()}
		}
		return Result{Status: StatusHealthy}
	}
}

// DropCheck degrades while counter keeps growing between runs. Used for
// strokes a sink had to drop.
func DropCheck(counter func() uint64) Check {
	var mu sync.Mutex
	var last uint64
	return func(ctx context.Context) Result {
		mu.Lock()
		defer mu.Unlock()
		n := counter()
		since := n - last
		last = n
		details := map[string]any{"total": n, "since_last_check": since}
		if since > 0 {
			return Result{Status: StatusDegraded, Message: "entries dropped", Details: details}
		}
		return Result{Status: StatusHealthy, Details: details}
	}
}

// CountCheck is unhealthy while count returns zero. Used for the number of
// open keyboards.
func CountCheck(what string, count func() int) Check {
	return func(ctx context.Context) Result {
		n := count()
		details := map[string]any{what: n}
		if n == 0 {
			return Result{Status: StatusUnhealthy, Message: "no " + what, Details: details}
		}
		return Result{Status: StatusHealthy, Details: details}
	}
}
