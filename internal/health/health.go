// Package health reports whether the service's dependencies are usable.
//
// Checks run on demand, concurrently, each bounded by its own timeout. A
// check registered as optional is reported but never turns the service
// unhealthy.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	timeout  time.Duration
	fn       CheckFunc
	optional bool
}

// Result is the outcome of one run of every check.
type Result struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks"`
}

// Healthy reports whether Status is "healthy".
func (r Result) Healthy() bool {
	return r.Status == "healthy"
}

// Checker holds the registered checks.
type Checker struct {
	mu     sync.RWMutex
	checks []check
	now    func() time.Time
}

// New creates an empty Checker.
func New() *Checker {
	return &Checker{now: time.Now}
}

// Add registers a required check.
func (h *Checker) Add(name string, timeout time.Duration, fn CheckFunc) {
	h.add(check{name: name, timeout: timeout, fn: fn})
}

// AddOptional registers a check whose failure is reported but tolerated.
func (h *Checker) AddOptional(name string, timeout time.Duration, fn CheckFunc) {
	h.add(check{name: name, timeout: timeout, fn: fn, optional: true})
}

func (h *Checker) add(c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Run executes every check once.
func (h *Checker) Run(ctx context.Context) Result {
	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	h.mu.RUnlock()

	res := Result{
		Status: "healthy",
		Time:   h.now().UTC().Format(time.RFC3339),
		Checks: make(map[string]string, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range checks {
		wg.Add(1)
		go func(c check) {
			defer wg.Done()
			err := runOne(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Checks[c.name] = "ok"
				return
			}
			res.Checks[c.name] = err.Error()
			if !c.optional {
				res.Status = "unhealthy"
			}
		}(c)
	}
	wg.Wait()
	return res
}

func runOne(ctx context.Context, c check) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("check panicked: %v", r)
		}
	}()
	return c.fn(ctx)
}

// Handler serves the result of Run, with 503 when a required check fails.
func (h *Checker) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := h.Run(c.UserContext())
		status := fiber.StatusOK
		if !res.Healthy() {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(res)
	}
}
