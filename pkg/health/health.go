package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"persona-chat/backend/pkg/logger"
)

// Status is the last observed state of a component
type Status string

const (
	StatusUp Status = "up"
	StatusDown Status = "down"
	// StatusDegraded means the component answers but something behind it is impaired
	StatusDegraded Status = "degraded"
)

// Component is the reported state of one registered check
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	Critical    bool      `json:"critical"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one dependency. The description ends up in the component report.
type Check func(ctx context.Context) (Status, string, error)

// Checker runs registered checks and aggregates them into one verdict
type Checker struct {
	mu        sync.RWMutex
	probes    map[string]Check
	state     map[string]*Component
	interval  time.Duration
	timeout   time.Duration
	listeners []func(healthy bool)
	log       *logger.Logger
}

// NewChecker returns a Checker that re-runs its checks every interval once started
func NewChecker(log *logger.Logger, interval time.Duration) *Checker {
	c := &Checker{
		probes:   map[string]Check{},
		state:    map[string]*Component{},
		interval: interval,
		timeout:  5 * time.Second,
		log:      log,
	}

	c.RegisterCheck("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "checker running", nil
	})

	return c
}

// RegisterCheck adds or replaces a check. The system is unhealthy while any
// critical component is down, including before its first run.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mu.Lock()
	c.probes[name] = check
	c.state[name] = &Component{Name: name, Status: StatusDown, Description: "pending", Critical: critical}
	c.mu.Unlock()
}

// OnChange subscribes fn to the overall verdict, delivered after every run
func (c *Checker) OnChange(fn func(healthy bool)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// RunChecks probes every component once, each under its own timeout
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.RLock()
	names := make([]string, 0, len(c.probes))
	probes := make([]Check, 0, len(c.probes))
	for name, probe := range c.probes {
		names = append(names, name)
		probes = append(probes, probe)
	}
	c.mu.RUnlock()

	observed := make([]Component, len(probes))
	for i, probe := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, desc, err := probe(probeCtx)
		cancel()

		observed[i] = Component{Name: names[i], Status: status, Description: desc}
		if err != nil {
			observed[i].Error = err.Error()
			c.log.Warn("component check failed", "component", names[i], "status", string(status), "error", err.Error())
		}
	}

	at := time.Now()
	c.mu.Lock()
	for _, o := range observed {
		current, ok := c.state[o.Name]
		if !ok {
			continue
		}
		current.Status = o.Status
		current.Description = o.Description
		current.Error = o.Error
		current.LastChecked = at
	}
	healthy := c.verdictLocked()
	notify := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range notify {
		fn(healthy)
	}
}

// Start runs the checks immediately and then on every tick until ctx ends
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		tick := time.NewTicker(c.interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus snapshots the component states keyed by name
func (c *Checker) GetStatus() map[string]*Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]*Component, len(c.state))
	for name, comp := range c.state {
		cp := *comp
		snapshot[name] = &cp
	}
	return snapshot
}

// IsSystemHealthy reports whether no critical component is down
func (c *Checker) IsSystemHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verdictLocked()
}

func (c *Checker) verdictLocked() bool {
	for _, comp := range c.state {
		if comp.Critical && comp.Status == StatusDown {
			return false
		}
	}
	return true
}

// HTTPHandler serves the raw component report, 503 while unhealthy
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, overall := http.StatusOK, "ok"
		if !c.IsSystemHealthy() {
			code, overall = http.StatusServiceUnavailable, "unavailable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		body := map[string]any{
			"status":     overall,
			"timestamp":  time.Now(),
			"components": c.GetStatus(),
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			c.log.Error("encode health report", "error", err.Error())
		}
	}
}

// RegisterDatabaseCheck registers a critical database health check
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterAPICheck registers a non-critical check against an HTTP endpoint
func (c *Checker) RegisterAPICheck(name, endpoint string, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}

	c.RegisterCheck(fmt.Sprintf("api-%s", name), false, func(ctx context.Context) (Status, string, error) {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return StatusDown, "Invalid endpoint", err
		}
		resp, err := client.Do(req)
		elapsed := time.Since(start)

		if err != nil {
			return StatusDown, "API request failed", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return StatusDegraded, fmt.Sprintf("API returned status %d", resp.StatusCode),
				fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return StatusUp, fmt.Sprintf("API is responding (latency: %s)", elapsed), nil
	})
}
