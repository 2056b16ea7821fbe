// Package preflight checks whether the environment can run vitrina.
//
// Each check returns a Result; the doctor command runs them all and
// renders the outcome. Redis failures are critical because every index
// lives there. PostgreSQL failures only warn, matching how serve
// degrades account and backup features when the registry is down.
package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/vitrina-search/vitrina/internal/config"
)

// pingTimeout bounds each connectivity probe.
const pingTimeout = 5 * time.Second

// Status is the outcome of a single check.
type Status int

const (
	// StatusPass means the check succeeded.
	StatusPass Status = iota
	// StatusWarn means the environment is usable but degraded.
	StatusWarn
	// StatusFail means the check failed.
	StatusFail
)

// String returns the uppercase label used in doctor output.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Result holds the outcome of one environment check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"-"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// Critical reports whether this is a required check that failed.
func (r Result) Critical() bool {
	return r.Required && r.Status == StatusFail
}

// Pinger is the health probe both storage clients expose.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []Result) bool {
	for _, r := range results {
		if r.Critical() {
			return true
		}
	}
	return false
}

// Summary collapses the results into ready, degraded or failed.
func Summary(results []Result) string {
	degraded := false
	for _, r := range results {
		if r.Critical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "ready"
}

// CheckConfig reports whether the configuration loaded and validated.
func CheckConfig(path string, cfg *config.Config, loadErr error) Result {
	r := Result{Name: "config", Required: true}

	if loadErr != nil {
		r.Status = StatusFail
		r.Message = loadErr.Error()
		r.Details = "Run 'vitrina config init' to write a starting configuration."
		return r
	}

	r.Status = StatusPass
	if path == "" {
		r.Message = fmt.Sprintf("loaded (env %s)", cfg.Env)
	} else {
		r.Message = fmt.Sprintf("loaded %s (env %s)", path, cfg.Env)
	}
	return r
}

// CheckRedis probes the index store.
func CheckRedis(ctx context.Context, addr string, p Pinger) Result {
	r := Result{Name: "redis", Required: true}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("unreachable at %s: %v", addr, err)
		r.Details = "Every index lives in Redis. Check kv.host in the config or REDIS_HOST."
		return r
	}

	r.Status = StatusPass
	r.Message = "reachable at " + addr
	return r
}

// CheckPostgres probes the project registry. Failure is a warning, not
// an error, since search keeps serving from Redis without it.
func CheckPostgres(ctx context.Context, host string, p Pinger) Result {
	r := Result{Name: "postgres", Required: false}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("unreachable at %s: %v", host, err)
		r.Details = "Accounts, API keys and index backups stay disabled until PostgreSQL is back."
		return r
	}

	r.Status = StatusPass
	r.Message = "reachable at " + host
	return r
}
