// Package health serves liveness and readiness probes backed by periodic
// checks. A check flips unhealthy only after FailureThreshold consecutive
// failures and back after SuccessThreshold consecutive successes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Check describes one registered check. Zero thresholds default to 3
// failures and 1 success; a zero Timeout defaults to one second.
type Check struct {
	Name             string
	Kind             Kind
	Func             CheckFunc
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
}

// probe is a Check plus its state. fails and oks are only touched by the
// probe's own goroutine; healthy and lastErr are read by HTTP handlers.
type probe struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
	fails   int
	oks     int
}

func (p *probe) run(ctx context.Context, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Func(ctx)
	p.lastErr.Store(&err)
	was := p.healthy.Load()
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.FailureThreshold && was {
			p.healthy.Store(false)
			lg.Warn("Health check failing",
				zap.String("check", p.Name),
				zap.Stringer("kind", p.Kind),
				zap.Error(err),
			)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.SuccessThreshold && !was {
		p.healthy.Store(true)
		lg.Info("Health check recovered", zap.String("check", p.Name), zap.Stringer("kind", p.Kind))
	}
}

func (p *probe) failure() string {
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// Health aggregates checks. It starts not ready; the server flips readiness
// with SetReady once it can serve and again before shutdown.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Add registers a check. Checks start healthy. Add must be called before
// Start.
func (h *Health) Add(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	p := &probe{Check: c}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// Start runs every check immediately and then every interval until Stop or
// until ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := h.probes
	h.mu.Unlock()

	for _, p := range probes {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx, h.lg)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the check goroutines. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Report returns the failing checks of kind. Readiness also fails while the
// server is not marked ready.
func (h *Health) Report(kind Kind) map[string]string {
	h.mu.RLock()
	probes := h.probes
	h.mu.RUnlock()

	failures := make(map[string]string)
	for _, p := range probes {
		if p.Kind == kind && !p.healthy.Load() {
			failures[p.Name] = p.failure()
		}
	}
	if kind == Readiness && !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	return failures
}

// Routes registers GET /livez and GET /readyz.
func (h *Health) Routes(r chi.Router) {
	r.Get("/livez", h.serve(Liveness))
	r.Get("/readyz", h.serve(Readiness))
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Health) serve(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{Status: "ok"}
		status := http.StatusOK
		if failures := h.Report(kind); len(failures) > 0 {
			resp = statusResponse{Status: "unhealthy", Checks: failures}
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
