package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// toggle is a check whose result the test controls.
type toggle struct {
	err atomic.Pointer[error]
}

func (t *toggle) set(err error) { t.err.Store(&err) }

func (t *toggle) check(context.Context) error {
	if p := t.err.Load(); p != nil {
		return *p
	}
	return nil
}

func get(t *testing.T, h *Health, path string) (int, statusResponse) {
	t.Helper()
	r := chi.NewRouter()
	h.Routes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestReadinessRequiresSetReady(t *testing.T) {
	h := New(nil)
	h.Add(Check{Name: "store", Kind: Readiness, Func: func(context.Context) error { return nil }})

	code, body := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])

	h.SetReady(true)
	code, body = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	// Liveness ignores readiness.
	h.SetReady(false)
	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)
}

func TestProbeThresholds(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lg := zap.New(core)
	var tg toggle
	p := &probe{Check: Check{Name: "postgres", Kind: Readiness, Func: tg.check, Timeout: time.Second, FailureThreshold: 2, SuccessThreshold: 2}}
	p.healthy.Store(true)
	ctx := context.Background()

	tg.set(errors.New("connection refused"))
	p.run(ctx, lg)
	assert.True(t, p.healthy.Load(), "one failure is below the threshold")
	p.run(ctx, lg)
	assert.False(t, p.healthy.Load())
	assert.Equal(t, "connection refused", p.failure())
	assert.Equal(t, 1, logs.FilterMessage("Health check failing").Len())

	tg.set(nil)
	p.run(ctx, lg)
	assert.False(t, p.healthy.Load(), "one success is below the threshold")
	p.run(ctx, lg)
	assert.True(t, p.healthy.Load())
	assert.Equal(t, 1, logs.FilterMessage("Health check recovered").Len())
}

func TestStartReportsFailures(t *testing.T) {
	h := New(nil)
	var tg toggle
	tg.set(errors.New("gateway offline"))
	h.Add(Check{Name: "gateway", Kind: Readiness, Func: tg.check, FailureThreshold: 1})
	h.Add(Check{Name: "goroutines", Kind: Liveness, Func: GoroutineLimit(1 << 20)})
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool {
		return len(h.Report(Readiness)) > 0
	}, time.Second, 5*time.Millisecond)

	code, body := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "gateway offline", body.Checks["gateway"])

	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)

	tg.set(nil)
	require.Eventually(t, func() bool {
		return len(h.Report(Readiness)) == 0
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestCheckTimeout(t *testing.T) {
	h := New(nil)
	h.Add(Check{
		Name:             "slow",
		Kind:             Liveness,
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Hour)
	defer h.Stop()

	require.Eventually(t, func() bool {
		return h.Report(Liveness)["slow"] == context.DeadlineExceeded.Error()
	}, time.Second, 5*time.Millisecond)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckers(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, GoroutineLimit(1<<20)(ctx))
	require.Error(t, GoroutineLimit(0)(ctx))

	require.NoError(t, Ping("postgres", pingFunc(func(context.Context) error { return nil }))(ctx))
	err := Ping("postgres", pingFunc(func(context.Context) error { return errors.New("refused") }))(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping postgres")
}
