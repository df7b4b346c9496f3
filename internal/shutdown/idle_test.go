package shutdown

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestMonitor(timeout time.Duration, busy BusyFunc) (*IdleMonitor, *clock.Mock) {
	clk := clock.NewMock()
	m := NewIdleMonitor(Config{
		Timeout:      timeout,
		ExcludePaths: []string{"/healthz", "/readyz"},
		Busy:         busy,
		Clock:        clk,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return m, clk
}

// ========================================
// IdleMonitor Tests
// ========================================

func TestIdleMonitor_Check(t *testing.T) {
	m, clk := newTestMonitor(time.Minute, nil)

	clk.Add(30 * time.Second)
	if m.check() {
		t.Fatal("check() = true before the timeout")
	}
	clk.Add(31 * time.Second)
	if !m.check() {
		t.Fatal("check() = false after the timeout")
	}
}

func TestIdleMonitor_RequestsResetTimer(t *testing.T) {
	m, clk := newTestMonitor(time.Minute, nil)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	clk.Add(50 * time.Second)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
	clk.Add(50 * time.Second)
	if m.check() {
		t.Error("check() = true, request should have reset the timer")
	}

	// Probes are not activity
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	clk.Add(15 * time.Second)
	if !m.check() {
		t.Error("check() = false, probe should not count as activity")
	}
}

func TestIdleMonitor_BusyResetsTimer(t *testing.T) {
	busy := true
	m, clk := newTestMonitor(time.Minute, func() bool { return busy })

	clk.Add(2 * time.Minute)
	if m.check() {
		t.Fatal("check() = true while background work is running")
	}

	busy = false
	clk.Add(30 * time.Second)
	if m.check() {
		t.Error("check() = true, timer should restart after busy work")
	}
	clk.Add(31 * time.Second)
	if !m.check() {
		t.Error("check() = false after a full idle timeout")
	}
}

func TestIdleMonitor_Disabled(t *testing.T) {
	m, _ := newTestMonitor(0, nil)
	if m.Enabled() {
		t.Error("Enabled() = true for zero timeout")
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if got := m.Middleware(next); got == nil {
		t.Error("Middleware() returned nil")
	}
	m.Start()
	m.Stop()
	m.Stop()
}

func TestIdleMonitor_CheckInterval(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{10 * time.Second, 5 * time.Second},
		{time.Minute, 10 * time.Second},
		{time.Hour, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.timeout.String(), func(t *testing.T) {
			m, _ := newTestMonitor(tt.timeout, nil)
			if got := m.checkInterval(); got != tt.want {
				t.Errorf("checkInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}
