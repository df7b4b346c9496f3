// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// BusyFunc reports whether background work is in progress.
type BusyFunc func() bool

// Config holds configuration for the idle monitor.
type Config struct {
	Timeout      time.Duration // Idle period before shutdown is signalled (0 = disabled)
	ExcludePaths []string      // Path prefixes that don't count as activity, e.g. probes
	Busy         BusyFunc      // Optional background work check
	Clock        clock.Clock
	Logger       *slog.Logger
}

// IdleMonitor signals when no request has been served for Timeout and no
// background work is running, so platforms like Fly.io can stop the machine.
type IdleMonitor struct {
	cfg          Config
	active       atomic.Int64
	mu           sync.Mutex
	lastActivity time.Time
	idle         chan struct{}
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewIdleMonitor creates an idle monitor. A zero timeout disables it.
func NewIdleMonitor(cfg Config) *IdleMonitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &IdleMonitor{
		cfg:          cfg,
		lastActivity: cfg.Clock.Now(),
		idle:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

// Enabled reports whether the monitor has a timeout.
func (m *IdleMonitor) Enabled() bool {
	return m.cfg.Timeout > 0
}

// Start begins the monitoring loop.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		return
	}
	m.cfg.Logger.Info("idle monitoring started", "timeout", m.cfg.Timeout.String(), "exclude_paths", m.cfg.ExcludePaths)
	go m.run()
}

// Stop ends the monitoring loop. Safe to call more than once.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Idle returns a channel closed when the idle timeout is reached.
func (m *IdleMonitor) Idle() <-chan struct{} {
	return m.idle
}

// Middleware tracks in-flight requests outside the excluded paths.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.active.Add(1)
		m.touch()
		defer func() {
			m.active.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, prefix := range m.cfg.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.mu.Lock()
	m.lastActivity = m.cfg.Clock.Now()
	m.mu.Unlock()
}

// checkInterval polls at a sixth of the timeout, clamped to [5s, 30s].
func (m *IdleMonitor) checkInterval() time.Duration {
	interval := m.cfg.Timeout / 6
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	return interval
}

func (m *IdleMonitor) run() {
	ticker := m.cfg.Clock.Ticker(m.checkInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.check() {
				close(m.idle)
				return
			}
		}
	}
}

// check reports whether the idle timeout has been reached. Busy background
// work resets the idle timer so a full timeout follows the last sweep.
func (m *IdleMonitor) check() bool {
	active := m.active.Load()
	busy := m.cfg.Busy != nil && m.cfg.Busy()
	if active > 0 || busy {
		m.touch()
		return false
	}

	m.mu.Lock()
	idleFor := m.cfg.Clock.Since(m.lastActivity)
	m.mu.Unlock()

	if idleFor < m.cfg.Timeout {
		m.cfg.Logger.Debug("idle check", "idle_for", idleFor.String(), "timeout", m.cfg.Timeout.String())
		return false
	}
	m.cfg.Logger.Info("idle timeout reached, signalling shutdown", "idle_for", idleFor.String())
	return true
}
