package cloudsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/logging"
)

// State is the connectivity state of the remote store.
type State string

const (
	// StateDisconnected means the remote store is not configured. It never changes.
	StateDisconnected State = "disconnected"
	StateChecking     State = "checking"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// States lists every connectivity state.
var States = []State{StateDisconnected, StateChecking, StateConnected, StateError}

// Pinger checks that the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is a snapshot of the monitor.
type Status struct {
	State       State     `json:"state"`
	Online      bool      `json:"online"`
	QueueLength int       `json:"queue_length"`
	LastChecked time.Time `json:"last_checked,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Monitor polls the remote store and switches the adapter between online
// and offline. A Monitor without a Pinger stays disconnected.
type Monitor struct {
	pinger   Pinger
	adapter  *Adapter
	interval time.Duration
	timeout  time.Duration
	metrics  *Metrics
	logger   *zap.Logger

	checkMu sync.Mutex

	mu          sync.RWMutex
	state       State
	lastChecked time.Time
	lastErr     string

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewMonitor creates a Monitor. pinger and adapter may be nil when cloud sync
// is not configured.
func NewMonitor(pinger Pinger, adapter *Adapter, interval, timeout time.Duration, metrics *Metrics, logger *zap.Logger) *Monitor {
	state := StateChecking
	if pinger == nil {
		state = StateDisconnected
	}
	m := &Monitor{
		pinger:   pinger,
		adapter:  adapter,
		interval: interval,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger.Named("connectivity"),
		state:    state,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	metrics.setState(state)
	return m
}

// Start checks connectivity now and then every interval until Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		if m.pinger == nil {
			close(m.doneCh)
			return
		}
		go m.run(ctx)
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends polling and waits for the poll goroutine to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.startOnce.Do(func() { close(m.doneCh) })
	<-m.doneCh
}

// Refresh runs a connectivity check immediately and returns the new status.
func (m *Monitor) Refresh(ctx context.Context) Status {
	m.check(ctx)
	return m.Status()
}

// Status returns the current connectivity snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	status := Status{
		State:       m.state,
		LastChecked: m.lastChecked,
		LastError:   m.lastErr,
	}
	m.mu.RUnlock()

	if m.adapter != nil {
		status.Online = m.adapter.IsOnline()
		status.QueueLength = m.adapter.QueueLen()
	}
	return status
}

func (m *Monitor) check(ctx context.Context) {
	if m.pinger == nil {
		return
	}
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	previous := m.setState(StateChecking, "")

	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(checkCtx)
	cancel()

	if err != nil {
		reason := logging.SanitizeError(err)
		m.setState(StateError, reason)
		if previous != StateError {
			m.logger.Warn("Remote store unreachable", zap.String("error", reason))
		}
		if m.adapter != nil {
			m.adapter.SetOnline(ctx, false)
		}
		return
	}

	m.setState(StateConnected, "")
	if previous != StateConnected {
		m.logger.Info("Remote store connected")
	}
	if m.adapter != nil {
		m.adapter.SetOnline(ctx, true)
	}
}

// setState records a transition and returns the state before the check began.
func (m *Monitor) setState(state State, lastErr string) State {
	m.mu.Lock()
	previous := m.state
	m.state = state
	if state != StateChecking {
		m.lastChecked = time.Now()
		m.lastErr = lastErr
	}
	m.mu.Unlock()

	m.metrics.setState(state)
	return previous
}
