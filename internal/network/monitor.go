// Package network owns the process-wide connectivity state. The online flag
// is mutated only by the Monitor; every other component reads it through
// IsOnline or a subscription.
package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"inventory-sync-service/internal/logger"
)

// Probe checks reachability of the backend. A nil error means online.
type Probe func(ctx context.Context) error

// HTTPProbe probes with a HEAD request against the given URL. Any response,
// including an error status, proves the network path is up.
func HTTPProbe(url string, timeout time.Duration) Probe {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

type Monitor struct {
	probe    Probe
	interval time.Duration

	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int

	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		subs:     make(map[int]func(bool)),
		stopCh:   make(chan struct{}),
	}
}

// Start performs a synchronous initial probe so the flag matches reality at
// construction time rather than assuming online, then keeps probing in the
// background.
func (m *Monitor) Start(ctx context.Context) {
	m.SetOnline(m.check(ctx))

	m.wg.Add(1)
	go m.loop()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.stopCh)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity transition. Repeated identical signals are
// dropped so subscribers fire at most once per actual state change.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	logger.Log.Info("Connectivity changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers a callback for connectivity transitions and returns an
// unsubscribe func.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.SetOnline(m.check(context.Background()))
		}
	}
}

func (m *Monitor) check(ctx context.Context) bool {
	if m.probe == nil {
		return false
	}
	if err := m.probe(ctx); err != nil {
		logger.Log.Debug("Connectivity probe failed", zap.Error(err))
		return false
	}
	return true
}
