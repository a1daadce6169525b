package balancer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kelub/hashlb/healthcheck"
)

// Monitor periodically probes the known backends and converges the pool to
// the healthy ones.
type Monitor struct {
	registry *Registry
	prober   healthcheck.Prober
	config   HealthConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(reg *Registry, prober healthcheck.Prober, config HealthConfig) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 2 * time.Second
	}
	return &Monitor{
		registry: reg,
		prober:   prober,
		config:   config,
	}
}

// Start runs a convergence cycle right away and then one per interval until
// Stop is called. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.refreshloop(ctx, m.done)
}

// Stop prevents further cycles and waits for the running one to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) refreshloop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(m.config.Interval)
	defer t.Stop()
	for {
		m.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunCycle probes every known backend once and applies the resulting change
// to the pool. If ctx is canceled while probing the pool is left as is.
func (m *Monitor) RunCycle(ctx context.Context) (Delta, error) {
	logEntry := logrus.WithFields(logrus.Fields{
		"func_name": "Monitor.RunCycle",
	})
	known := m.registry.Known()
	if pr, ok := m.prober.(healthcheck.Pruner); ok {
		addrs := make([]string, len(known))
		for i, b := range known {
			addrs[i] = b.Addr
		}
		pr.Prune(addrs)
	}

	healthy := m.probeAll(ctx, known)
	if err := ctx.Err(); err != nil {
		logEntry.Debugf("cycle canceled: %v", err)
		return Delta{}, err
	}

	d, err := m.registry.Converge(healthy)
	if err != nil {
		logEntry.Errorf("converge: %v", err)
	}
	if !d.Empty() {
		logEntry.Infof("updated healthy servers:%v added:%v removed:%v",
			Names(healthy), Names(d.Added), Names(d.Removed))
	}
	return d, err
}

func (m *Monitor) probeAll(ctx context.Context, known []Backend) []Backend {
	ok := make([]bool, len(known))
	var wg sync.WaitGroup
	for i := range known {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok[i] = m.probe(ctx, known[i])
		}(i)
	}
	wg.Wait()

	healthy := make([]Backend, 0, len(known))
	for i, b := range known {
		if ok[i] {
			healthy = append(healthy, b)
		}
	}
	return healthy
}

func (m *Monitor) probe(ctx context.Context, b Backend) bool {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()
	if err := m.prober.Probe(ctx, b.Addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"func_name": "Monitor.probe",
			"backend":   b.Name,
		}).Debugf("unhealthy: %v", err)
		return false
	}
	return true
}
