// Package heartbeat implements spec §4.H: periodic liveness probing of
// active job-producer services (online or not), taking unresponsive ones
// offline on a two-strike policy and restoring ones that answer again.
// Grounded on the teacher's errgroup fan-out pattern
// (internal/modules/learning/steps/embed_chunks.go's bounded concurrent
// work) for the per-service HEAD probes.
package heartbeat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencast/servicereg/internal/dispatcher/wireclient"
	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/registry"
	"github.com/opencast/servicereg/internal/store"
)

const maxConcurrentProbes = 16

// Monitor is spec §4.H's Heartbeat Monitor.
type Monitor struct {
	services store.ServiceStore
	manager  registry.Manager
	wire     wireclient.Client
	interval time.Duration
	log      *logger.Logger

	mu        sync.Mutex
	watchlist map[int64]bool

	stop chan struct{}
	done chan struct{}
}

func New(services store.ServiceStore, manager registry.Manager, wire wireclient.Client, interval time.Duration, baseLog *logger.Logger) *Monitor {
	return &Monitor{
		services:  services,
		manager:   manager,
		wire:      wire,
		interval:  interval,
		log:       baseLog.With("component", "HeartbeatMonitor"),
		watchlist: map[int64]bool{},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the monitor loop until Stop is called or ctx is canceled.
// interval <= 0 disables the task (spec §8 boundary behaviour).
func (m *Monitor) Start(ctx context.Context) {
	defer close(m.done)
	if m.interval <= 0 {
		m.log.Info("heartbeat monitor disabled (interval<=0)")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		default:
		}
		m.runTick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-time.After(m.interval):
		}
	}
}

func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("heartbeat tick panicked", "recover", r)
		}
	}()

	dbc := dbctx.New(ctx)
	all, err := m.services.GetAll(dbc)
	if err != nil {
		m.log.Error("failed to list services", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for _, svc := range all {
		svc := svc
		if !svc.IsJobProducer || !svc.Active {
			continue
		}
		g.Go(func() error {
			m.probe(gctx, svc)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) probe(ctx context.Context, svc *domain.ServiceRegistration) {
	statusCode, err := m.wire.Probe(ctx, svc.Host, svc.Path)
	alive := err == nil && statusCode == http.StatusOK

	m.mu.Lock()
	onWatchlist := m.watchlist[svc.ID]
	m.mu.Unlock()

	if alive {
		if onWatchlist {
			m.mu.Lock()
			delete(m.watchlist, svc.ID)
			m.mu.Unlock()
		}
		if !svc.Online {
			dbc := dbctx.New(ctx)
			if err := m.services.UpdateFields(dbc, svc.ID, map[string]interface{}{"online": true}); err != nil {
				m.log.Warn("failed to restore service online", "service_id", svc.ID, "error", err)
				return
			}
			m.log.Info("service back online", "service_type", svc.ServiceType, "host", svc.Host)
		}
		return
	}

	if onWatchlist {
		dbc := dbctx.New(ctx)
		if err := m.manager.UnregisterService(dbc, svc.ServiceType, svc.Host); err != nil {
			m.log.Warn("failed to unregister unresponsive service", "service_type", svc.ServiceType, "host", svc.Host, "error", err)
			return
		}
		m.mu.Lock()
		delete(m.watchlist, svc.ID)
		m.mu.Unlock()
		m.log.Warn("service unregistered after repeated heartbeat failure", "service_type", svc.ServiceType, "host", svc.Host)
		return
	}

	m.mu.Lock()
	m.watchlist[svc.ID] = true
	m.mu.Unlock()
	m.log.Warn("service added to heartbeat watchlist", "service_type", svc.ServiceType, "host", svc.Host, "status_code", statusCode, "error", err)
}
