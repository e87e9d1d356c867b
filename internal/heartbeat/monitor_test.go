package heartbeat

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/opencast/servicereg/internal/dispatcher/wireclient"
	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/repos/testutil"
)

type fakeServices struct {
	mu      sync.Mutex
	all     []*domain.ServiceRegistration
	updates map[int64]map[string]interface{}
}

func newFakeServices(services ...*domain.ServiceRegistration) *fakeServices {
	return &fakeServices{all: services, updates: map[int64]map[string]interface{}{}}
}

func (f *fakeServices) Upsert(dbctx.Context, *domain.ServiceRegistration) (*domain.ServiceRegistration, error) {
	return nil, nil
}
func (f *fakeServices) Get(dbctx.Context, string, string) (*domain.ServiceRegistration, error) {
	return nil, nil
}
func (f *fakeServices) GetByID(dbctx.Context, int64) (*domain.ServiceRegistration, error) {
	return nil, nil
}
func (f *fakeServices) GetAll(dbctx.Context) ([]*domain.ServiceRegistration, error) {
	return f.all, nil
}
func (f *fakeServices) GetAllOnline(dbctx.Context) ([]*domain.ServiceRegistration, error) {
	var out []*domain.ServiceRegistration
	for _, svc := range f.all {
		if svc.Online {
			out = append(out, svc)
		}
	}
	return out, nil
}
func (f *fakeServices) GetByType(dbctx.Context, string) ([]*domain.ServiceRegistration, error) {
	return nil, nil
}
func (f *fakeServices) GetByHost(dbctx.Context, string) ([]*domain.ServiceRegistration, error) {
	return nil, nil
}
func (f *fakeServices) UpdateFields(_ dbctx.Context, id int64, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = updates
	return nil
}
func (f *fakeServices) RelatedWarningOrError(dbctx.Context, string, int64, int64) ([]*domain.ServiceRegistration, error) {
	return []*domain.ServiceRegistration{}, nil
}
func (f *fakeServices) CountFailedHistory(dbctx.Context, string, string) (int64, error) { return 0, nil }

func (f *fakeServices) updatesFor(id int64) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[id]
}

type fakeManager struct {
	mu          sync.Mutex
	unregistered []string
}

func (f *fakeManager) RegisterHost(dbctx.Context, string, string, int64, int, float64) (*domain.HostRegistration, error) {
	return nil, nil
}
func (f *fakeManager) UnregisterHost(dbctx.Context, string) error { return nil }
func (f *fakeManager) EnableHost(dbctx.Context, string) error     { return nil }
func (f *fakeManager) DisableHost(dbctx.Context, string) error    { return nil }
func (f *fakeManager) SetMaintenanceStatus(dbctx.Context, string, bool) error { return nil }
func (f *fakeManager) RegisterService(dbctx.Context, string, string, string, bool) (*domain.ServiceRegistration, error) {
	return nil, nil
}
func (f *fakeManager) UnregisterService(_ dbctx.Context, serviceType, host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, serviceType+"@"+host)
	return nil
}

type fakeWire struct {
	statusByHost map[string]int
}

func (f *fakeWire) Dispatch(context.Context, string, string, []byte, string, string) (wireclient.Outcome, int, error) {
	return wireclient.OutcomeUnknown, 0, nil
}
func (f *fakeWire) Probe(_ context.Context, host, _ string) (int, error) {
	if code, ok := f.statusByHost[host]; ok {
		return code, nil
	}
	return http.StatusServiceUnavailable, nil
}

func TestMonitor_Probe_AliveServiceStaysOffWatchlist(t *testing.T) {
	svc := &domain.ServiceRegistration{ID: 1, ServiceType: "t", Host: "http://worker1", Path: "/p", Online: true, IsJobProducer: true, Active: true}
	services := newFakeServices(svc)
	manager := &fakeManager{}
	wire := &fakeWire{statusByHost: map[string]int{"http://worker1": http.StatusOK}}

	m := New(services, manager, wire, 0, testutil.Logger(t))
	m.runTick(t.Context())

	if m.watchlist[svc.ID] {
		t.Fatalf("expected an alive service to never be on the watchlist")
	}
	if len(manager.unregistered) != 0 {
		t.Fatalf("expected no unregistrations for an alive service")
	}
}

func TestMonitor_Probe_FirstFailureAddsToWatchlist(t *testing.T) {
	svc := &domain.ServiceRegistration{ID: 1, ServiceType: "t", Host: "http://worker1", Path: "/p", Online: true, IsJobProducer: true, Active: true}
	services := newFakeServices(svc)
	manager := &fakeManager{}
	wire := &fakeWire{statusByHost: map[string]int{}}

	m := New(services, manager, wire, 0, testutil.Logger(t))
	m.runTick(t.Context())

	if !m.watchlist[svc.ID] {
		t.Fatalf("expected the first heartbeat failure to add the service to the watchlist")
	}
	if len(manager.unregistered) != 0 {
		t.Fatalf("expected no unregistration on the first failure")
	}
}

func TestMonitor_Probe_SecondConsecutiveFailureUnregisters(t *testing.T) {
	svc := &domain.ServiceRegistration{ID: 1, ServiceType: "t", Host: "http://worker1", Path: "/p", Online: true, IsJobProducer: true, Active: true}
	services := newFakeServices(svc)
	manager := &fakeManager{}
	wire := &fakeWire{statusByHost: map[string]int{}}

	m := New(services, manager, wire, 0, testutil.Logger(t))
	m.runTick(t.Context())
	m.runTick(t.Context())

	if len(manager.unregistered) != 1 || manager.unregistered[0] != "t@http://worker1" {
		t.Fatalf("expected the service unregistered after a second consecutive failure, got %v", manager.unregistered)
	}
	if m.watchlist[svc.ID] {
		t.Fatalf("expected the watchlist entry cleared after unregistration")
	}
}

func TestMonitor_Probe_RecoveryRestoresOnlineAndClearsWatchlist(t *testing.T) {
	svc := &domain.ServiceRegistration{ID: 1, ServiceType: "t", Host: "http://worker1", Path: "/p", Online: false, IsJobProducer: true, Active: true}
	services := newFakeServices(svc)
	manager := &fakeManager{}
	wire := &fakeWire{statusByHost: map[string]int{}}

	m := New(services, manager, wire, 0, testutil.Logger(t))
	m.watchlist[svc.ID] = true

	wire.statusByHost["http://worker1"] = http.StatusOK
	m.runTick(t.Context())

	if m.watchlist[svc.ID] {
		t.Fatalf("expected watchlist cleared on recovery")
	}
	updates := services.updatesFor(svc.ID)
	if updates == nil || updates["online"] != true {
		t.Fatalf("expected service.online restored to true, got %v", updates)
	}
}

func TestMonitor_Probe_OfflineServiceIsProbedAndLeftOfflineWhenUnreachable(t *testing.T) {
	svc := &domain.ServiceRegistration{ID: 1, ServiceType: "t", Host: "http://worker1", Path: "/p", Online: false, IsJobProducer: true, Active: true}
	services := newFakeServices(svc)
	manager := &fakeManager{}
	wire := &fakeWire{statusByHost: map[string]int{}}

	m := New(services, manager, wire, 0, testutil.Logger(t))
	m.runTick(t.Context())

	if !m.watchlist[svc.ID] {
		t.Fatalf("expected an unreachable offline service to land on the watchlist")
	}
	if updates := services.updatesFor(svc.ID); updates != nil {
		t.Fatalf("expected no store update for a service that never answers, got %v", updates)
	}
}

func TestMonitor_Start_DisabledWhenIntervalZero(t *testing.T) {
	services := newFakeServices()
	manager := &fakeManager{}
	wire := &fakeWire{}
	m := New(services, manager, wire, 0, testutil.Logger(t))

	done := make(chan struct{})
	go func() {
		m.Start(t.Context())
		close(done)
	}()
	<-done // Start must return immediately when interval<=0, never block.
}
