package registry

import (
	"testing"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/regerrors"
	"github.com/opencast/servicereg/internal/repos"
	"github.com/opencast/servicereg/internal/repos/testutil"
	"github.com/opencast/servicereg/internal/store"
)

// testStores exposes the concrete repos a test seeded, so it can assert on
// rows the Manager wrote without re-deriving its own db handle.
type testStores struct {
	Hosts    store.HostStore
	Services store.ServiceStore
	Jobs     store.JobStore
}

func newTestManager(t *testing.T) (Manager, *testStores) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	hostRepo := repos.NewHostRepo(db, log)
	serviceRepo := repos.NewServiceRepo(db, log)
	jobRepo := repos.NewJobRepo(db, log)
	return NewManager(db, hostRepo, serviceRepo, jobRepo, nil, log), &testStores{Hosts: hostRepo, Services: serviceRepo, Jobs: jobRepo}
}

func TestManager_RegisterAndUnregisterHost(t *testing.T) {
	mgr, fx := newTestManager(t)
	dbc := dbctx.New(t.Context())

	host, err := mgr.RegisterHost(dbc, "http://worker1", "10.0.0.1", 0, 4, 4)
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}
	if !host.Online {
		t.Fatalf("expected newly registered host to be online")
	}

	if _, err := mgr.RegisterService(dbc, "org.opencastproject.composer", host.BaseURL, "/encode", false); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}

	if err := mgr.UnregisterHost(dbc, host.BaseURL); err != nil {
		t.Fatalf("UnregisterHost: %v", err)
	}

	after, err := fx.Hosts.ByBaseURL(dbc, host.BaseURL)
	if err != nil || after == nil {
		t.Fatalf("ByBaseURL after unregister: host=%v err=%v", after, err)
	}
	if after.Online {
		t.Fatalf("expected host offline after UnregisterHost")
	}
	svc, err := fx.Services.Get(dbc, "org.opencastproject.composer", host.BaseURL)
	if err != nil || svc == nil {
		t.Fatalf("Get service: svc=%v err=%v", svc, err)
	}
	if svc.Online {
		t.Fatalf("expected owned service offline after host unregistration")
	}
}

func TestManager_UnregisterHost_NotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	dbc := dbctx.New(t.Context())

	err := mgr.UnregisterHost(dbc, "http://does-not-exist")
	if err == nil {
		t.Fatalf("expected an error for an unknown host")
	}
	if _, ok := err.(*regerrors.NotFoundError); !ok {
		t.Fatalf("expected a NotFoundError, got %T: %v", err, err)
	}
}

func TestManager_DisableHost_PropagatesToServices(t *testing.T) {
	mgr, fx := newTestManager(t)
	dbc := dbctx.New(t.Context())

	host, err := mgr.RegisterHost(dbc, "http://worker1", "10.0.0.1", 0, 4, 4)
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}
	if _, err := mgr.RegisterService(dbc, "t", host.BaseURL, "/p", false); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}

	if err := mgr.DisableHost(dbc, host.BaseURL); err != nil {
		t.Fatalf("DisableHost: %v", err)
	}

	svc, err := fx.Services.Get(dbc, "t", host.BaseURL)
	if err != nil || svc == nil {
		t.Fatalf("Get service: svc=%v err=%v", svc, err)
	}
	if svc.Active {
		t.Fatalf("expected service.active=false after DisableHost")
	}
}

func TestManager_UnregisterService_UnwindsDispatchableJobs(t *testing.T) {
	mgr, fx := newTestManager(t)
	dbc := dbctx.New(t.Context())

	host, err := mgr.RegisterHost(dbc, "http://worker1", "10.0.0.1", 0, 4, 4)
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}
	svc, err := mgr.RegisterService(dbc, "org.opencastproject.composer", host.BaseURL, "/encode", false)
	if err != nil {
		t.Fatalf("RegisterService: %v", err)
	}

	running := &domain.Job{
		JobType:                        "org.opencastproject.composer",
		Operation:                      "encode",
		Status:                         domain.JobRunning,
		Dispatchable:                   true,
		Creator:                        "c",
		Organization:                   "org",
		CreatorServiceRegistrationID:   svc.ID,
		ProcessorServiceRegistrationID: &svc.ID,
	}
	if _, err := fx.Jobs.Create(dbc, running); err != nil {
		t.Fatalf("seed running job: %v", err)
	}

	if err := mgr.UnregisterService(dbc, svc.ServiceType, svc.Host); err != nil {
		t.Fatalf("UnregisterService: %v", err)
	}

	after, err := fx.Jobs.GetByID(dbc, running.ID)
	if err != nil || after == nil {
		t.Fatalf("GetByID: job=%v err=%v", after, err)
	}
	if after.Status != domain.JobRestart {
		t.Fatalf("expected dispatchable job unwound to RESTART, got %s", after.Status)
	}
	if after.ProcessorServiceRegistrationID != nil {
		t.Fatalf("expected processor cleared after unwind")
	}
}

func TestManager_UnregisterService_FailsNonDispatchableJobs(t *testing.T) {
	mgr, fx := newTestManager(t)
	dbc := dbctx.New(t.Context())

	host, err := mgr.RegisterHost(dbc, "http://worker1", "10.0.0.1", 0, 4, 4)
	if err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}
	svc, err := mgr.RegisterService(dbc, "t", host.BaseURL, "/p", false)
	if err != nil {
		t.Fatalf("RegisterService: %v", err)
	}

	running := &domain.Job{
		JobType:                        "t",
		Operation:                      "op",
		Status:                         domain.JobRunning,
		Dispatchable:                   false,
		Creator:                        "c",
		Organization:                   "org",
		CreatorServiceRegistrationID:   svc.ID,
		ProcessorServiceRegistrationID: &svc.ID,
	}
	if _, err := fx.Jobs.Create(dbc, running); err != nil {
		t.Fatalf("seed running job: %v", err)
	}

	if err := mgr.UnregisterService(dbc, svc.ServiceType, svc.Host); err != nil {
		t.Fatalf("UnregisterService: %v", err)
	}

	after, err := fx.Jobs.GetByID(dbc, running.ID)
	if err != nil || after == nil {
		t.Fatalf("GetByID: job=%v err=%v", after, err)
	}
	if after.Status != domain.JobFailed {
		t.Fatalf("expected non-dispatchable job to FAIL outright, got %s", after.Status)
	}
}
