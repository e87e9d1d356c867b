package load

import (
	"testing"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/repos"
	"github.com/opencast/servicereg/internal/repos/testutil"
)

func TestAccountant_HostLoads_SumsJobLoadByProcessorHost(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	dbc := dbctx.New(t.Context())

	hostRepo := repos.NewHostRepo(db, log)
	serviceRepo := repos.NewServiceRepo(db, log)
	jobRepo := repos.NewJobRepo(db, log)

	host, err := hostRepo.Upsert(dbc, &domain.HostRegistration{BaseURL: "http://worker1", Online: true, Active: true, MaxLoad: 4})
	if err != nil {
		t.Fatalf("Upsert host: %v", err)
	}
	svc, err := serviceRepo.Upsert(dbc, &domain.ServiceRegistration{ServiceType: "org.opencastproject.composer", Host: host.BaseURL, HostRegistrationID: host.ID, Online: true, Active: true})
	if err != nil {
		t.Fatalf("Upsert service: %v", err)
	}

	running := &domain.Job{JobType: "org.opencastproject.composer", Operation: "encode", Status: domain.JobRunning, JobLoad: 1.5, Creator: "c", Organization: "org", CreatorServiceRegistrationID: svc.ID, ProcessorServiceRegistrationID: &svc.ID}
	queued := &domain.Job{JobType: "org.opencastproject.composer", Operation: "encode", Status: domain.JobQueued, JobLoad: 0.5, Creator: "c", Organization: "org", CreatorServiceRegistrationID: svc.ID, ProcessorServiceRegistrationID: &svc.ID}
	workflow := &domain.Job{JobType: domain.WorkflowJobType, Operation: "start", Status: domain.JobRunning, JobLoad: 99, Creator: "c", Organization: "org", CreatorServiceRegistrationID: svc.ID, ProcessorServiceRegistrationID: &svc.ID}
	if _, err := jobRepo.Create(dbc, running); err != nil {
		t.Fatalf("Create running: %v", err)
	}
	if _, err := jobRepo.Create(dbc, queued); err != nil {
		t.Fatalf("Create queued: %v", err)
	}
	if _, err := jobRepo.Create(dbc, workflow); err != nil {
		t.Fatalf("Create workflow: %v", err)
	}

	accountant := NewAccountant(db, hostRepo, serviceRepo, jobRepo, log)
	loads, err := accountant.HostLoads(t.Context(), false)
	if err != nil {
		t.Fatalf("HostLoads: %v", err)
	}
	if got := loads["http://worker1"]; got != 2.0 {
		t.Fatalf("expected load 2.0 (workflow excluded), got %v", got)
	}
}

func TestAccountant_HostLoads_ActiveOnlyExcludesMaintenanceHosts(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	dbc := dbctx.New(t.Context())

	hostRepo := repos.NewHostRepo(db, log)
	serviceRepo := repos.NewServiceRepo(db, log)
	jobRepo := repos.NewJobRepo(db, log)

	host, err := hostRepo.Upsert(dbc, &domain.HostRegistration{BaseURL: "http://worker2", Online: true, Active: true, MaxLoad: 4})
	if err != nil {
		t.Fatalf("Upsert host: %v", err)
	}
	if err := hostRepo.UpdateFields(dbc, host.ID, map[string]interface{}{"maintenance_mode": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	svc, err := serviceRepo.Upsert(dbc, &domain.ServiceRegistration{ServiceType: "t", Host: host.BaseURL, HostRegistrationID: host.ID, Online: true, Active: true})
	if err != nil {
		t.Fatalf("Upsert service: %v", err)
	}
	j := &domain.Job{JobType: "t", Operation: "op", Status: domain.JobRunning, JobLoad: 1, Creator: "c", Organization: "org", CreatorServiceRegistrationID: svc.ID, ProcessorServiceRegistrationID: &svc.ID}
	if _, err := jobRepo.Create(dbc, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	accountant := NewAccountant(db, hostRepo, serviceRepo, jobRepo, log)
	loads, err := accountant.HostLoads(t.Context(), true)
	if err != nil {
		t.Fatalf("HostLoads: %v", err)
	}
	if _, present := loads["http://worker2"]; present {
		t.Fatalf("expected maintenance-mode host to be excluded from activeOnly loads, got %v", loads)
	}
}
