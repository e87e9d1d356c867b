// Package registry implements spec §4.C (Registration Manager): host and
// service registration/unregistration, enable/disable, maintenance mode,
// and the "clean running jobs" sweep that runs on registration churn.
package registry

import (
	"gorm.io/gorm"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/regerrors"
	"github.com/opencast/servicereg/internal/registryevents"
	"github.com/opencast/servicereg/internal/store"
)

// Manager is spec §4.C's Registration Manager.
type Manager interface {
	RegisterHost(dbc dbctx.Context, baseURL, ipAddress string, memory int64, cores int, maxLoad float64) (*domain.HostRegistration, error)
	UnregisterHost(dbc dbctx.Context, baseURL string) error
	EnableHost(dbc dbctx.Context, baseURL string) error
	DisableHost(dbc dbctx.Context, baseURL string) error
	SetMaintenanceStatus(dbc dbctx.Context, baseURL string, inMaintenance bool) error
	RegisterService(dbc dbctx.Context, serviceType, host, path string, isJobProducer bool) (*domain.ServiceRegistration, error)
	UnregisterService(dbc dbctx.Context, serviceType, host string) error
}

type manager struct {
	db       *gorm.DB
	hosts    store.HostStore
	services store.ServiceStore
	jobs     store.JobStore
	events   *registryevents.Bus
	log      *logger.Logger
}

func NewManager(db *gorm.DB, hosts store.HostStore, services store.ServiceStore, jobs store.JobStore, events *registryevents.Bus, baseLog *logger.Logger) Manager {
	return &manager{
		db:       db,
		hosts:    hosts,
		services: services,
		jobs:     jobs,
		events:   events,
		log:      baseLog.With("component", "Registry"),
	}
}

func (m *manager) RegisterHost(dbc dbctx.Context, baseURL, ipAddress string, memory int64, cores int, maxLoad float64) (*domain.HostRegistration, error) {
	if baseURL == "" {
		return nil, regerrors.IllegalArgument("baseURL")
	}
	h := &domain.HostRegistration{
		BaseURL:   baseURL,
		IPAddress: ipAddress,
		Memory:    memory,
		Cores:     cores,
		MaxLoad:   maxLoad,
		Online:    true,
		Active:    true,
	}
	out, err := m.hosts.Upsert(dbc, h)
	if err != nil {
		return nil, regerrors.Registry("registerHost", err)
	}
	m.log.Info("host registered", "base_url", baseURL, "cores", cores, "max_load", maxLoad)
	m.events.PublishHostOnline(dbc.Ctx, baseURL, true)
	return out, nil
}

// UnregisterHost sets online=false and unregisters every service on it
// (spec §4.C).
func (m *manager) UnregisterHost(dbc dbctx.Context, baseURL string) error {
	err := m.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)
		host, err := m.hosts.ByBaseURL(scoped, baseURL)
		if err != nil {
			return err
		}
		if host == nil {
			return regerrors.NotFound("HostRegistration", baseURL)
		}
		if err := m.hosts.UpdateFields(scoped, host.ID, map[string]interface{}{"online": false}); err != nil {
			return err
		}
		services, err := m.services.GetByHost(scoped, baseURL)
		if err != nil {
			return err
		}
		for _, svc := range services {
			if err := m.unregisterServiceLocked(scoped, svc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*regerrors.NotFoundError); ok {
			return err
		}
		return regerrors.Registry("unregisterHost", err)
	}
	m.events.PublishHostOnline(dbc.Ctx, baseURL, false)
	return nil
}

func (m *manager) EnableHost(dbc dbctx.Context, baseURL string) error {
	return m.setHostActive(dbc, baseURL, true)
}

func (m *manager) DisableHost(dbc dbctx.Context, baseURL string) error {
	return m.setHostActive(dbc, baseURL, false)
}

// setHostActive flips HostRegistration.active and propagates it onto every
// owned ServiceRegistration.active, per spec §4.C.
func (m *manager) setHostActive(dbc dbctx.Context, baseURL string, active bool) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)
		host, err := m.hosts.ByBaseURL(scoped, baseURL)
		if err != nil {
			return regerrors.Registry("setHostActive", err)
		}
		if host == nil {
			return regerrors.NotFound("HostRegistration", baseURL)
		}
		if err := m.hosts.UpdateFields(scoped, host.ID, map[string]interface{}{"active": active}); err != nil {
			return regerrors.Registry("setHostActive", err)
		}
		services, err := m.services.GetByHost(scoped, baseURL)
		if err != nil {
			return regerrors.Registry("setHostActive", err)
		}
		for _, svc := range services {
			if err := m.services.UpdateFields(scoped, svc.ID, map[string]interface{}{"active": active}); err != nil {
				return regerrors.Registry("setHostActive", err)
			}
		}
		return nil
	})
}

// SetMaintenanceStatus fails with NotFound if host is absent, and is
// idempotent (spec §8): when the host already has the requested value it
// returns without writing.
func (m *manager) SetMaintenanceStatus(dbc dbctx.Context, baseURL string, inMaintenance bool) error {
	host, err := m.hosts.ByBaseURL(dbc, baseURL)
	if err != nil {
		return regerrors.Registry("setMaintenanceStatus", err)
	}
	if host == nil {
		return regerrors.NotFound("HostRegistration", baseURL)
	}
	if host.MaintenanceMode == inMaintenance {
		return nil
	}
	if err := m.hosts.UpdateFields(dbc, host.ID, map[string]interface{}{"maintenance_mode": inMaintenance}); err != nil {
		return regerrors.Registry("setMaintenanceStatus", err)
	}
	return nil
}

// RegisterService upserts a (type, host) row. On an existing row it runs
// the clean-running-jobs sweep before setting online=true, since a
// re-registration means the previous process instance restarted and any
// job it claimed is now orphaned.
func (m *manager) RegisterService(dbc dbctx.Context, serviceType, host, path string, isJobProducer bool) (*domain.ServiceRegistration, error) {
	if serviceType == "" || host == "" {
		return nil, regerrors.IllegalArgument("serviceType/host")
	}
	var out *domain.ServiceRegistration
	err := m.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)
		existing, err := m.services.Get(scoped, serviceType, host)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := m.cleanRunningJobs(scoped, existing); err != nil {
				return err
			}
		}
		hostReg, err := m.hosts.ByBaseURL(scoped, host)
		if err != nil {
			return err
		}
		if hostReg == nil {
			return regerrors.NotFound("HostRegistration", host)
		}
		svc := &domain.ServiceRegistration{
			ServiceType:        serviceType,
			Host:               host,
			HostRegistrationID: hostReg.ID,
			Path:               path,
			IsJobProducer:      isJobProducer,
			Online:             true,
			Active:             true,
		}
		out, err = m.services.Upsert(scoped, svc)
		return err
	})
	if err != nil {
		return nil, regerrors.Registry("registerService", err)
	}
	m.log.Info("service registered", "type", serviceType, "host", host, "path", path)
	m.events.PublishServiceOnline(dbc.Ctx, serviceType, host, true)
	return out, nil
}

// UnregisterService sets online=false and runs the clean-running-jobs
// sweep (spec §4.C).
func (m *manager) UnregisterService(dbc dbctx.Context, serviceType, host string) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)
		svc, err := m.services.Get(scoped, serviceType, host)
		if err != nil {
			return regerrors.Registry("unregisterService", err)
		}
		if svc == nil {
			return regerrors.NotFound("ServiceRegistration", serviceType+"@"+host)
		}
		return m.unregisterServiceLocked(scoped, svc)
	})
}

func (m *manager) unregisterServiceLocked(dbc dbctx.Context, svc *domain.ServiceRegistration) error {
	if err := m.services.UpdateFields(dbc, svc.ID, map[string]interface{}{"online": false}); err != nil {
		return err
	}
	if err := m.cleanRunningJobs(dbc, svc); err != nil {
		return err
	}
	m.events.PublishServiceOnline(dbc.Ctx, svc.ServiceType, svc.Host, false)
	return nil
}

// cleanRunningJobs is spec §4.C's sweep: for every job with status in
// {RUNNING, DISPATCHING, WAITING} whose processor is svc, dispatchable
// jobs are recursively un-wound (children CANCELED, job RESTARTed with
// processor cleared; if the job's root is PAUSED the root is RESTARTed
// with operation=START_OPERATION after its own children are canceled),
// non-dispatchable jobs are FAILED outright since no one else can run them.
func (m *manager) cleanRunningJobs(dbc dbctx.Context, svc *domain.ServiceRegistration) error {
	statuses := []domain.JobStatus{domain.JobRunning, domain.JobDispatching, domain.JobWaiting}
	jobs, err := m.jobs.ByProcessingHost(dbc, statuses, svc.ServiceType, svc.Host)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := m.unwindJob(dbc, j); err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) unwindJob(dbc dbctx.Context, j *domain.Job) error {
	if !j.Dispatchable {
		return m.jobs.UpdateFields(dbc, j.ID, map[string]interface{}{
			"status": domain.JobFailed,
		})
	}
	if err := m.cancelChildren(dbc, j.ID); err != nil {
		return err
	}
	if j.RootJobID != nil {
		root, err := m.jobs.GetByID(dbc, *j.RootJobID)
		if err != nil {
			return err
		}
		if root != nil && root.Status == domain.JobPaused {
			if err := m.cancelChildren(dbc, root.ID); err != nil {
				return err
			}
			if err := m.jobs.UpdateFields(dbc, root.ID, map[string]interface{}{
				"status":    domain.JobRestart,
				"operation": domain.OperationStart,
			}); err != nil {
				return err
			}
		}
	}
	return m.jobs.UpdateFields(dbc, j.ID, map[string]interface{}{
		"status":                            domain.JobRestart,
		"processor_service_registration_id": nil,
	})
}

func (m *manager) cancelChildren(dbc dbctx.Context, parentID int64) error {
	children, err := m.jobs.Children(dbc, parentID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := m.cancelChildren(dbc, c.ID); err != nil {
			return err
		}
		if err := m.jobs.UpdateFields(dbc, c.ID, map[string]interface{}{"status": domain.JobCanceled}); err != nil {
			return err
		}
	}
	return nil
}
