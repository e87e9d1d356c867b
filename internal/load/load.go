// Package load implements spec §4.D (Load Accounting): SystemLoad, the
// per-host sum of jobLoad for jobs in load-influencing statuses.
package load

import (
	"context"

	"gorm.io/gorm"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/store"
)

// SystemLoad maps host base URL -> current load factor.
type SystemLoad map[string]float64

// Accountant computes SystemLoad from the store.
type Accountant interface {
	HostLoads(ctx context.Context, activeOnly bool) (SystemLoad, error)
}

type accountant struct {
	db       *gorm.DB
	hosts    store.HostStore
	services store.ServiceStore
	jobs     store.JobStore
	log      *logger.Logger
}

func NewAccountant(db *gorm.DB, hosts store.HostStore, services store.ServiceStore, jobs store.JobStore, baseLog *logger.Logger) Accountant {
	return &accountant{db: db, hosts: hosts, services: services, jobs: jobs, log: baseLog.With("component", "LoadAccountant")}
}

// HostLoads computes SystemLoad per spec §4.D: sums jobLoad over jobs in
// LoadInfluencingStatuses grouped by processor host, excluding
// workflow-typed jobs (workflow schedules itself, not load-balanced here).
// Every registered host appears with a default of 0 if it has no current
// load. When activeOnly, hosts that are offline or in maintenance get no
// entry at all, and jobs whose processor service is inactive or offline
// contribute zero.
func (a *accountant) HostLoads(ctx context.Context, activeOnly bool) (SystemLoad, error) {
	dbc := dbctx.New(ctx)
	result := SystemLoad{}

	hosts, err := a.hosts.GetAll(dbc)
	if err != nil {
		return nil, err
	}
	hostByBaseURL := map[string]*domain.HostRegistration{}
	for _, h := range hosts {
		hostByBaseURL[h.BaseURL] = h
		if !activeOnly || (h.Online && !h.MaintenanceMode) {
			result[h.BaseURL] = 0
		}
	}

	services, err := a.services.GetAll(dbc)
	if err != nil {
		return nil, err
	}
	serviceByID := map[int64]*domain.ServiceRegistration{}
	for _, s := range services {
		serviceByID[s.ID] = s
	}

	for status := range domain.LoadInfluencingStatuses {
		jobs, err := a.jobs.ByTypeAndStatus(dbc, "", status)
		if err != nil {
			return nil, err
		}
		for _, j := range jobs {
			if j.IsWorkflow() || j.ProcessorServiceRegistrationID == nil {
				continue
			}
			svc, ok := serviceByID[*j.ProcessorServiceRegistrationID]
			if !ok {
				continue
			}
			if activeOnly {
				host := hostByBaseURL[svc.Host]
				if host == nil || !host.Online || host.MaintenanceMode || !svc.Active || !svc.Online {
					continue
				}
			}
			result[svc.Host] += j.JobLoad
		}
	}
	return result, nil
}
