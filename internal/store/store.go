// Package store declares the persistence contract (spec §1/§6's "external
// collaborators... relational persistence engine") as narrow, named
// interfaces. internal/repos provides the one concrete implementation
// (GORM over Postgres/SQLite). These interfaces expose no gorm types, but
// the packages that open transactions (registry, jobs, dispatcher, load,
// internal/pkg/dbctx) still import gorm directly alongside internal/repos
// and internal/db.
package store

import (
	"time"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
)

// HostStore implements HostRegistration.{byHostName,getAll}. It has no
// separate getMaxLoadByHostName query; MaxLoad is a field of the host row.
type HostStore interface {
	Upsert(dbctx.Context, *domain.HostRegistration) (*domain.HostRegistration, error)
	ByBaseURL(dbctx.Context, string) (*domain.HostRegistration, error)
	GetAll(dbctx.Context) ([]*domain.HostRegistration, error)
	UpdateFields(dbctx.Context, int64, map[string]interface{}) error
}

// ServiceStore implements ServiceRegistration.{getRegistration,getAll,
// getAllOnline,getByType,getByHost}, relatedservices.warning_error (as
// RelatedWarningOrError) and Job.count.history.failed (as
// CountFailedHistory). It has no hostloads, statistics or countNotNormal
// queries; host loads are computed by internal/load.
type ServiceStore interface {
	Upsert(dbctx.Context, *domain.ServiceRegistration) (*domain.ServiceRegistration, error)
	Get(dbc dbctx.Context, serviceType, host string) (*domain.ServiceRegistration, error)
	GetByID(dbctx.Context, int64) (*domain.ServiceRegistration, error)
	GetAll(dbctx.Context) ([]*domain.ServiceRegistration, error)
	GetAllOnline(dbctx.Context) ([]*domain.ServiceRegistration, error)
	GetByType(dbctx.Context, string) ([]*domain.ServiceRegistration, error)
	GetByHost(dbctx.Context, string) ([]*domain.ServiceRegistration, error)
	UpdateFields(dbctx.Context, int64, map[string]interface{}) error
	// RelatedWarningOrError returns services of jobType whose
	// warningStateTrigger or errorStateTrigger equals signature, excluding
	// excludeID. Never nil (spec §9(b)): empty slice on no match.
	RelatedWarningOrError(dbctx dbctx.Context, jobType string, signature int64, excludeID int64) ([]*domain.ServiceRegistration, error)
	CountFailedHistory(dbc dbctx.Context, serviceType, host string) (int64, error)
}

// JobStore implements the named queries of spec §6:
// Job.dispatchable.status, Job.processinghost.status,
// Job.undispatchable.status, Job.children, Job.root.children,
// Job.withoutParent, Job.count*. Job.count.history.failed is
// ServiceStore.CountFailedHistory.
type JobStore interface {
	Create(dbctx.Context, *domain.Job) (*domain.Job, error)
	GetByID(dbctx.Context, int64) (*domain.Job, error)
	// UpdateOptimistic applies updates WHERE id=? AND version=expectedVersion,
	// bumping version by 1. Returns false (no error) if the row's version
	// had already moved — the optimistic-lock conflict spec §5 requires the
	// dispatcher to treat as UndispatchableJob, never a raw store error.
	UpdateOptimistic(dbc dbctx.Context, id int64, expectedVersion int64, updates map[string]interface{}) (bool, error)
	UpdateFields(dbctx.Context, int64, map[string]interface{}) error
	Delete(dbctx.Context, int64) error

	Dispatchable(dbctx.Context, []domain.JobStatus) ([]*domain.Job, error)
	ByProcessingHost(dbc dbctx.Context, statuses []domain.JobStatus, serviceType, host string) ([]*domain.Job, error)
	Undispatchable(dbc dbctx.Context, statuses []domain.JobStatus, localHost string) ([]*domain.Job, error)
	Children(dbctx.Context, int64) ([]*domain.Job, error)
	RootChildren(dbctx.Context, int64) ([]*domain.Job, error)
	WithoutParent(dbctx.Context) ([]*domain.Job, error)

	CountAll(dbctx.Context) (int64, error)
	CountByHost(dbc dbctx.Context, host string) (int64, error)
	CountByOperation(dbc dbctx.Context, jobType, operation string) (int64, error)
	CountByStatus(dbc dbctx.Context, status domain.JobStatus) (int64, error)
	CountPerHostService(dbc dbctx.Context, serviceType, host, operation string, status domain.JobStatus) (int64, error)
	AvgOperationDuration(dbc dbctx.Context, jobType, operation string) (time.Duration, error)

	ByTypeAndStatus(dbc dbctx.Context, jobType string, status domain.JobStatus) ([]*domain.Job, error)
}

// JobEventStore implements the append-only job timeline (§10 supplemented feature).
type JobEventStore interface {
	Append(dbctx.Context, *domain.JobEvent) error
	ForJob(dbc dbctx.Context, jobID int64) ([]*domain.JobEvent, error)
}
