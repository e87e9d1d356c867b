// Package jobs implements spec §4.E (Job Lifecycle): create, update,
// delete-with-cascade, and the query surface the dispatcher and
// statistics feeds read from.
package jobs

import (
	"time"

	"gorm.io/gorm"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/regerrors"
	"github.com/opencast/servicereg/internal/store"
)

// HealthNotifier is the seam into the Service-Health state machine
// (Component G), per spec §4.E ("hands the update to the Service-Health
// state machine"). UpdateJob calls it only when a non-workflow job's
// status changes to FINISHED or FAILED; other status changes, CANCELED
// included, are not passed on.
// Accepting an interface here (rather than importing internal/health
// directly) keeps the dependency direction one-way: health never imports
// jobs.
type HealthNotifier interface {
	OnJobFinished(dbc dbctx.Context, j *domain.Job) error
	OnJobFailed(dbc dbctx.Context, j *domain.Job) error
}

// Lifecycle is spec §4.E's Job Lifecycle component.
type Lifecycle interface {
	CreateJob(dbc dbctx.Context, in CreateJobInput) (*domain.Job, error)
	UpdateJob(dbc dbctx.Context, j *domain.Job) error
	RemoveJob(dbc dbctx.Context, id int64) error
	RemoveParentlessJobs(dbc dbctx.Context, lifetimeDays int) (int, error)

	GetByID(dbc dbctx.Context, id int64) (*domain.Job, error)
	Dispatchable(dbc dbctx.Context) ([]*domain.Job, error)
	Children(dbc dbctx.Context, id int64) ([]*domain.Job, error)
	RootChildren(dbc dbctx.Context, rootID int64) ([]*domain.Job, error)
	CountByHost(dbc dbctx.Context, host string) (int64, error)
	CountByOperation(dbc dbctx.Context, jobType, operation string) (int64, error)
	CountByStatus(dbc dbctx.Context, status domain.JobStatus) (int64, error)
}

// CreateJobInput is the argument set for spec §4.E's createJob.
type CreateJobInput struct {
	CreatorServiceType string
	CreatorHost        string
	JobType            string
	Operation          string
	Arguments          []string
	Payload            string
	Dispatchable       bool
	ParentJobID        *int64
	JobLoad            float64
	Creator            string
	Organization       string
}

type lifecycle struct {
	db       *gorm.DB
	jobs     store.JobStore
	services store.ServiceStore
	hosts    store.HostStore
	events   store.JobEventStore
	health   HealthNotifier
	log      *logger.Logger
}

func NewLifecycle(db *gorm.DB, jobs store.JobStore, services store.ServiceStore, hosts store.HostStore, events store.JobEventStore, health HealthNotifier, baseLog *logger.Logger) Lifecycle {
	return &lifecycle{
		db:       db,
		jobs:     jobs,
		services: services,
		hosts:    hosts,
		events:   events,
		health:   health,
		log:      baseLog.With("component", "JobLifecycle"),
	}
}

// CreateJob fails with ServiceRegistryError if no service registration
// exists for (type, host). Warns but proceeds when the creating service's
// host is in maintenance/inactive. If dispatchable, status=QUEUED with no
// processor; otherwise status=INSTANTIATED pinned to the creating service.
// Binds parent and resolves root: a job with no parent is its own root; a
// job whose parent has no root (parent is itself a root) resolves root to
// the parent; otherwise root = parent's root.
func (l *lifecycle) CreateJob(dbc dbctx.Context, in CreateJobInput) (*domain.Job, error) {
	if in.JobType == "" || in.Operation == "" {
		return nil, regerrors.IllegalArgument("jobType/operation")
	}
	if in.CreatorServiceType == "" || in.CreatorHost == "" {
		return nil, regerrors.IllegalArgument("creatorServiceType/creatorHost")
	}

	var created *domain.Job
	err := l.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)

		creatorSvc, err := l.services.Get(scoped, in.CreatorServiceType, in.CreatorHost)
		if err != nil {
			return regerrors.Registry("createJob", err)
		}
		if creatorSvc == nil {
			return regerrors.Registry("createJob", regerrors.ServiceUnavailable(in.CreatorServiceType))
		}

		host, err := l.hosts.ByBaseURL(scoped, in.CreatorHost)
		if err != nil {
			return regerrors.Registry("createJob", err)
		}
		if host != nil && (host.MaintenanceMode || !host.Active) {
			l.log.Warn("creating job on inactive/maintenance host", "host", in.CreatorHost, "job_type", in.JobType)
		}

		job := &domain.Job{
			JobType:                      in.JobType,
			Operation:                    in.Operation,
			Arguments:                    domain.EncodeArguments(in.Arguments),
			Payload:                      in.Payload,
			Dispatchable:                 in.Dispatchable,
			JobLoad:                      in.JobLoad,
			Creator:                      in.Creator,
			Organization:                 in.Organization,
			CreatorServiceRegistrationID: creatorSvc.ID,
			DateCreated:                  time.Now(),
		}
		if job.JobLoad == 0 {
			job.JobLoad = 1.0
		}
		if in.Dispatchable {
			job.Status = domain.JobQueued
		} else {
			job.Status = domain.JobInstantiated
			job.ProcessorServiceRegistrationID = &creatorSvc.ID
		}

		if parentID, ok := CurrentJobFrom(scoped.Ctx); ok && in.ParentJobID == nil {
			in.ParentJobID = &parentID
		}
		if in.ParentJobID != nil {
			job.ParentJobID = in.ParentJobID
			parent, err := l.jobs.GetByID(scoped, *in.ParentJobID)
			if err != nil {
				return regerrors.Registry("createJob", err)
			}
			if parent != nil {
				if parent.RootJobID != nil {
					job.RootJobID = parent.RootJobID
				} else {
					job.RootJobID = &parent.ID
				}
			}
		}

		if err := domain.ValidateCreation(job); err != nil {
			return regerrors.IllegalArgument(err.Error())
		}

		out, err := l.jobs.Create(scoped, job)
		if err != nil {
			return regerrors.Registry("createJob", err)
		}
		if err := l.events.Append(scoped, &domain.JobEvent{
			JobID: out.ID,
			Kind:  domain.JobEventCreated,
			Status: out.Status,
		}); err != nil {
			return regerrors.Registry("createJob", err)
		}
		created = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateJob reads the stored row, merges payload/status/version/
// arguments/blocking info, applies the §3 timestamp rules, writes back
// under the store's optimistic-lock version column. Concurrent updates
// that lose the race surface as UndispatchableJobError (spec §5/§7), not a
// raw store error. On any status change for a non-workflow job, hands the
// update to the Service-Health state machine.
func (l *lifecycle) UpdateJob(dbc dbctx.Context, incoming *domain.Job) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)
		current, err := l.jobs.GetByID(scoped, incoming.ID)
		if err != nil {
			return regerrors.Registry("updateJob", err)
		}
		if current == nil {
			return regerrors.NotFound("Job", "")
		}
		statusChanged := current.Status != incoming.Status
		if statusChanged {
			if err := domain.ValidateTransition(current.Status, incoming.Status); err != nil {
				return regerrors.IllegalArgument(err.Error())
			}
		}

		updates := map[string]interface{}{
			"payload":          incoming.Payload,
			"status":           incoming.Status,
			"failure_reason":   incoming.FailureReason,
			"arguments":        incoming.Arguments,
			"blocking_job_id":  incoming.BlockingJobID,
			"blocked_job_ids":  incoming.BlockedJobIDs,
		}
		if incoming.ProcessorServiceRegistrationID != nil {
			updates["processor_service_registration_id"] = incoming.ProcessorServiceRegistrationID
		}

		now := time.Now()
		if incoming.Status == domain.JobRunning && current.DateStarted == nil {
			updates["date_started"] = now
		}
		if domain.TerminalStatuses[incoming.Status] && current.DateCompleted == nil {
			updates["date_completed"] = now
			if current.DateStarted == nil {
				updates["date_started"] = now
			}
		}

		ok, err := l.jobs.UpdateOptimistic(scoped, current.ID, incoming.Version, updates)
		if err != nil {
			return regerrors.Registry("updateJob", err)
		}
		if !ok {
			return regerrors.UndispatchableJob(current.ID, "optimistic-lock conflict: version moved under us")
		}

		if err := l.events.Append(scoped, &domain.JobEvent{
			JobID:  current.ID,
			Kind:   domain.JobEventStatus,
			Status: incoming.Status,
		}); err != nil {
			return regerrors.Registry("updateJob", err)
		}

		if statusChanged && incoming.JobType != domain.WorkflowJobType && l.health != nil {
			updated := *current
			updated.Status = incoming.Status
			updated.FailureReason = incoming.FailureReason
			if incoming.Status == domain.JobFinished {
				if err := l.health.OnJobFinished(scoped, &updated); err != nil {
					return err
				}
			} else if incoming.Status == domain.JobFailed {
				if err := l.health.OnJobFailed(scoped, &updated); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RemoveJob recursively deletes all descendants first, each subtree
// bottom-up (the deepest jobs are deleted first), then the job itself.
// Missing job => NotFound.
func (l *lifecycle) RemoveJob(dbc dbctx.Context, id int64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)
		job, err := l.jobs.GetByID(scoped, id)
		if err != nil {
			return regerrors.Registry("removeJob", err)
		}
		if job == nil {
			return regerrors.NotFound("Job", "")
		}
		if err := l.removeDescendants(scoped, id); err != nil {
			return err
		}
		if err := l.jobs.Delete(scoped, id); err != nil {
			return regerrors.Registry("removeJob", err)
		}
		return nil
	})
}

func (l *lifecycle) removeDescendants(dbc dbctx.Context, parentID int64) error {
	children, err := l.jobs.Children(dbc, parentID)
	if err != nil {
		return regerrors.Registry("removeJob", err)
	}
	for _, c := range children {
		if err := l.removeDescendants(dbc, c.ID); err != nil {
			return err
		}
		if err := l.jobs.Delete(dbc, c.ID); err != nil {
			return regerrors.Registry("removeJob", err)
		}
	}
	return nil
}

// RemoveParentlessJobs deletes top-level jobs older than lifetimeDays that
// are in a terminal status and whose operation is not protected (spec
// §4.E). Runs inside a single enclosing transaction rather than one
// transaction per removeJob call, per Open Question (d) in §9.
func (l *lifecycle) RemoveParentlessJobs(dbc dbctx.Context, lifetimeDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -lifetimeDays)
	removed := 0
	err := l.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbc.WithTx(tx)
		candidates, err := l.jobs.WithoutParent(scoped)
		if err != nil {
			return regerrors.Registry("removeParentlessJobs", err)
		}
		for _, j := range candidates {
			if !domain.TerminalStatuses[j.Status] {
				continue
			}
			if domain.ProtectedOperations[j.Operation] {
				continue
			}
			if j.DateCreated.After(cutoff) {
				continue
			}
			if err := l.removeDescendants(scoped, j.ID); err != nil {
				return err
			}
			if err := l.jobs.Delete(scoped, j.ID); err != nil {
				return regerrors.Registry("removeParentlessJobs", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (l *lifecycle) GetByID(dbc dbctx.Context, id int64) (*domain.Job, error) {
	j, err := l.jobs.GetByID(dbc, id)
	if err != nil {
		return nil, regerrors.Registry("getJob", err)
	}
	if j == nil {
		return nil, regerrors.NotFound("Job", "")
	}
	return j, nil
}

func (l *lifecycle) Dispatchable(dbc dbctx.Context) ([]*domain.Job, error) {
	return l.jobs.Dispatchable(dbc, []domain.JobStatus{domain.JobQueued, domain.JobRestart})
}

func (l *lifecycle) Children(dbc dbctx.Context, id int64) ([]*domain.Job, error) {
	return l.jobs.Children(dbc, id)
}

func (l *lifecycle) RootChildren(dbc dbctx.Context, rootID int64) ([]*domain.Job, error) {
	return l.jobs.RootChildren(dbc, rootID)
}

func (l *lifecycle) CountByHost(dbc dbctx.Context, host string) (int64, error) {
	return l.jobs.CountByHost(dbc, host)
}

func (l *lifecycle) CountByOperation(dbc dbctx.Context, jobType, operation string) (int64, error) {
	return l.jobs.CountByOperation(dbc, jobType, operation)
}

func (l *lifecycle) CountByStatus(dbc dbctx.Context, status domain.JobStatus) (int64, error) {
	return l.jobs.CountByStatus(dbc, status)
}
