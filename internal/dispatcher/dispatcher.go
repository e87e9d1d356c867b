// Package dispatcher implements spec §4.F: the periodic scheduler that
// drains dispatchable jobs, ranks candidate services, hands jobs off to
// workers over the wire protocol, and updates job state. Grounded on the
// teacher's internal/jobs/worker.go ticker loop shape, adapted from a
// single-queue claim to the registry's multi-candidate, optimistic-lock
// hand-off model.
package dispatcher

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/opencast/servicereg/internal/dispatcher/wireclient"
	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/domain/jobxml"
	"github.com/opencast/servicereg/internal/load"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/regerrors"
	"github.com/opencast/servicereg/internal/store"
)

// Dispatcher is spec §4.F's periodic task.
type Dispatcher struct {
	db        *gorm.DB
	jobs      store.JobStore
	services  store.ServiceStore
	hosts     store.HostStore
	load      load.Accountant
	wire      wireclient.Client
	principal PrincipalResolver
	interval  time.Duration
	log       *logger.Logger

	stop chan struct{}
	done chan struct{}
}

func New(db *gorm.DB, jobs store.JobStore, services store.ServiceStore, hosts store.HostStore, accountant load.Accountant, wire wireclient.Client, principal PrincipalResolver, interval time.Duration, baseLog *logger.Logger) *Dispatcher {
	if principal == nil {
		principal = NewDefaultPrincipalResolver()
	}
	return &Dispatcher{
		db:        db,
		jobs:      jobs,
		services:  services,
		hosts:     hosts,
		load:      accountant,
		wire:      wire,
		principal: principal,
		interval:  interval,
		log:       baseLog.With("component", "Dispatcher"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the dispatcher loop until Stop is called or ctx is canceled.
// Fixed-delay scheduling (spec §5): the next tick starts `interval` after
// the previous tick *returns*, so a slow round never stacks a second one.
// interval == 0 disables the task entirely (spec §8 boundary behaviour).
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	if d.interval <= 0 {
		d.log.Info("dispatcher disabled (interval=0)")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		default:
		}
		d.runTick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-time.After(d.interval):
		}
	}
}

func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

// runTick never lets an error escape: spec §4.F.4 — "on any top-level
// error, log and continue; never let the periodic task die."
func (d *Dispatcher) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatcher tick panicked", "recover", r)
		}
	}()

	dbc := dbctx.New(ctx)
	jobs, err := d.jobs.Dispatchable(dbc, []domain.JobStatus{domain.JobQueued, domain.JobRestart})
	if err != nil {
		d.log.Error("failed to fetch dispatchable jobs", "error", err)
		return
	}
	SortDispatchable(jobs)
	if len(jobs) == 0 {
		return
	}

	systemLoad, err := d.load.HostLoads(ctx, true)
	if err != nil {
		d.log.Error("failed to compute system load", "error", err)
		return
	}

	allServices, err := d.services.GetAll(dbc)
	if err != nil {
		d.log.Error("failed to load service registrations", "error", err)
		return
	}
	allHosts, err := d.hosts.GetAll(dbc)
	if err != nil {
		d.log.Error("failed to load host registrations", "error", err)
		return
	}
	hostByBaseURL := map[string]*domain.HostRegistration{}
	for _, h := range allHosts {
		hostByBaseURL[h.BaseURL] = h
	}

	// round-local undispatchable set (spec §4.F.2): once a (jobType,
	// operation, arguments) signature proves undispatchable this round,
	// skip further jobs with the same signature.
	skipSignatures := map[int64]bool{}

	for _, job := range jobs {
		if skipSignatures[job.Signature()] {
			continue
		}
		if err := d.dispatchOne(ctx, job, allServices, hostByBaseURL, systemLoad, skipSignatures); err != nil {
			d.log.Warn("job dispatch failed", "job_id", job.ID, "job_type", job.JobType, "error", err)
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, job *domain.Job, allServices []*domain.ServiceRegistration, hostByBaseURL map[string]*domain.HostRegistration, systemLoad load.SystemLoad, skipSignatures map[int64]bool) error {
	if _, ok := d.principal.Resolve(ctx, job.Creator, job.Organization); !ok {
		d.log.Warn("skipping job: unresolvable creator/organization", "job_id", job.ID)
		return nil
	}

	rootDispatch, err := d.isRootDispatch(dbctx.New(ctx), job)
	if err != nil {
		return regerrors.Registry("dispatch", err)
	}

	var candidates []*domain.ServiceRegistration
	if rootDispatch {
		candidates = candidatesWithCapacity(job, allServices, hostByBaseURL, systemLoad)
	} else {
		candidates = candidatesByLoad(job, allServices, hostByBaseURL, systemLoad)
	}

	return d.runDispatch(ctx, job, candidates, skipSignatures, systemLoad)
}

// isRootDispatch is spec §4.F.3.d: root dispatch iff no parent, OR the job
// type is the workflow type, OR the parent already has >=1 RUNNING child.
func (d *Dispatcher) isRootDispatch(dbc dbctx.Context, job *domain.Job) (bool, error) {
	if job.ParentJobID == nil || job.IsWorkflow() {
		return true, nil
	}
	siblings, err := d.jobs.Children(dbc, *job.ParentJobID)
	if err != nil {
		return false, err
	}
	for _, s := range siblings {
		if s.Status == domain.JobRunning {
			return true, nil
		}
	}
	return false, nil
}

func candidatesWithCapacity(job *domain.Job, all []*domain.ServiceRegistration, hostByBaseURL map[string]*domain.HostRegistration, systemLoad load.SystemLoad) []*domain.ServiceRegistration {
	return filterCandidates(job, all, hostByBaseURL, systemLoad, true)
}

func candidatesByLoad(job *domain.Job, all []*domain.ServiceRegistration, hostByBaseURL map[string]*domain.HostRegistration, systemLoad load.SystemLoad) []*domain.ServiceRegistration {
	return filterCandidates(job, all, hostByBaseURL, systemLoad, false)
}

func filterCandidates(job *domain.Job, all []*domain.ServiceRegistration, hostByBaseURL map[string]*domain.HostRegistration, systemLoad load.SystemLoad, requireCapacity bool) []*domain.ServiceRegistration {
	var out []*domain.ServiceRegistration
	for _, svc := range all {
		if svc.ServiceType != job.JobType {
			continue
		}
		host := hostByBaseURL[svc.Host]
		hostOnline := host != nil && host.Online
		hostMaintenance := host == nil || host.MaintenanceMode
		if !svc.DispatchEligible(hostOnline, hostMaintenance) {
			continue
		}
		if requireCapacity {
			maxLoad := job.JobLoad
			if host != nil {
				maxLoad = host.MaxLoad
			}
			if systemLoad[svc.Host] >= maxLoad {
				continue
			}
		}
		out = append(out, svc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return systemLoad[out[i].Host] < systemLoad[out[j].Host]
	})
	return out
}

// runDispatch is spec §4.F.3.e's dispatchJob.
func (d *Dispatcher) runDispatch(ctx context.Context, job *domain.Job, candidates []*domain.ServiceRegistration, skipSignatures map[int64]bool, systemLoad load.SystemLoad) error {
	if len(candidates) == 0 {
		if !job.IsWorkflow() {
			skipSignatures[job.Signature()] = true
		}
		return regerrors.ServiceUnavailable(job.JobType)
	}

	first := candidates[0]
	var claimed bool
	err := d.db.Transaction(func(tx *gorm.DB) error {
		scoped := dbctx.New(ctx).WithTx(tx)
		ok, err := d.jobs.UpdateOptimistic(scoped, job.ID, job.Version, map[string]interface{}{
			"status":                             domain.JobDispatching,
			"processor_service_registration_id": first.ID,
		})
		if err != nil {
			return err
		}
		claimed = ok
		return nil
	})
	if err != nil {
		return regerrors.Registry("claimJob", err)
	}
	if !claimed {
		return regerrors.UndispatchableJob(job.ID, "another dispatcher claimed this job first")
	}
	job.Version++
	job.Status = domain.JobDispatching

	xmlBody, err := jobxml.Marshal(job)
	if err != nil {
		return regerrors.Registry("marshalJob", err)
	}

	attempted := false
	for _, candidate := range candidates {
		attempted = true
		outcome, statusCode, postErr := d.wire.Dispatch(ctx, candidate.Host, candidate.Path, xmlBody, job.Organization, job.Creator)
		if postErr != nil {
			d.log.Warn("dispatch POST error", "job_id", job.ID, "host", candidate.Host, "error", postErr)
			continue
		}
		switch outcome {
		case wireclient.OutcomeAccepted:
			systemLoad[candidate.Host] += job.JobLoad
			return nil
		case wireclient.OutcomeRejected:
			dbc := dbctx.New(ctx)
			_ = d.jobs.UpdateFields(dbc, job.ID, map[string]interface{}{"status": domain.JobFailed})
			return regerrors.UndispatchableJob(job.ID, "candidate rejected job as permanently unacceptable (412)")
		case wireclient.OutcomeRefused, wireclient.OutcomeNotReady:
			continue
		default:
			d.log.Warn("unexpected dispatch outcome", "job_id", job.ID, "host", candidate.Host, "status_code", statusCode)
			continue
		}
	}

	if attempted {
		dbc := dbctx.New(ctx)
		_ = d.jobs.UpdateFields(dbc, job.ID, map[string]interface{}{
			"status":                             domain.JobQueued,
			"processor_service_registration_id": nil,
		})
	}
	return regerrors.UndispatchableJob(job.ID, "exhausted all candidates")
}
