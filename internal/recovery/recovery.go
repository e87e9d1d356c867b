// Package recovery implements spec §4.I: startup recovery of jobs
// orphaned by a previous crash, and shutdown unregistration of the local
// host.
package recovery

import (
	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/regerrors"
	"github.com/opencast/servicereg/internal/registry"
	"github.com/opencast/servicereg/internal/store"
)

type Recovery struct {
	jobs    store.JobStore
	manager registry.Manager
	log     *logger.Logger
}

func New(jobs store.JobStore, manager registry.Manager, baseLog *logger.Logger) *Recovery {
	return &Recovery{jobs: jobs, manager: manager, log: baseLog.With("component", "Recovery")}
}

// CleanUndispatchableJobs is spec §4.I's startup sweep: every job with
// status in {INSTANTIATED, RUNNING} whose processor host is localHost is
// set to CANCELED — it was orphaned by the previous process instance's
// unclean shutdown.
func (r *Recovery) CleanUndispatchableJobs(dbc dbctx.Context, localHost string) (int, error) {
	statuses := []domain.JobStatus{domain.JobInstantiated, domain.JobRunning}
	orphaned, err := r.jobs.Undispatchable(dbc, statuses, localHost)
	if err != nil {
		return 0, regerrors.Registry("cleanUndispatchableJobs", err)
	}
	for _, j := range orphaned {
		if err := r.jobs.UpdateFields(dbc, j.ID, map[string]interface{}{"status": domain.JobCanceled}); err != nil {
			return 0, regerrors.Registry("cleanUndispatchableJobs", err)
		}
	}
	r.log.Info("startup recovery canceled orphaned jobs", "local_host", localHost, "count", len(orphaned))
	return len(orphaned), nil
}

// Shutdown unregisters the local host, per spec §4.I.
func (r *Recovery) Shutdown(dbc dbctx.Context, localHost string) error {
	if err := r.manager.UnregisterHost(dbc, localHost); err != nil {
		return err
	}
	r.log.Info("local host unregistered on shutdown", "local_host", localHost)
	return nil
}
