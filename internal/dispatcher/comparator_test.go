package dispatcher

import (
	"testing"
	"time"

	"github.com/opencast/servicereg/internal/domain"
)

func TestSortDispatchable_RestartOutranksQueued(t *testing.T) {
	now := time.Now()
	queued := &domain.Job{ID: 1, Status: domain.JobQueued, DateCreated: now}
	restart := &domain.Job{ID: 2, Status: domain.JobRestart, DateCreated: now.Add(time.Hour)}

	jobs := []*domain.Job{queued, restart}
	SortDispatchable(jobs)

	if jobs[0].ID != restart.ID {
		t.Fatalf("expected RESTART job first, got job %d", jobs[0].ID)
	}
}

func TestSortDispatchable_NonWorkflowOutranksWorkflow(t *testing.T) {
	now := time.Now()
	workflow := &domain.Job{ID: 1, Status: domain.JobQueued, JobType: domain.WorkflowJobType, DateCreated: now}
	plain := &domain.Job{ID: 2, Status: domain.JobQueued, JobType: "org.opencastproject.composer", DateCreated: now.Add(time.Hour)}

	jobs := []*domain.Job{workflow, plain}
	SortDispatchable(jobs)

	if jobs[0].ID != plain.ID {
		t.Fatalf("expected non-workflow job first, got job %d", jobs[0].ID)
	}
}

func TestSortDispatchable_TiesBreakByAscendingDateCreated(t *testing.T) {
	now := time.Now()
	older := &domain.Job{ID: 1, Status: domain.JobQueued, DateCreated: now}
	newer := &domain.Job{ID: 2, Status: domain.JobQueued, DateCreated: now.Add(time.Minute)}

	jobs := []*domain.Job{newer, older}
	SortDispatchable(jobs)

	if jobs[0].ID != older.ID || jobs[1].ID != newer.ID {
		t.Fatalf("expected ascending dateCreated order, got %d, %d", jobs[0].ID, jobs[1].ID)
	}
}

func TestSortDispatchable_RestartOutranksRegardlessOfWorkflow(t *testing.T) {
	now := time.Now()
	restartWorkflow := &domain.Job{ID: 1, Status: domain.JobRestart, JobType: domain.WorkflowJobType, DateCreated: now}
	queuedPlain := &domain.Job{ID: 2, Status: domain.JobQueued, JobType: "x", DateCreated: now.Add(-time.Hour)}

	jobs := []*domain.Job{queuedPlain, restartWorkflow}
	SortDispatchable(jobs)

	if jobs[0].ID != restartWorkflow.ID {
		t.Fatalf("expected RESTART to outrank non-workflow QUEUED despite later dateCreated")
	}
}
