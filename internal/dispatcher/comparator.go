package dispatcher

import (
	"sort"

	"github.com/opencast/servicereg/internal/domain"
)

// SortDispatchable orders jobs per spec §4.F's DispatchableComparator:
// RESTART outranks QUEUED, non-workflow outranks workflow-typed, ties
// break by ascending dateCreated.
func SortDispatchable(jobs []*domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return dispatchableLess(jobs[i], jobs[j])
	})
}

func dispatchableLess(a, b *domain.Job) bool {
	aRestart := a.Status == domain.JobRestart
	bRestart := b.Status == domain.JobRestart
	if aRestart != bRestart {
		return aRestart
	}
	aWorkflow := a.IsWorkflow()
	bWorkflow := b.IsWorkflow()
	if aWorkflow != bWorkflow {
		return !aWorkflow
	}
	return a.DateCreated.Before(b.DateCreated)
}
