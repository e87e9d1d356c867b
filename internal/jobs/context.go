package jobs

import "context"

type currentJobKey struct{}

// WithCurrentJob is the explicit context.Context replacement for spec §5's
// thread-local "current job" (Design Note §9(a)): set around each dispatch
// attempt, consumed by CreateJob so child jobs inherit their parent
// without explicit plumbing, cleared via defer at the call site. The
// setter lives in the REST façade that receives a worker's "create child
// job" callback mid-dispatch — excluded from this module's scope (spec
// §1's "thin... CLI/REST façades are explicitly excluded") — so it has no
// caller in this tree. Kept as the documented seam for that façade.
// CreateJob reads this value only when the caller supplies no
// ParentJobID; an explicit ParentJobID always wins. lifecycle's tests
// pass ParentJobID explicitly and never set this value.
func WithCurrentJob(ctx context.Context, jobID int64) context.Context {
	return context.WithValue(ctx, currentJobKey{}, jobID)
}

// CurrentJobFrom returns the job id set by WithCurrentJob, if any.
func CurrentJobFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(currentJobKey{}).(int64)
	return id, ok
}
