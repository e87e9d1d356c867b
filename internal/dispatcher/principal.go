package dispatcher

import "context"

// Principal is the resolved identity of a job's creator. The spec's
// Non-goals exclude the identity/organization provider itself; this
// interface is the seam "resolve the creator's organization and user
// identities" (spec §4.F.3.a) binds to.
type Principal struct {
	UserID string
	OrgID  string
}

// PrincipalResolver resolves a job's creator/organization strings into a
// Principal, returning ok=false if either cannot be resolved (the
// dispatcher then skips the job for this tick).
type PrincipalResolver interface {
	Resolve(ctx context.Context, creator, organization string) (p Principal, ok bool)
}

// defaultPrincipalResolver accepts any non-blank creator/organization
// pair — there is no identity provider wired into this core.
type defaultPrincipalResolver struct{}

func NewDefaultPrincipalResolver() PrincipalResolver { return defaultPrincipalResolver{} }

func (defaultPrincipalResolver) Resolve(_ context.Context, creator, organization string) (Principal, bool) {
	if creator == "" || organization == "" {
		return Principal{}, false
	}
	return Principal{UserID: creator, OrgID: organization}, true
}
