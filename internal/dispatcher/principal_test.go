package dispatcher

import "testing"

func TestDefaultPrincipalResolver_ResolvesNonBlankPair(t *testing.T) {
	r := NewDefaultPrincipalResolver()
	p, ok := r.Resolve(nil, "admin", "mh_default_org")
	if !ok {
		t.Fatalf("expected a non-blank creator/organization pair to resolve")
	}
	if p.UserID != "admin" || p.OrgID != "mh_default_org" {
		t.Fatalf("expected principal fields to mirror inputs, got %+v", p)
	}
}

func TestDefaultPrincipalResolver_RejectsBlankCreator(t *testing.T) {
	r := NewDefaultPrincipalResolver()
	if _, ok := r.Resolve(nil, "", "mh_default_org"); ok {
		t.Fatalf("expected a blank creator to fail resolution")
	}
}

func TestDefaultPrincipalResolver_RejectsBlankOrganization(t *testing.T) {
	r := NewDefaultPrincipalResolver()
	if _, ok := r.Resolve(nil, "admin", ""); ok {
		t.Fatalf("expected a blank organization to fail resolution")
	}
}
