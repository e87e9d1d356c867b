package domain

import "testing"

func TestValidateCreation_DispatchableMustStartQueuedNoProcessor(t *testing.T) {
	j := &Job{Dispatchable: true, Status: JobQueued}
	if err := ValidateCreation(j); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateCreation_DispatchableRejectsProcessor(t *testing.T) {
	pid := int64(7)
	j := &Job{Dispatchable: true, Status: JobQueued, ProcessorServiceRegistrationID: &pid}
	if err := ValidateCreation(j); err == nil {
		t.Fatalf("expected error for dispatchable job with a processor pinned")
	}
}

func TestValidateCreation_DispatchableRejectsNonQueuedStatus(t *testing.T) {
	j := &Job{Dispatchable: true, Status: JobRunning}
	if err := ValidateCreation(j); err == nil {
		t.Fatalf("expected error for dispatchable job not starting QUEUED")
	}
}

func TestValidateCreation_NonDispatchableMustStartInstantiatedWithProcessor(t *testing.T) {
	pid := int64(3)
	j := &Job{Dispatchable: false, Status: JobInstantiated, ProcessorServiceRegistrationID: &pid}
	if err := ValidateCreation(j); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateCreation_NonDispatchableRejectsMissingProcessor(t *testing.T) {
	j := &Job{Dispatchable: false, Status: JobInstantiated}
	if err := ValidateCreation(j); err == nil {
		t.Fatalf("expected error for non-dispatchable job with no pinned processor")
	}
}

func TestValidateTransition_AllowsForwardMoves(t *testing.T) {
	cases := []struct{ from, to JobStatus }{
		{JobInstantiated, JobRunning},
		{JobQueued, JobDispatching},
		{JobDispatching, JobRunning},
		{JobRunning, JobFinished},
		{JobRestart, JobQueued},
	}
	for _, c := range cases {
		if err := ValidateTransition(c.from, c.to); err != nil {
			t.Fatalf("%s -> %s: expected allowed, got %v", c.from, c.to, err)
		}
	}
}

func TestValidateTransition_SameStatusIsNoop(t *testing.T) {
	if err := ValidateTransition(JobRunning, JobRunning); err != nil {
		t.Fatalf("expected same-status transition to be a no-op, got %v", err)
	}
}

func TestValidateTransition_RejectsLeavingTerminalStatus(t *testing.T) {
	for status := range TerminalStatuses {
		if err := ValidateTransition(status, JobRunning); err == nil {
			t.Fatalf("expected terminal status %s to reject further transitions", status)
		}
	}
}

func TestValidateTransition_RejectsUnknownEdge(t *testing.T) {
	if err := ValidateTransition(JobQueued, JobFinished); err == nil {
		t.Fatalf("expected QUEUED -> FINISHED to be rejected (must pass through DISPATCHING/RUNNING)")
	}
}
