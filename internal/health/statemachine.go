// Package health implements spec §4.G: the per-service NORMAL/WARNING/
// ERROR state machine driven by job outcomes, correlated across hosts by
// job signature.
package health

import (
	"time"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/dbctx"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"github.com/opencast/servicereg/internal/regerrors"
	"github.com/opencast/servicereg/internal/store"
)

// StateMachine is spec §4.G's Service-Health State Machine.
type StateMachine struct {
	services    store.ServiceStore
	maxAttempts int
	observer    StatsObserver
	log         *logger.Logger
}

func NewStateMachine(services store.ServiceStore, maxAttemptsBeforeError int, observer StatsObserver, baseLog *logger.Logger) *StateMachine {
	if observer == nil {
		observer = NewNoopObserver()
	}
	if maxAttemptsBeforeError <= 0 {
		maxAttemptsBeforeError = 1
	}
	return &StateMachine{
		services:    services,
		maxAttempts: maxAttemptsBeforeError,
		observer:    observer,
		log:         baseLog.With("component", "HealthStateMachine"),
	}
}

// OnJobFailed is spec §4.G's FAILED handling. DATA failures are
// input-caused, not service-caused, and are ignored entirely.
func (m *StateMachine) OnJobFailed(dbc dbctx.Context, j *domain.Job) error {
	if j.FailureReason == domain.FailureReasonData {
		return nil
	}
	if j.ProcessorServiceRegistrationID == nil {
		return nil
	}
	processor, err := m.services.GetByID(dbc, *j.ProcessorServiceRegistrationID)
	if err != nil {
		return regerrors.Registry("onJobFailed", err)
	}
	if processor == nil {
		return nil
	}
	signature := j.Signature()

	related, err := m.services.RelatedWarningOrError(dbc, j.JobType, signature, processor.ID)
	if err != nil {
		return regerrors.Registry("onJobFailed", err)
	}

	if len(related) > 0 {
		for _, svc := range related {
			if err := m.forgiveOrDemote(dbc, svc); err != nil {
				return err
			}
		}
		return nil
	}

	switch processor.ServiceState {
	case domain.ServiceStateNormal:
		return m.transition(dbc, processor, domain.ServiceStateWarning, &signature)
	case domain.ServiceStateWarning:
		failedCount, err := m.services.CountFailedHistory(dbc, processor.ServiceType, processor.Host)
		if err != nil {
			return regerrors.Registry("onJobFailed", err)
		}
		if failedCount >= int64(m.maxAttempts) {
			return m.transition(dbc, processor, domain.ServiceStateError, &signature)
		}
	}
	return nil
}

// forgiveOrDemote handles one related WARNING/ERROR service when another
// service has just failed with the same signature: WARNING forgives to
// NORMAL, ERROR demotes to WARNING re-using its previous warning trigger.
func (m *StateMachine) forgiveOrDemote(dbc dbctx.Context, svc *domain.ServiceRegistration) error {
	switch svc.ServiceState {
	case domain.ServiceStateWarning:
		return m.transition(dbc, svc, domain.ServiceStateNormal, nil)
	case domain.ServiceStateError:
		trigger := svc.WarningStateTrigger
		return m.transition(dbc, svc, domain.ServiceStateWarning, trigger)
	}
	return nil
}

// OnJobFinished is spec §4.G's FINISHED handling.
func (m *StateMachine) OnJobFinished(dbc dbctx.Context, j *domain.Job) error {
	if j.ProcessorServiceRegistrationID == nil {
		return nil
	}
	processor, err := m.services.GetByID(dbc, *j.ProcessorServiceRegistrationID)
	if err != nil {
		return regerrors.Registry("onJobFinished", err)
	}
	if processor == nil {
		return nil
	}
	if processor.ServiceState == domain.ServiceStateWarning {
		if err := m.transition(dbc, processor, domain.ServiceStateNormal, nil); err != nil {
			return err
		}
	}

	signature := j.Signature()
	byType, err := m.services.GetByType(dbc, j.JobType)
	if err != nil {
		return regerrors.Registry("onJobFinished", err)
	}
	for _, svc := range byType {
		if svc.ID == processor.ID {
			continue
		}
		if svc.ServiceState == domain.ServiceStateWarning && svc.WarningStateTrigger != nil && *svc.WarningStateTrigger == signature {
			if err := m.transition(dbc, svc, domain.ServiceStateError, &signature); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sanitize is the admin override: forces a service to NORMAL.
func (m *StateMachine) Sanitize(dbc dbctx.Context, serviceType, host string) error {
	svc, err := m.services.Get(dbc, serviceType, host)
	if err != nil {
		return regerrors.Registry("sanitize", err)
	}
	if svc == nil {
		return regerrors.NotFound("ServiceRegistration", serviceType+"@"+host)
	}
	return m.transition(dbc, svc, domain.ServiceStateNormal, nil)
}

func (m *StateMachine) transition(dbc dbctx.Context, svc *domain.ServiceRegistration, to domain.ServiceState, trigger *int64) error {
	from := svc.ServiceState
	updates := map[string]interface{}{
		"service_state": to,
		"state_changed": time.Now(),
	}
	switch to {
	case domain.ServiceStateWarning:
		updates["warning_state_trigger"] = trigger
	case domain.ServiceStateError:
		updates["error_state_trigger"] = trigger
	case domain.ServiceStateNormal:
		updates["warning_state_trigger"] = nil
		updates["error_state_trigger"] = nil
	}
	if err := m.services.UpdateFields(dbc, svc.ID, updates); err != nil {
		return regerrors.Registry("transition", err)
	}
	svc.ServiceState = to
	m.observer.OnServiceStateChanged(dbc.Ctx, svc.ServiceType, svc.Host, from, to, derefOrZero(trigger))
	return nil
}

func derefOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
