// Package regerrors implements the error taxonomy from spec §7. Each
// error is a small concrete struct rather than a sentinel value, following
// the teacher's own convention (internal/clients/twilio's HTTPError) for
// errors callers need to inspect structurally, e.g. via a type assertion
// to *UndispatchableJobError.
package regerrors

import "fmt"

// NotFoundError: entity lookup by id/host missed. Surfaced to caller.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

func NotFound(entity, key string) error { return &NotFoundError{Entity: entity, Key: key} }

// ServiceUnavailableError: no candidate service of the requested type
// exists. Dispatcher treats this as "skip signature this round";
// caller-visible for synchronous create.
type ServiceUnavailableError struct {
	ServiceType string
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("no service registration available for type %q", e.ServiceType)
}

func ServiceUnavailable(serviceType string) error {
	return &ServiceUnavailableError{ServiceType: serviceType}
}

// UndispatchableJobError: this specific job cannot be dispatched right now
// (lock lost, 412 refusal, or exhausted candidates). Dispatcher skips it;
// status is left FAILED or restored to QUEUED per spec §4.F.
type UndispatchableJobError struct {
	JobID  int64
	Reason string
}

func (e *UndispatchableJobError) Error() string {
	return fmt.Sprintf("job %d undispatchable: %s", e.JobID, e.Reason)
}

func UndispatchableJob(jobID int64, reason string) error {
	return &UndispatchableJobError{JobID: jobID, Reason: reason}
}

// ServiceRegistryError: transient/unknown persistence or serialisation
// failure; surfaced to caller, logged, transaction rolled back.
type ServiceRegistryError struct {
	Op  string
	Err error
}

func (e *ServiceRegistryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service registry error during %s", e.Op)
	}
	return fmt.Sprintf("service registry error during %s: %v", e.Op, e.Err)
}

func (e *ServiceRegistryError) Unwrap() error { return e.Err }

func Registry(op string, err error) error { return &ServiceRegistryError{Op: op, Err: err} }

// IllegalArgumentError: blank required fields at the API boundary.
type IllegalArgumentError struct {
	Field string
}

func (e *IllegalArgumentError) Error() string {
	return fmt.Sprintf("illegal argument: %s is required", e.Field)
}

func IllegalArgument(field string) error { return &IllegalArgumentError{Field: field} }
