package domain

import "time"

type ServiceState string

const (
	ServiceStateNormal  ServiceState = "NORMAL"
	ServiceStateWarning ServiceState = "WARNING"
	ServiceStateError   ServiceState = "ERROR"
)

// ServiceRegistration is a (serviceType, host) tuple offered by a host.
// It belongs to exactly one HostRegistration (weak owning reference: a
// service can never outlive its host row, but deleting a service row never
// deletes the host; neither is ever hard-deleted).
type ServiceRegistration struct {
	ID                  int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ServiceType         string       `gorm:"column:service_type;uniqueIndex:idx_service_type_host;not null" json:"service_type"`
	Host                string       `gorm:"column:host;uniqueIndex:idx_service_type_host;not null" json:"host"`
	HostRegistrationID  int64        `gorm:"column:host_registration_id;not null;index" json:"host_registration_id"`
	Path                string       `gorm:"column:path;not null" json:"path"`
	Online              bool         `gorm:"column:online;not null;index" json:"online"`
	Active              bool         `gorm:"column:active;not null;default:true" json:"active"`
	IsJobProducer       bool         `gorm:"column:is_job_producer;not null" json:"is_job_producer"`
	ServiceState        ServiceState `gorm:"column:service_state;not null;default:NORMAL" json:"service_state"`
	StateChanged        time.Time    `gorm:"column:state_changed;not null;default:now()" json:"state_changed"`
	WarningStateTrigger *int64       `gorm:"column:warning_state_trigger" json:"warning_state_trigger,omitempty"`
	ErrorStateTrigger   *int64       `gorm:"column:error_state_trigger" json:"error_state_trigger,omitempty"`
	CreatedAt           time.Time    `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (ServiceRegistration) TableName() string { return "service_registration" }

// DispatchEligible reports whether this service can be a dispatch candidate
// at all, independent of load: online, active (host.Active propagates into
// Active on enable/disable), not in maintenance, and not in ERROR state.
// ERROR-state services stay registered but are excluded from every
// candidate list (spec §4.G).
func (s *ServiceRegistration) DispatchEligible(hostOnline, hostMaintenance bool) bool {
	if !s.Online || !s.Active {
		return false
	}
	if !hostOnline || hostMaintenance {
		return false
	}
	return s.ServiceState != ServiceStateError
}
