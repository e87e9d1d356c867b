package domain

import (
	"time"

	"gorm.io/datatypes"
)

type JobEventKind string

const (
	JobEventCreated   JobEventKind = "created"
	JobEventStatus    JobEventKind = "status_changed"
	JobEventDispatch  JobEventKind = "dispatch_attempt"
	JobEventFailed    JobEventKind = "failed"
	JobEventFinished  JobEventKind = "finished"
)

// JobEvent is an append-only ledger of job status transitions, adapted
// from the teacher's job_run_event.go timeline concept: every real
// scheduler in the retrieval pack keeps one alongside current state so a
// stuck job can be diagnosed without reconstructing history from logs.
type JobEvent struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     int64          `gorm:"column:job_id;not null;index" json:"job_id"`
	Kind      JobEventKind   `gorm:"column:kind;not null;index" json:"kind"`
	Status    JobStatus      `gorm:"column:status;not null" json:"status"`
	Host      string         `gorm:"column:host" json:"host,omitempty"`
	Message   string         `gorm:"column:message;type:text" json:"message,omitempty"`
	Data      datatypes.JSON `gorm:"column:data;type:jsonb" json:"data,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;default:now();index" json:"created_at"`
}

func (JobEvent) TableName() string { return "job_event" }
