package domain

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobInstantiated JobStatus = "INSTANTIATED"
	JobQueued       JobStatus = "QUEUED"
	JobDispatching  JobStatus = "DISPATCHING"
	JobRunning      JobStatus = "RUNNING"
	JobWaiting      JobStatus = "WAITING"
	JobPaused       JobStatus = "PAUSED"
	JobFinished     JobStatus = "FINISHED"
	JobFailed       JobStatus = "FAILED"
	JobCanceled     JobStatus = "CANCELED"
	JobRestart      JobStatus = "RESTART"
)

// TerminalStatuses are statuses a job never leaves.
var TerminalStatuses = map[JobStatus]bool{
	JobFinished: true,
	JobFailed:   true,
	JobCanceled: true,
}

// LoadInfluencingStatuses is JOB_STATUSES_INFLUENCING_LOAD_BALANCING (spec §3).
var LoadInfluencingStatuses = map[JobStatus]bool{
	JobQueued:      true,
	JobDispatching: true,
	JobRunning:     true,
	JobWaiting:     true,
}

// DispatchableStatuses is the set the dispatcher drains from on every tick.
var DispatchableStatuses = map[JobStatus]bool{
	JobQueued:  true,
	JobRestart: true,
}

type FailureReason string

const (
	FailureReasonNone FailureReason = ""
	FailureReasonData FailureReason = "DATA"
)

// Protected operations are never swept by RemoveParentlessJobs regardless
// of age, because they drive a running workflow (spec §4.E).
const (
	OperationStart         = "START_OPERATION"
	OperationStartWorkflow = "START_WORKFLOW"
	OperationResume        = "RESUME"
)

var ProtectedOperations = map[string]bool{
	OperationStart:         true,
	OperationStartWorkflow: true,
	OperationResume:        true,
}

// WorkflowJobType is excluded from load balancing (it schedules itself) and
// from the round-local undispatchable skip-set (it must keep being retried).
const WorkflowJobType = "org.opencastproject.workflow"

// Job is a single unit of work tracked by the registry.
type Job struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	JobType    string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Operation  string         `gorm:"column:operation;not null" json:"operation"`
	Arguments  datatypes.JSON `gorm:"column:arguments;type:jsonb" json:"arguments"`
	Payload    string         `gorm:"column:payload;type:text" json:"payload"`
	Version    int64          `gorm:"column:version;not null;default:0" json:"version"`
	Dispatchable bool         `gorm:"column:dispatchable;not null" json:"dispatchable"`
	JobLoad    float64        `gorm:"column:job_load;not null;default:1.0" json:"job_load"`
	Creator    string         `gorm:"column:creator;not null" json:"creator"`
	Organization string       `gorm:"column:organization;not null" json:"organization"`

	ParentJobID *int64 `gorm:"column:parent_job_id;index" json:"parent_job_id,omitempty"`
	RootJobID   *int64 `gorm:"column:root_job_id;index" json:"root_job_id,omitempty"`

	ProcessorServiceRegistrationID *int64 `gorm:"column:processor_service_registration_id;index" json:"processor_service_registration_id,omitempty"`
	CreatorServiceRegistrationID   int64  `gorm:"column:creator_service_registration_id;not null" json:"creator_service_registration_id"`

	DateCreated   time.Time  `gorm:"column:date_created;not null;default:now();index" json:"date_created"`
	DateStarted   *time.Time `gorm:"column:date_started" json:"date_started,omitempty"`
	DateCompleted *time.Time `gorm:"column:date_completed" json:"date_completed,omitempty"`

	Status        JobStatus     `gorm:"column:status;not null;index" json:"status"`
	FailureReason FailureReason `gorm:"column:failure_reason" json:"failure_reason,omitempty"`

	BlockingJobID *int64         `gorm:"column:blocking_job_id" json:"blocking_job_id,omitempty"`
	BlockedJobIDs datatypes.JSON `gorm:"column:blocked_job_ids;type:jsonb" json:"blocked_job_ids,omitempty"`
}

func (Job) TableName() string { return "job" }

// QueueTime is dateStarted - dateCreated, or zero if not yet started.
func (j *Job) QueueTime() time.Duration {
	if j.DateStarted == nil {
		return 0
	}
	return j.DateStarted.Sub(j.DateCreated)
}

// RunTime is dateCompleted - dateStarted, or zero if not yet completed.
func (j *Job) RunTime() time.Duration {
	if j.DateStarted == nil || j.DateCompleted == nil {
		return 0
	}
	return j.DateCompleted.Sub(*j.DateStarted)
}

func (j *Job) IsTerminal() bool {
	return TerminalStatuses[j.Status]
}

func (j *Job) InfluencesLoad() bool {
	return LoadInfluencingStatuses[j.Status]
}

func (j *Job) IsDispatchable() bool {
	return DispatchableStatuses[j.Status]
}

func (j *Job) IsWorkflow() bool {
	return j.JobType == WorkflowJobType
}
