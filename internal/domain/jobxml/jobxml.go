// Package jobxml implements the dispatch wire protocol's job representation
// (spec §6: "Job XML. Round-trippable... Exchange format with workers,
// opaque to the core's schema"). encoding/xml is the standard-library
// choice here — no third-party XML library appears anywhere in the
// example pack, so there is no ecosystem precedent to follow instead (see
// DESIGN.md's standard-library justifications).
package jobxml

import (
	"encoding/xml"
	"time"

	"github.com/opencast/servicereg/internal/domain"
)

// Doc is the round-trippable wire representation of a domain.Job.
type Doc struct {
	XMLName       xml.Name `xml:"job"`
	ID            int64    `xml:"id,attr"`
	JobType       string   `xml:"type"`
	Operation     string   `xml:"operation"`
	Arguments     []string `xml:"arguments>argument"`
	Payload       string   `xml:"payload"`
	Status        int      `xml:"status"`
	Version       int64    `xml:"version"`
	Creator       string   `xml:"creator"`
	Organization  string   `xml:"organization"`
	JobLoad       float64  `xml:"job_load"`
	ParentJobID   *int64   `xml:"parent_job_id,omitempty"`
	RootJobID     *int64   `xml:"root_job_id,omitempty"`
	DateCreated   string   `xml:"date_created,omitempty"`
	DateStarted   string   `xml:"date_started,omitempty"`
	DateCompleted string   `xml:"date_completed,omitempty"`
}

// statusOrdinal mirrors the Java enum ordinal encoding the wire format
// uses; order matters and must never be reordered once deployed.
var statusOrdinal = []domain.JobStatus{
	domain.JobInstantiated,
	domain.JobQueued,
	domain.JobDispatching,
	domain.JobRunning,
	domain.JobWaiting,
	domain.JobPaused,
	domain.JobFinished,
	domain.JobFailed,
	domain.JobCanceled,
	domain.JobRestart,
}

func ordinalOf(s domain.JobStatus) int {
	for i, st := range statusOrdinal {
		if st == s {
			return i
		}
	}
	return -1
}

func statusFromOrdinal(o int) domain.JobStatus {
	if o < 0 || o >= len(statusOrdinal) {
		return ""
	}
	return statusOrdinal[o]
}

const timeLayout = time.RFC3339Nano

// Marshal encodes a domain.Job into its wire XML form.
func Marshal(j *domain.Job) ([]byte, error) {
	d := Doc{
		ID:           j.ID,
		JobType:      j.JobType,
		Operation:    j.Operation,
		Arguments:    j.ArgumentList(),
		Payload:      j.Payload,
		Status:       ordinalOf(j.Status),
		Version:      j.Version,
		Creator:      j.Creator,
		Organization: j.Organization,
		JobLoad:      j.JobLoad,
		ParentJobID:  j.ParentJobID,
		RootJobID:    j.RootJobID,
		DateCreated:  j.DateCreated.UTC().Format(timeLayout),
	}
	if j.DateStarted != nil {
		d.DateStarted = j.DateStarted.UTC().Format(timeLayout)
	}
	if j.DateCompleted != nil {
		d.DateCompleted = j.DateCompleted.UTC().Format(timeLayout)
	}
	return xml.Marshal(d)
}

// Unmarshal decodes wire XML back into a domain.Job. Round-tripping a job
// through Marshal/Unmarshal preserves id, type, operation, arguments,
// payload, version, load, creator, organization (spec §8 round-trip
// property).
func Unmarshal(raw []byte) (*domain.Job, error) {
	var d Doc
	if err := xml.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	j := &domain.Job{
		ID:           d.ID,
		JobType:      d.JobType,
		Operation:    d.Operation,
		Arguments:    domain.EncodeArguments(d.Arguments),
		Payload:      d.Payload,
		Status:       statusFromOrdinal(d.Status),
		Version:      d.Version,
		Creator:      d.Creator,
		Organization: d.Organization,
		JobLoad:      d.JobLoad,
		ParentJobID:  d.ParentJobID,
		RootJobID:    d.RootJobID,
	}
	if d.DateCreated != "" {
		if t, err := time.Parse(timeLayout, d.DateCreated); err == nil {
			j.DateCreated = t
		}
	}
	if d.DateStarted != "" {
		if t, err := time.Parse(timeLayout, d.DateStarted); err == nil {
			j.DateStarted = &t
		}
	}
	if d.DateCompleted != "" {
		if t, err := time.Parse(timeLayout, d.DateCompleted); err == nil {
			j.DateCompleted = &t
		}
	}
	return j, nil
}
