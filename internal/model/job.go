package model

import (
	"sort"
	"strings"
)

// JobState is the lifecycle state of one relay render job
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// rank orders states so that transitions can only move forward.
func (s JobState) rank() int {
	switch s {
	case JobStateProcessing:
		return 1
	case JobStateCompleted, JobStateFailed:
		return 2
	default:
		return 0
	}
}

// IsTerminal reports whether no further transition is possible
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// CanAdvance reports whether a job observed in state s may be replaced by
// an observation in state next. Terminal states are frozen.
func (s JobState) CanAdvance(next JobState) bool {
	if s.IsTerminal() {
		return s == next
	}
	return next.rank() >= s.rank()
}

// ParseJobState normalizes the spellings used by the relay.
func ParseJobState(raw string) JobState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "processing", "running", "rendering":
		return JobStateProcessing
	case "completed", "complete", "success", "succeeded", "done":
		return JobStateCompleted
	case "failed", "error", "failure":
		return JobStateFailed
	default:
		return JobStateQueued
	}
}

// JobRequest is the immutable input of one generation job
type JobRequest struct {
	TargetID         string   `json:"targetId" validate:"required"`
	ApplyDateText    string   `json:"applyDate" validate:"required"`
	ApplyContentText string   `json:"applyContent" validate:"required"`
	AccessGroupIDs   []string `json:"accessGroupIds" validate:"required,min=1,dive,required"`
}

// Normalized returns a copy with trimmed texts and a sorted, de-duplicated
// group set.
func (r JobRequest) Normalized() JobRequest {
	out := JobRequest{
		TargetID:         strings.TrimSpace(r.TargetID),
		ApplyDateText:    strings.TrimSpace(r.ApplyDateText),
		ApplyContentText: strings.TrimSpace(r.ApplyContentText),
	}
	out.AccessGroupIDs = NormalizeGroups(r.AccessGroupIDs)
	return out
}

// NormalizeGroups trims, drops empties and de-duplicates a group id list.
func NormalizeGroups(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// QueueInfo describes the job's place in the relay queue
type QueueInfo struct {
	QueuePosition        int  `json:"queuePosition"`
	QueueLength          int  `json:"queueLength"`
	EstimatedWaitSeconds int  `json:"estimatedWaitSeconds"`
	QueuedUserCount      int  `json:"queuedUserCount"`
	IsProcessing         bool `json:"isProcessing"`
}

// RelayHealth is the relay's self-reported availability
type RelayHealth struct {
	Available          bool   `json:"available"`
	LastResponseTimeMs int64  `json:"lastResponseTimeMs"`
	LastError          string `json:"lastError,omitempty"`
}

// JobResult points at the rendered artifact
type JobResult struct {
	ArtifactID     string `json:"artifactId"`
	ImageURL       string `json:"imageUrl"`
	SpreadsheetURL string `json:"spreadsheetUrl,omitempty"`
}

// JobStatus is one full observation of a job. Observations replace each
// other wholesale.
type JobStatus struct {
	JobID         string       `json:"jobId"`
	Status        JobState     `json:"status"`
	Progress      int          `json:"progress"`
	Message       string       `json:"message,omitempty"`
	QueueInfo     *QueueInfo   `json:"queueInfo,omitempty"`
	RelayHealth   *RelayHealth `json:"relayHealth,omitempty"`
	Result        *JobResult   `json:"result,omitempty"`
	Error         string       `json:"error,omitempty"`
	FailureReason string       `json:"failureReason,omitempty"`
}

// QueuePosition returns the queue position, or -1 when unknown
func (s JobStatus) QueuePosition() int {
	if s.QueueInfo == nil {
		return -1
	}
	return s.QueueInfo.QueuePosition
}

// Clone returns a deep copy so callers never share pointers into a store.
func (s JobStatus) Clone() JobStatus {
	out := s
	if s.QueueInfo != nil {
		q := *s.QueueInfo
		out.QueueInfo = &q
	}
	if s.RelayHealth != nil {
		h := *s.RelayHealth
		out.RelayHealth = &h
	}
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return out
}

// FailedStatus builds a locally recorded failure for a job that could not be
// observed to completion.
func FailedStatus(jobID, message, reason string) JobStatus {
	return JobStatus{
		JobID:         jobID,
		Status:        JobStateFailed,
		Error:         message,
		FailureReason: reason,
	}
}
