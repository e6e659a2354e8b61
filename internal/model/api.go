package model

// SubmitJobRequest is the body of POST /api/jobs
type SubmitJobRequest struct {
	TargetID       string         `json:"targetId" validate:"required"`
	ApplyDate      string         `json:"applyDate" validate:"required"`
	ApplyContent   string         `json:"applyContent" validate:"required_without=Content"`
	Content        *PolicyContent `json:"content" validate:"omitempty"`
	AccessGroupIDs []string       `json:"accessGroupIds"`
}

// SubmitJobResponse is returned by POST /api/jobs
type SubmitJobResponse struct {
	JobID   string    `json:"jobId"`
	Adopted bool      `json:"adopted"`
	Status  JobStatus `json:"status"`
}

// CreateBatchRequest is the body of POST /api/batches
type CreateBatchRequest struct {
	ApplyDate    string         `json:"applyDate" validate:"required"`
	ApplyContent string         `json:"applyContent" validate:"required_without=Content"`
	Content      *PolicyContent `json:"content" validate:"omitempty"`
	Targets      []BatchTarget  `json:"targets" validate:"required,min=1,dive"`
}

// CreateBatchResponse is returned by POST /api/batches
type CreateBatchResponse struct {
	BatchID  string        `json:"batchId"`
	Snapshot BatchSnapshot `json:"snapshot"`
}

// PolicyContent is the structured form of an applyContent text
type PolicyContent struct {
	Category    string            `json:"category" validate:"required"`
	DirectInput *bool             `json:"directInput"`
	Fields      map[string]string `json:"fields"`
	FreeText    string            `json:"freeText"`
}

// RegisterResponse reports one registration outcome
type RegisterResponse struct {
	ArtifactID   string            `json:"artifactId"`
	Registration RegistrationState `json:"registration"`
}

// RegistrationSummary aggregates a RegisterAll pass
type RegistrationSummary struct {
	Attempted         int           `json:"attempted"`
	Registered        int           `json:"registered"`
	AlreadyRegistered int           `json:"alreadyRegistered"`
	Failed            int           `json:"failed"`
	Closeable         bool          `json:"closeable"`
	Snapshot          BatchSnapshot `json:"snapshot"`
}

// GroupPreference is the saved default group set for one target
type GroupPreference struct {
	TargetID       string   `json:"targetId"`
	AccessGroupIDs []string `json:"accessGroupIds" validate:"required,min=1,dive,required"`
}
