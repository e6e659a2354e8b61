package model

// BatchTarget is one entry of a batch in submission order
type BatchTarget struct {
	TargetID       string   `json:"targetId" validate:"required"`
	AccessGroupIDs []string `json:"accessGroupIds"`
}

// BatchItem is the recorded state of one target. Status is nil until the
// target's job has been submitted.
type BatchItem struct {
	TargetID       string            `json:"targetId"`
	AccessGroupIDs []string          `json:"accessGroupIds"`
	Status         *JobStatus        `json:"status,omitempty"`
	Registration   RegistrationState `json:"registration"`
	Attempt        int               `json:"attempt"`
}

// State returns the job state, or "" when nothing was submitted yet
func (i BatchItem) State() JobState {
	if i.Status == nil {
		return ""
	}
	return i.Status.Status
}

// EligibleForRegistration reports whether the item has a completed artifact
func (i BatchItem) EligibleForRegistration() bool {
	return i.Status != nil && i.Status.Status == JobStateCompleted && i.Status.Result != nil
}

// NewBatchItems seeds one unsubmitted item per target.
func NewBatchItems(targets []BatchTarget) map[string]BatchItem {
	items := make(map[string]BatchItem, len(targets))
	for _, t := range targets {
		items[t.TargetID] = BatchItem{
			TargetID:       t.TargetID,
			AccessGroupIDs: append([]string(nil), t.AccessGroupIDs...),
			Registration:   Unregistered(),
		}
	}
	return items
}

// SnapshotCounts aggregates item states
type SnapshotCounts struct {
	Total              int `json:"total"`
	Pending            int `json:"pending"`
	Queued             int `json:"queued"`
	Processing         int `json:"processing"`
	Completed          int `json:"completed"`
	Failed             int `json:"failed"`
	Registered         int `json:"registered"`
	RegistrationFailed int `json:"registrationFailed"`
}

// BatchSnapshot is the full aggregate view handed to viewers
type BatchSnapshot struct {
	BatchID        string         `json:"batchId"`
	Items          []BatchItem    `json:"items"`
	Counts         SnapshotCounts `json:"counts"`
	Finished       bool           `json:"finished"`
	PublishOffered bool           `json:"publishOffered"`
	Closeable      bool           `json:"closeable"`
}

// Item returns the snapshot entry for a target
func (s BatchSnapshot) Item(targetID string) (BatchItem, bool) {
	for _, it := range s.Items {
		if it.TargetID == targetID {
			return it, true
		}
	}
	return BatchItem{}, false
}

// NewSnapshot lays the items out in submission order and derives counts.
func NewSnapshot(batchID string, order []string, items map[string]BatchItem) BatchSnapshot {
	snap := BatchSnapshot{
		BatchID: batchID,
		Items:   make([]BatchItem, 0, len(order)),
	}
	eligible, published := 0, 0
	for _, id := range order {
		it, ok := items[id]
		if !ok {
			continue
		}
		if it.Status != nil {
			st := it.Status.Clone()
			it.Status = &st
		}
		it.AccessGroupIDs = append([]string(nil), it.AccessGroupIDs...)
		snap.Items = append(snap.Items, it)

		snap.Counts.Total++
		switch it.State() {
		case "":
			snap.Counts.Pending++
		case JobStateQueued:
			snap.Counts.Queued++
		case JobStateProcessing:
			snap.Counts.Processing++
		case JobStateCompleted:
			snap.Counts.Completed++
		case JobStateFailed:
			snap.Counts.Failed++
		}
		if it.EligibleForRegistration() {
			eligible++
			if it.Registration.IsPublished() {
				published++
			}
		}
		switch it.Registration.Kind {
		case RegistrationRegistered, RegistrationAlreadyRegistered:
			snap.Counts.Registered++
		case RegistrationFailed:
			snap.Counts.RegistrationFailed++
		}
	}
	snap.Finished = snap.Counts.Pending+snap.Counts.Queued+snap.Counts.Processing == 0
	snap.PublishOffered = eligible > 0
	snap.Closeable = snap.Finished && eligible == published
	return snap
}
