package model

// UpdateKind selects which part of an item an Update touches
type UpdateKind int

const (
	UpdateStatus UpdateKind = iota
	UpdateRegistration
	UpdateReset
)

// Update is a keyed change to exactly one batch item
type Update struct {
	TargetID     string
	Kind         UpdateKind
	Status       JobStatus
	Registration RegistrationState
}

func StatusUpdate(targetID string, status JobStatus) Update {
	return Update{TargetID: targetID, Kind: UpdateStatus, Status: status}
}

func RegistrationUpdate(targetID string, state RegistrationState) Update {
	return Update{TargetID: targetID, Kind: UpdateRegistration, Registration: state}
}

func ResetUpdate(targetID string) Update {
	return Update{TargetID: targetID, Kind: UpdateReset}
}

// Reduce applies u to items and returns the resulting map plus whether the
// update was accepted. The input map is never mutated; only the entry keyed
// by u.TargetID can differ in the result.
//
// Rejected updates:
//   - unknown target
//   - a status that would move the job backwards, or any change to a terminal job
//   - a status for a different job id than the one already recorded
//   - a registration for an item that is not completed, or that leaves a published state
//   - a reset of an item that is not failed
func Reduce(items map[string]BatchItem, u Update) (map[string]BatchItem, bool) {
	cur, ok := items[u.TargetID]
	if !ok {
		return items, false
	}

	next := cur
	switch u.Kind {
	case UpdateStatus:
		if cur.Status != nil {
			if cur.Status.JobID != "" && u.Status.JobID != "" && cur.Status.JobID != u.Status.JobID {
				return items, false
			}
			if !cur.Status.Status.CanAdvance(u.Status.Status) {
				return items, false
			}
		}
		st := u.Status.Clone()
		if st.JobID == "" && cur.Status != nil {
			st.JobID = cur.Status.JobID
		}
		next.Status = &st

	case UpdateRegistration:
		if !cur.EligibleForRegistration() {
			return items, false
		}
		if !cur.Registration.CanMoveTo(u.Registration) {
			return items, false
		}
		next.Registration = u.Registration

	case UpdateReset:
		if cur.Status != nil && cur.Status.Status != JobStateFailed {
			return items, false
		}
		next.Status = nil
		next.Registration = Unregistered()
		next.Attempt = cur.Attempt + 1

	default:
		return items, false
	}

	out := make(map[string]BatchItem, len(items))
	for k, v := range items {
		out[k] = v
	}
	out[u.TargetID] = next
	return out, true
}
