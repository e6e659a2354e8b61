package model

// RegistrationKind is the publication state of a completed artifact
type RegistrationKind string

const (
	RegistrationUnregistered      RegistrationKind = "unregistered"
	RegistrationRegistered        RegistrationKind = "registered"
	RegistrationAlreadyRegistered RegistrationKind = "alreadyRegistered"
	RegistrationFailed            RegistrationKind = "registrationFailed"
)

// RegistrationState carries the kind plus the failure reason, if any
type RegistrationState struct {
	Kind   RegistrationKind `json:"kind"`
	Reason string           `json:"reason,omitempty"`
}

func Unregistered() RegistrationState {
	return RegistrationState{Kind: RegistrationUnregistered}
}

func Registered() RegistrationState {
	return RegistrationState{Kind: RegistrationRegistered}
}

func AlreadyRegistered() RegistrationState {
	return RegistrationState{Kind: RegistrationAlreadyRegistered}
}

func RegistrationFailedWith(reason string) RegistrationState {
	return RegistrationState{Kind: RegistrationFailed, Reason: reason}
}

// IsPublished reports whether the artifact is known to be the official version
func (r RegistrationState) IsPublished() bool {
	return r.Kind == RegistrationRegistered || r.Kind == RegistrationAlreadyRegistered
}

// CanMoveTo guards registration transitions. Published states are final.
func (r RegistrationState) CanMoveTo(next RegistrationState) bool {
	switch r.Kind {
	case RegistrationRegistered, RegistrationAlreadyRegistered:
		return false
	case RegistrationFailed:
		return next.Kind != RegistrationUnregistered
	default:
		return true
	}
}
