package model

// Phase is the record's workflow state. Transitions are driven by callers
// explicitly; the backend treats the phase as data.
type Phase string

const (
	PhaseOpen      Phase = "open"
	PhaseValid     Phase = "valid"
	PhaseCompleted Phase = "completed"
	PhaseRejected  Phase = "rejected"
	PhasePublished Phase = "published"
)

// KnownPhases lists every phase accepted on writes and status updates.
var KnownPhases = []Phase{PhaseOpen, PhaseValid, PhaseCompleted, PhaseRejected, PhasePublished}

// IsValid reports whether p is one of the known phases.
func (p Phase) IsValid() bool {
	for _, known := range KnownPhases {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePhase returns the phase for id, or ok=false for an unknown id.
func ParsePhase(id string) (Phase, bool) {
	p := Phase(id)
	return p, p.IsValid()
}
