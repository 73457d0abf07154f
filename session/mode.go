package session

// ModeKind says whether a submitted name creates a session or renames one.
type ModeKind string

const (
	ModeCreate ModeKind = "create"
	ModeRename ModeKind = "rename"
)

// Mode is the form state a name is submitted in.
type Mode struct {
	Kind  ModeKind `json:"kind"`
	Index int      `json:"index,omitempty"` // session being renamed
}

func CreateMode() Mode { return Mode{Kind: ModeCreate} }

func RenameMode(index int) Mode { return Mode{Kind: ModeRename, Index: index} }

func (m Mode) IsValid() bool {
	switch m.Kind {
	case ModeCreate, ModeRename:
		return true
	default:
		return false
	}
}

// Outcome describes what SubmitName did.
type Outcome string

const (
	OutcomeApplied           Outcome = "applied"
	OutcomeNeedsConfirmation Outcome = "needs_confirmation"
	OutcomeUnchanged         Outcome = "unchanged" // renamed to its own name
	OutcomeIgnored           Outcome = "ignored"   // empty name or stale index
)

// PendingAction is a submission waiting for the user to confirm replacing
// an existing session. Pass it to Manager.Confirm to carry it out.
type PendingAction struct {
	Name string `json:"name"`
	Mode Mode   `json:"mode"`
}

type Submission struct {
	Outcome Outcome        `json:"outcome"`
	Pending *PendingAction `json:"pending,omitempty"`
	View    View           `json:"view"`
}
