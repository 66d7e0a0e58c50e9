package payment

// Status is the canonical payment lifecycle state shared by all three
// acceptance methods.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
	StatusFailed     Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends the lifecycle. Terminal
// payments are never mutated again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusFailed
}

func (s Status) IsCompleted() bool {
	return s == StatusCompleted
}

func (s Status) String() string {
	return string(s)
}
