package domain

// Status is the lifecycle state of a MonitorTask.
type Status string

const (
	StatusActive       Status = "active"
	StatusSoldOutToday Status = "sold_out_today"
	StatusStopped      Status = "stopped"

	// Completed and expired are reserved: nothing assigns them today,
	// but cleanup removes tasks found in either state.
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// transitions lists every allowed status change.
var transitions = map[Status][]Status{
	StatusActive:       {StatusSoldOutToday, StatusStopped},
	StatusSoldOutToday: {StatusActive},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSoldOutToday, StatusStopped, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Collectable reports whether cleanup may remove a task in this status.
func (s Status) Collectable() bool {
	return s == StatusCompleted || s == StatusExpired
}
