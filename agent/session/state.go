package session

import (
	"time"

	contractx "github.com/salonlab/concierge/agent/contract"
)

// State is the per-user conversational working set: the focus list loaded for
// reference resolution and the booking details heard so far.
type State struct {
	UserID    int64
	Focus     []contractx.FocusRecord
	Service   string
	Master    string
	Date      string
	TimeOfDay string
	UpdatedAt time.Time
}

// clone returns a deep copy so callers can never alias store-held state.
func (s *State) clone() State {
	out := *s
	out.Focus = append([]contractx.FocusRecord(nil), s.Focus...)
	return out
}
