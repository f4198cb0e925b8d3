package auth

// EventType identifies a committed change to the set of local users.
type EventType string

const (
	EventUserAdded         EventType = "user_added"
	EventUserLoggedIn      EventType = "user_logged_in"
	EventUserLoggedOut     EventType = "user_logged_out"
	EventUserLinked        EventType = "user_linked"
	EventUserRemoved       EventType = "user_removed"
	EventActiveUserChanged EventType = "active_user_changed"
)

// Event describes one committed change. For EventActiveUserChanged, UserID is
// the new active user ("" when none) and PreviousUserID the old one.
type Event struct {
	Type           EventType
	UserID         string
	PreviousUserID string
}

// Listener receives events after the change is durable. Listeners run on the
// goroutine that made the change, after Auth has released its write lock, so
// they may call back into Auth.
type Listener func(Event)

type eventLog []Event

func (l *eventLog) add(t EventType, userID string) {
	*l = append(*l, Event{Type: t, UserID: userID})
}

func (l *eventLog) activeChanged(prev, next string) {
	if prev == next {
		return
	}
	*l = append(*l, Event{Type: EventActiveUserChanged, UserID: next, PreviousUserID: prev})
}
