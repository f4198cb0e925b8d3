package session

import (
	"fmt"
	"slices"
)

// state is the in-memory view: records in first-login order plus the
// active pointer.
type state struct {
	records []Record
	active  string
}

func (st state) clone() state {
	records := make([]Record, len(st.records))
	for i, r := range st.records {
		records[i] = r.Clone()
	}
	return state{records: records, active: st.active}
}

func (st state) find(userID string) int {
	return slices.IndexFunc(st.records, func(r Record) bool { return r.UserID == userID })
}

func (st state) order() []string {
	ids := make([]string, len(st.records))
	for i, r := range st.records {
		ids[i] = r.UserID
	}
	return ids
}

// Tx is a pending set of mutations applied by Store.Update. Its methods
// enforce the same invariants as the Store methods of the same name; the
// changes become visible and durable together when Update returns nil.
type Tx struct {
	st       state
	dirty    map[string]struct{}
	removed  map[string]struct{}
	modified bool
}

func newTx(st state) *Tx {
	return &Tx{
		st:      st.clone(),
		dirty:   make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Get returns a copy of the record for userID.
func (tx *Tx) Get(userID string) (Record, bool) {
	i := tx.st.find(userID)
	if i < 0 {
		return Record{}, false
	}
	return tx.st.records[i].Clone(), true
}

// ActiveUserID returns the pending active user id, or "" if none.
func (tx *Tx) ActiveUserID() string {
	return tx.st.active
}

// List returns copies of the pending records in order.
func (tx *Tx) List() []Record {
	return tx.st.clone().records
}

// Append adds rec at the tail.
func (tx *Tx) Append(rec Record) error {
	if rec.UserID == "" {
		return fmt.Errorf("append: empty user id")
	}
	if tx.st.find(rec.UserID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, rec.UserID)
	}
	tx.st.records = append(tx.st.records, rec.Clone())
	tx.dirty[rec.UserID] = struct{}{}
	delete(tx.removed, rec.UserID)
	tx.modified = true
	return nil
}

// Replace applies mutate to the record for userID in place. The record keeps
// its position; mutate must not change UserID.
func (tx *Tx) Replace(userID string, mutate func(*Record)) error {
	i := tx.st.find(userID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	rec := tx.st.records[i].Clone()
	mutate(&rec)
	if rec.UserID != userID {
		return fmt.Errorf("replace %s: user id cannot change", userID)
	}
	tx.st.records[i] = rec
	tx.dirty[userID] = struct{}{}
	tx.modified = true
	return nil
}

// Remove deletes the record for userID, clearing the active pointer if it
// pointed at it.
func (tx *Tx) Remove(userID string) error {
	i := tx.st.find(userID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	tx.st.records = slices.Delete(tx.st.records, i, i+1)
	if tx.st.active == userID {
		tx.st.active = ""
	}
	delete(tx.dirty, userID)
	tx.removed[userID] = struct{}{}
	tx.modified = true
	return nil
}

// SetActive points the active pointer at userID; "" clears it.
func (tx *Tx) SetActive(userID string) error {
	if userID != "" && tx.st.find(userID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if tx.st.active == userID {
		return nil
	}
	tx.st.active = userID
	tx.modified = true
	return nil
}
