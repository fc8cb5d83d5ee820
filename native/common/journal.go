package common

// Journal records undo actions for a staged state transition. Entries are
// reverted in reverse order of registration, so a transition can be unwound
// to the exact state that preceded it.
type Journal struct {
	entries []func()
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append registers an undo action. Nil actions are ignored.
func (j *Journal) Append(undo func()) {
	if j == nil || undo == nil {
		return
	}
	j.entries = append(j.entries, undo)
}

// Revert undoes every recorded entry, newest first, and empties the journal.
func (j *Journal) Revert() {
	if j == nil {
		return
	}
	for i := len(j.entries) - 1; i >= 0; i-- {
		j.entries[i]()
	}
	j.entries = nil
}

// Commit discards the recorded entries, making the transition permanent.
func (j *Journal) Commit() {
	if j == nil {
		return
	}
	j.entries = nil
}

// Len returns the number of recorded entries.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.entries)
}
