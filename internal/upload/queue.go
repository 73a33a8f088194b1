package upload

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrIndexOutOfRange is returned for queue positions that do not exist
	ErrIndexOutOfRange = errors.New("file index out of range")
	// ErrNotResubmittable is returned when resubmitting an entry that has not failed
	ErrNotResubmittable = errors.New("only failed files can be resubmitted")
)

// Queue owns the tracked files of one upload session
type Queue struct {
	mu      sync.Mutex
	policy  Policy
	entries []TrackedFile
	onEmpty func()
}

// NewQueue creates a queue that validates files against policy. onEmpty, if
// set, runs whenever the queue transitions to empty through Dismiss,
// DismissAll or Clear; sessions use it to drop reconciliation data.
func NewQueue(policy Policy, onEmpty func()) *Queue {
	return &Queue{
		policy:  policy,
		onEmpty: onEmpty,
	}
}

// Policy returns the validation policy
func (q *Queue) Policy() Policy {
	return q.policy
}

// AddFiles validates and appends one entry per file, preserving order.
// Duplicate names are distinct entries.
func (q *Queue) AddFiles(files ...*File) []TrackedFile {
	added := make([]TrackedFile, 0, len(files))
	for _, f := range files {
		added = append(added, q.track(f))
	}

	q.mu.Lock()
	q.entries = append(q.entries, added...)
	q.mu.Unlock()

	return added
}

func (q *Queue) track(f *File) TrackedFile {
	verdict := q.policy.Validate(f)
	tf := TrackedFile{File: f, Status: StatusIdle}
	if !verdict.IsValid {
		tf.Status = StatusError
		tf.Error = verdict.Error
	}
	return tf
}

// Dismiss removes the entry at index
func (q *Queue) Dismiss(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.entries) {
		return fmt.Errorf("dismissing file %d: %w", index, ErrIndexOutOfRange)
	}
	q.entries = append(q.entries[:index:index], q.entries[index+1:]...)
	if len(q.entries) == 0 {
		q.emptied()
	}
	return nil
}

// DismissAll empties the queue
func (q *Queue) DismissAll() {
	q.Clear()
}

// Clear empties the queue and runs the empty hook
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = nil
	q.emptied()
}

func (q *Queue) emptied() {
	if q.onEmpty != nil {
		q.onEmpty()
	}
}

// Resubmit re-validates a failed entry in place so the next dispatch picks it
// up again.
func (q *Queue) Resubmit(index int) (TrackedFile, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.entries) {
		return TrackedFile{}, fmt.Errorf("resubmitting file %d: %w", index, ErrIndexOutOfRange)
	}
	if q.entries[index].Status != StatusError {
		return TrackedFile{}, fmt.Errorf("resubmitting file %d: %w", index, ErrNotResubmittable)
	}
	q.entries[index] = q.track(q.entries[index].File)
	return q.entries[index], nil
}

// Update applies patch to the entry holding ref. Updates for a file that has
// been dismissed are dropped; it reports whether an entry was changed.
func (q *Queue) Update(ref *File, patch Patch) bool {
	return q.UpdateThen(ref, patch, nil)
}

// UpdateThen is Update followed by then, both under the queue lock, so a
// concurrent Dismiss or Clear sees either none or all of it. then runs only
// when the entry was still queued and must not call back into the queue.
func (q *Queue) UpdateThen(ref *File, patch Patch, then func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].File == ref {
			q.entries[i] = patch.apply(q.entries[i])
			if then != nil {
				then()
			}
			return true
		}
	}
	return false
}

// Idle returns the entries currently waiting for dispatch
func (q *Queue) Idle() []TrackedFile {
	q.mu.Lock()
	defer q.mu.Unlock()

	var idle []TrackedFile
	for _, e := range q.entries {
		if e.Status == StatusIdle {
			idle = append(idle, e)
		}
	}
	return idle
}

// claimIdle moves every idle entry to uploading with zero progress and
// returns them. Selection and transition happen under one lock so
// overlapping dispatches never send the same file twice.
func (q *Queue) claimIdle() []TrackedFile {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []TrackedFile
	for i := range q.entries {
		if q.entries[i].Status == StatusIdle {
			q.entries[i] = uploadingPatch().apply(q.entries[i])
			claimed = append(claimed, q.entries[i])
		}
	}
	return claimed
}

// Snapshot returns a copy of all entries in queue order
func (q *Queue) Snapshot() []TrackedFile {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]TrackedFile, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of entries
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
