package sync

import "errors"

// ErrRangeInvalid is the defensive abort for a sequence window whose clamped
// start exceeds its end. The clamps make it unreachable; if it fires anyway
// the operation logs it and returns empty instead of crashing.
var ErrRangeInvalid = errors.New("invalid sequence range")

// Status describes the state of one refresh scope (account+folder).
type Status int

const (
	StatusIdle Status = iota
	StatusRefreshing
	// StatusLoadFailed is a recoverable, dismissible condition: the
	// in-flight operation aborted, nothing else did.
	StatusLoadFailed
	// StatusTimedOut means the watchdog interval elapsed. The underlying
	// fetch is not terminated; a late result still reaches the cache but is
	// not rendered.
	StatusTimedOut
)

// String returns a short label for presentation.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRefreshing:
		return "refreshing"
	case StatusLoadFailed:
		return "load failed"
	case StatusTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// StatusEvent is delivered to status listeners on every scope transition.
type StatusEvent struct {
	Account string
	Folder  string
	Status  Status
	Err     error
}

// OnStatus registers a listener for refresh status transitions. Not safe to
// call after the synchronizer starts serving operations.
func (s *Synchronizer) OnStatus(fn func(StatusEvent)) {
	s.statusFns = append(s.statusFns, fn)
}

// OnNewMessages registers a listener for new-message notifications. It fires
// only when the reconciler detects at least one previously unseen UID.
func (s *Synchronizer) OnNewMessages(fn func(account, folder string, count int)) {
	s.newMsgFns = append(s.newMsgFns, fn)
}

func (s *Synchronizer) emitStatus(account, folder string, status Status, err error) {
	for _, fn := range s.statusFns {
		fn(StatusEvent{Account: account, Folder: folder, Status: status, Err: err})
	}
}

func (s *Synchronizer) emitNewMessages(account, folder string, count int) {
	if count <= 0 {
		return
	}
	for _, fn := range s.newMsgFns {
		fn(account, folder, count)
	}
}
