package batch

import "fmt"

type ItemState string

const (
	StatePending        ItemState = "pending"
	StateCracking       ItemState = "cracking"
	StateCracked        ItemState = "cracked"
	StateCrackFailed    ItemState = "crack_failed"
	StateCompressing    ItemState = "compressing"
	StateCompressed     ItemState = "compressed"
	StateCompressFailed ItemState = "compress_failed"
	StateUploading      ItemState = "uploading"
	StateUploaded       ItemState = "uploaded"
	StateUploadFailed   ItemState = "upload_failed"
	StateConverting     ItemState = "converting"
	StateDone           ItemState = "done"
	StateCancelled      ItemState = "cancelled"
)

// A disabled stage jumps straight to its done state, which is why e.g.
// pending -> cracked is allowed.
var allowedTransitions = map[ItemState]map[ItemState]bool{
	StatePending: {
		StateCracking:  true,
		StateCracked:   true,
		StateCancelled: true,
	},
	StateCracking: {
		StateCracked:     true,
		StateCrackFailed: true,
		StateCancelled:   true,
	},
	StateCracked: {
		StateCompressing: true,
		StateCompressed:  true,
		StateCancelled:   true,
	},
	StateCompressing: {
		StateCompressed:     true,
		StateCompressFailed: true,
		StateCancelled:      true,
	},
	StateCompressed: {
		StateUploading: true,
		StateUploaded:  true,
		StateCancelled: true,
	},
	StateUploading: {
		StateUploaded:     true,
		StateUploadFailed: true,
		StateCancelled:    true,
	},
	StateUploaded: {
		StateConverting: true,
		StateDone:       true,
	},
	StateConverting: {
		StateDone: true,
	},
	StateCrackFailed:    {},
	StateCompressFailed: {},
	StateUploadFailed:   {},
	StateDone:           {},
	StateCancelled:      {},
}

func CanTransition(from, to ItemState) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Terminal reports whether no further transition can leave s.
func (s ItemState) Terminal() bool {
	next, ok := allowedTransitions[s]
	return ok && len(next) == 0
}

func (s ItemState) Failed() bool {
	switch s {
	case StateCrackFailed, StateCompressFailed, StateUploadFailed:
		return true
	}
	return false
}

func transitionError(item string, from, to ItemState) error {
	return fmt.Errorf("invalid item state transition: %q -> %q (item=%s)", from, to, item)
}
