// Package index drives the incremental indexing pipeline: discovering
// files, fingerprinting them, and moving each through the extract →
// chunk → embed → store pipeline while tracking per-file state.
package index

// State is the lifecycle state of a tracked file.
type State string

const (
	// StateDiscovered means the file was seen but not yet queued.
	StateDiscovered State = "discovered"
	// StatePending means the file is queued for (re)indexing.
	StatePending State = "pending"
	// StateIndexing means a worker is currently processing the file.
	StateIndexing State = "indexing"
	// StateIndexed means the file's chunks are in the vector store.
	StateIndexed State = "indexed"
	// StateFailed means the last indexing attempt failed.
	StateFailed State = "failed"
	// StateRemoved means the file disappeared and its chunks were
	// purged. Removed records are dropped from the table.
	StateRemoved State = "removed"
)

// transitions lists the legal state changes.
var transitions = map[State][]State{
	StateDiscovered: {StatePending, StateRemoved},
	StatePending:    {StateIndexing, StateRemoved},
	StateIndexing:   {StateIndexed, StateFailed, StateRemoved},
	StateIndexed:    {StatePending, StateRemoved},
	StateFailed:     {StatePending, StateRemoved},
	StateRemoved:    {},
}

// CanTransition reports whether moving from one state to another is
// legal.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
