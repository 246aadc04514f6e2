package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{"discovered to pending", StateDiscovered, StatePending, true},
		{"pending to indexing", StatePending, StateIndexing, true},
		{"indexing to indexed", StateIndexing, StateIndexed, true},
		{"indexing to failed", StateIndexing, StateFailed, true},
		{"indexed to pending", StateIndexed, StatePending, true},
		{"failed to pending", StateFailed, StatePending, true},
		{"any to removed", StateIndexed, StateRemoved, true},
		{"pending to indexed skips indexing", StatePending, StateIndexed, false},
		{"indexed to indexing skips pending", StateIndexed, StateIndexing, false},
		{"removed is terminal", StateRemoved, StatePending, false},
		{"discovered to indexing skips pending", StateDiscovered, StateIndexing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}
