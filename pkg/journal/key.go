package journal

import (
	"strings"
)

const keyPrefix = "mjp"

// Kind selects which record of a run a key addresses.
type Kind string

const (
	KindRun     Kind = "run"
	KindItems   Kind = "items"
	KindListing Kind = "listing"
)

// runsIndexKey is the sorted set of run ids scored by start time.
const runsIndexKey = keyPrefix + ":runs"

// Key identifies one journal record.
type Key struct {
	Kind  Kind
	RunID string

	// Direction is only used by KindListing.
	Direction string
}

// String generates the Redis key.
// Format: mjp:run:<run-id>[:items|:listing:<direction>]
//
// Example:
//
//	mjp:run:4f1c...:listing:outgoing
func (k Key) String() string {
	parts := []string{keyPrefix, "run", k.RunID}
	switch k.Kind {
	case KindItems:
		parts = append(parts, "items")
	case KindListing:
		parts = append(parts, "listing", strings.ToLower(k.Direction))
	}
	return strings.Join(parts, ":")
}
