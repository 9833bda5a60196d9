// Package queue defines the work items exported by a batch run and builds the
// processing queue from the listing feeds.
package queue

import (
	"fmt"
	"strings"
)

// Direction identifies which mailbox a message belongs to.
type Direction string

const (
	// Outgoing messages live in the "Postausgang" view.
	Outgoing Direction = "outgoing"

	// Incoming messages live in the "Posteingang" view.
	Incoming Direction = "incoming"
)

// ListLocation returns the hash route of the direction's list view.
func (d Direction) ListLocation() string {
	switch d {
	case Outgoing:
		return "#/postausgang"
	case Incoming:
		return "#/posteingang"
	default:
		return ""
	}
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Outgoing || d == Incoming
}

// Record is one message as returned by the listing API.
type Record struct {
	MessageUUID  string `json:"messageUuid"`
	CreationTime string `json:"ozgppCreationTime"`
}

// WorkItem is one message to export. It is immutable once built.
type WorkItem struct {
	// ID is the message UUID; it doubles as the correlation token.
	ID string

	// DetailLocation is the hash route of the message detail view.
	DetailLocation string

	// ListLocation is the hash route of the list view the message belongs to.
	ListLocation string

	Direction Direction
}

// NewWorkItem builds the work item for a message in the given direction.
func NewWorkItem(id string, direction Direction) (WorkItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return WorkItem{}, fmt.Errorf("work item: empty message id")
	}
	if !direction.Valid() {
		return WorkItem{}, fmt.Errorf("work item %s: unknown direction %q", id, direction)
	}

	list := direction.ListLocation()
	return WorkItem{
		ID:             id,
		DetailLocation: list + "/detail/" + id,
		ListLocation:   list,
		Direction:      direction,
	}, nil
}

// String implements fmt.Stringer.
func (w WorkItem) String() string {
	return fmt.Sprintf("%s/%s", w.Direction, w.ID)
}
