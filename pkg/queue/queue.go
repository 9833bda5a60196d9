package queue

import (
	"github.com/rs/zerolog/log"
)

// Queue is the ordered list of work items for one batch run.
// Insertion order is processing order.
type Queue []WorkItem

// Build creates the queue: every outgoing record in feed order, then every
// incoming record in feed order. Records without a message id are dropped.
func Build(outgoing, incoming []Record) Queue {
	q := make(Queue, 0, len(outgoing)+len(incoming))
	q = q.append(outgoing, Outgoing)
	q = q.append(incoming, Incoming)
	return q
}

func (q Queue) append(records []Record, direction Direction) Queue {
	for _, rec := range records {
		item, err := NewWorkItem(rec.MessageUUID, direction)
		if err != nil {
			log.Warn().
				Err(err).
				Str("direction", string(direction)).
				Str("creation_time", rec.CreationTime).
				Msg("Dropping record without usable id")
			continue
		}
		q = append(q, item)
	}
	return q
}

// Count returns the number of items per direction.
func (q Queue) Count(direction Direction) int {
	n := 0
	for _, item := range q {
		if item.Direction == direction {
			n++
		}
	}
	return n
}
