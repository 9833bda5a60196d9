package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JournalWrites tracks successful journal writes
	JournalWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mjp_journal_writes_total",
			Help: "Total number of journal writes",
		},
		[]string{"operation"}, // "start", "item", "listing", "finish"
	)

	// JournalErrors tracks journal operation errors
	JournalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mjp_journal_errors_total",
			Help: "Total number of journal operation errors",
		},
		[]string{"operation"},
	)
)
