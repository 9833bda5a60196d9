// Package journal records export runs in Redis.
//
// A run stores its header (start, finish, per-outcome counts), the ordered
// list of item outcomes, and the listing snapshot per direction. All keys of
// a run share one TTL.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	j := journal.New(redisClient, 30*24*time.Hour)
//
//	run := journal.NewRun(runID, len(q))
//	_ = j.StartRun(ctx, run)
//	_ = j.RecordItem(ctx, run.ID, journal.ItemRecord{ID: id, Outcome: journal.OutcomeExported})
//	_ = j.FinishRun(ctx, run)
//
//	latest, err := j.Latest(ctx)
//	if errors.Is(err, journal.ErrNotFound) {
//		// no run recorded yet
//	}
//
// # Metrics
//
//   - mjp_journal_writes_total{operation}
//   - mjp_journal_errors_total{operation}
package journal
