// Package audit retains derivation runs for later inspection.
//
// A Recorder turns the Result of a derivation run, together with the facts the
// run started from, into a Record and hands it to a Storage backend. Two
// backends are provided: SQLiteStorage for durable retention and MemoryStorage
// for tests and short-lived processes.
//
// Records are pruned by age. A Scheduler runs pruning on a cron schedule:
//
//	scheduler := audit.NewScheduler(storage, audit.RetentionConfig{
//		RetentionDays: 30,
//		Schedule:      "0 3 * * *",
//	}, logger)
//	if err := scheduler.Start(ctx); err != nil {
//		return err
//	}
//	defer scheduler.Stop()
package audit
