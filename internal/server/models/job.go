package models

// Job is one unit of asynchronous ingestion work. The record identifier is
// the only payload; all other state is re-read from the record store when
// the job runs, so stale queue data cannot mislead the worker.
type Job struct {
	ID       int64
	RecordID int64
	// Attempts counts runs that have already failed.
	Attempts int
}
