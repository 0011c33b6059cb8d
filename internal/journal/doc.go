// Package journal persists what the orchestrator did.
//
// Store writes finished pipeline runs and diagnostics to SQLite and keeps the
// unsafe latch, which must survive a restart: a DTI that comes back up after
// a critical fault stays out of automatic operation until an operator clears
// it. The schema lives in the migrations package.
package journal
