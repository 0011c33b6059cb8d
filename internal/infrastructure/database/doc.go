// Package database provides the SQLite connection used by the DTI journal.
//
// The database holds three things:
//   - the history of finished pipeline runs
//   - warning and critical diagnostics
//   - the unsafe latch, so a restart cannot silently clear it
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// (with a matching .down.sql) read from an fs.FS, normally the embedded
// filesystem exported by the migrations package. Each migration runs in its
// own transaction and is recorded in schema_migrations.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
