// Package database provides SQLite connectivity for fanbridge.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Forward-only schema migrations from an fs.FS
//   - Connection lifecycle and health checks
//
// All queries elsewhere use parameterised statements. The database file is
// chmod'ed to 0600 on open.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
