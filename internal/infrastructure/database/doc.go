// Package database opens the bridge's SQLite store and applies its schema.
//
// The store holds the command audit trail. It runs in WAL mode with a
// single writer connection and a busy timeout, and the file is created
// with 0600 permissions.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// with an optional matching .down.sql. Each is applied in its own
// transaction and recorded in schema_migrations.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
