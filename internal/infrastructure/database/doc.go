// Package database opens the SQLite file that holds plugd's operation
// history and applies its embedded schema migrations.
//
// The connection uses WAL mode and a busy timeout so history writes from
// the gateway do not block API reads. The pool is limited to a single
// connection because SQLite allows one writer.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// with an optional matching .down.sql. The migrations package registers
// them through MigrationsFS on import:
//
//	import _ "github.com/nerrad567/gray-logic-plug/migrations"
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
