// Package storage opens the SQLite state database shared by the takeover
// manager and the usage logger.
//
// The database uses the pure-Go modernc.org/sqlite driver, so switchboard
// builds without cgo. A single connection serializes writers; WAL mode lets
// the CLI read usage statistics while the proxy is writing.
//
// Example:
//
//	db, err := storage.Open(ctx, storage.Config{Path: "~/.switchboard/switchboard.db"})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package storage
