package audit

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"github.com/jllopis/arbiter/pkg/errors"
)

// Drivers accepted by Open.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open builds a store for driver. The returned closer releases the
// underlying connection. DriverNone returns a nil store.
func Open(ctx context.Context, driver, dsn string) (Store, io.Closer, error) {
	nop := closerFunc(func() error { return nil })
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverNone:
		return nil, nop, nil
	case DriverMemory:
		return NewMemoryStore(), nop, nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "file:arbiter_audit?mode=memory&cache=shared"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, errors.New(errors.CodeStorage, "open sqlite", err)
		}
		store, err := NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil
	case DriverPostgres:
		if dsn == "" {
			return nil, nil, errors.New(errors.CodeInvalidInput, "postgres audit driver requires a dsn", nil)
		}
		gdb, err := OpenPostgres(dsn)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, errors.New(errors.CodeStorage, "postgres handle", err)
		}
		store, err := NewGormStore(ctx, gdb)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return store, sqlDB, nil
	default:
		return nil, nil, errors.New(errors.CodeInvalidInput, "unknown audit driver", nil).
			WithContext("driver", driver)
	}
}
