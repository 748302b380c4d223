package factory

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ordered-streams/eventrecorder-go/eventstore"
	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/memoryengine"
	"github.com/ordered-streams/eventrecorder-go/recorder/pool"
	"github.com/ordered-streams/eventrecorder-go/recorder/postgresengine"
	"github.com/ordered-streams/eventrecorder-go/recorder/sqliteengine"
)

// CloseFunc releases the resources behind a built recorder, typically the
// connection pool. It is safe to call once; the memory module returns a no-op.
type CloseFunc func() error

func noopClose() error { return nil }

// BuildAggregateRecorder builds an AggregateRecorder for the configured
// persistence module.
func BuildAggregateRecorder(settings Settings) (recorder.AggregateRecorder, CloseFunc, error) {
	switch settings.PersistenceModule {
	case ModuleMemory:
		return memoryengine.NewAggregateRecorder(), noopClose, nil
	case ModulePostgres:
		connectionPool, buildErr := buildPostgresPool(settings)
		if buildErr != nil {
			return nil, nil, buildErr
		}

		engine, newErr := postgresengine.NewAggregateRecorder(connectionPool, postgresOptions(settings)...)
		if newErr != nil {
			return nil, nil, closePoolAndFail(connectionPool, newErr)
		}

		return engine, connectionPool.Close, nil
	case ModuleSQLite:
		connectionPool, readerDB, buildErr := buildSQLitePool(settings)
		if buildErr != nil {
			return nil, nil, buildErr
		}

		engine, newErr := sqliteengine.NewAggregateRecorder(connectionPool, sqliteOptions(settings, readerDB)...)
		if newErr != nil {
			return nil, nil, closePoolAndFail(connectionPool, newErr)
		}

		return engine, connectionPool.Close, nil
	default:
		return nil, nil, unknownModule(settings)
	}
}

// BuildApplicationRecorder builds an ApplicationRecorder for the configured
// persistence module.
func BuildApplicationRecorder(settings Settings) (recorder.ApplicationRecorder, CloseFunc, error) {
	switch settings.PersistenceModule {
	case ModuleMemory:
		return memoryengine.NewApplicationRecorder(), noopClose, nil
	case ModulePostgres:
		connectionPool, buildErr := buildPostgresPool(settings)
		if buildErr != nil {
			return nil, nil, buildErr
		}

		engine, newErr := postgresengine.NewApplicationRecorder(connectionPool, postgresOptions(settings)...)
		if newErr != nil {
			return nil, nil, closePoolAndFail(connectionPool, newErr)
		}

		return engine, connectionPool.Close, nil
	case ModuleSQLite:
		connectionPool, readerDB, buildErr := buildSQLitePool(settings)
		if buildErr != nil {
			return nil, nil, buildErr
		}

		engine, newErr := sqliteengine.NewApplicationRecorder(connectionPool, sqliteOptions(settings, readerDB)...)
		if newErr != nil {
			return nil, nil, closePoolAndFail(connectionPool, newErr)
		}

		return engine, connectionPool.Close, nil
	default:
		return nil, nil, unknownModule(settings)
	}
}

// BuildProcessRecorder builds a ProcessRecorder for the configured
// persistence module.
func BuildProcessRecorder(settings Settings) (recorder.ProcessRecorder, CloseFunc, error) {
	switch settings.PersistenceModule {
	case ModuleMemory:
		return memoryengine.NewProcessRecorder(), noopClose, nil
	case ModulePostgres:
		connectionPool, buildErr := buildPostgresPool(settings)
		if buildErr != nil {
			return nil, nil, buildErr
		}

		engine, newErr := postgresengine.NewProcessRecorder(connectionPool, postgresOptions(settings)...)
		if newErr != nil {
			return nil, nil, closePoolAndFail(connectionPool, newErr)
		}

		return engine, connectionPool.Close, nil
	case ModuleSQLite:
		connectionPool, readerDB, buildErr := buildSQLitePool(settings)
		if buildErr != nil {
			return nil, nil, buildErr
		}

		engine, newErr := sqliteengine.NewProcessRecorder(connectionPool, sqliteOptions(settings, readerDB)...)
		if newErr != nil {
			return nil, nil, closePoolAndFail(connectionPool, newErr)
		}

		return engine, connectionPool.Close, nil
	default:
		return nil, nil, unknownModule(settings)
	}
}

// BuildEventStore builds an EventStore over an ApplicationRecorder for the
// configured persistence module, using the given mapper.
func BuildEventStore(settings Settings, mapper eventstore.Mapper) (*eventstore.EventStore, CloseFunc, error) {
	applicationRecorder, closePool, buildErr := BuildApplicationRecorder(settings)
	if buildErr != nil {
		return nil, nil, buildErr
	}

	store, newErr := eventstore.New(applicationRecorder, mapper)
	if newErr != nil {
		_ = closePool()
		return nil, nil, newErr
	}

	return store, closePool, nil
}

func buildPostgresPool(settings Settings) (*pool.Pool, error) {
	return pool.New(postgresengine.NewSessionFactory(settings.DSN), poolOptions(settings)...)
}

func buildSQLitePool(settings Settings) (*pool.Pool, *sqlx.DB, error) {
	db, openErr := sqliteengine.Open(settings.DSN)
	if openErr != nil {
		return nil, nil, openErr
	}

	options := poolOptions(settings)
	// rowid assignment in commit order requires one writer at a time
	options = append(options, pool.WithSingleWriter())

	connectionPool, newErr := pool.New(sqliteengine.NewSessionFactory(db, 0), options...)
	if newErr != nil {
		_ = db.Close()
		return nil, nil, newErr
	}

	return connectionPool, db, nil
}

func poolOptions(settings Settings) []pool.Option {
	var options []pool.Option

	if settings.PoolSize > 0 {
		options = append(options, pool.WithPoolSize(settings.PoolSize))
	}

	if settings.PoolMaxOverflow > 0 {
		options = append(options, pool.WithMaxOverflow(settings.PoolMaxOverflow))
	}

	if settings.ConnMaxAge > 0 {
		options = append(options, pool.WithMaxAge(settings.ConnMaxAge))
	}

	if settings.PrePing {
		options = append(options, pool.WithPrePing())
	}

	if settings.SingleWriter {
		options = append(options, pool.WithSingleWriter())
	}

	return options
}

func postgresOptions(settings Settings) []postgresengine.Option {
	var options []postgresengine.Option

	if settings.EventsTableName != "" {
		options = append(options, postgresengine.WithTableName(settings.EventsTableName))
	}

	if settings.TrackingTableName != "" {
		options = append(options, postgresengine.WithTrackingTableName(settings.TrackingTableName))
	}

	if settings.LockTimeout > 0 {
		options = append(options, postgresengine.WithLockTimeout(settings.LockTimeout))
	}

	if settings.IdleInTransactionTimeout > 0 {
		options = append(options, postgresengine.WithIdleInTransactionTimeout(settings.IdleInTransactionTimeout))
	}

	return options
}

func sqliteOptions(settings Settings, readerDB *sqlx.DB) []sqliteengine.Option {
	options := []sqliteengine.Option{sqliteengine.WithReaderDB(readerDB)}

	if settings.EventsTableName != "" {
		options = append(options, sqliteengine.WithTableName(settings.EventsTableName))
	}

	if settings.TrackingTableName != "" {
		options = append(options, sqliteengine.WithTrackingTableName(settings.TrackingTableName))
	}

	return options
}

func closePoolAndFail(connectionPool *pool.Pool, err error) error {
	_ = connectionPool.Close()
	return err
}

func unknownModule(settings Settings) error {
	return errors.Join(recorder.ErrProgramming,
		fmt.Errorf("%w: %s", ErrUnknownPersistenceModule, settings.PersistenceModule))
}
