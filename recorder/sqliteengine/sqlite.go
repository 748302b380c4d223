package sqliteengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect import
	"github.com/google/uuid"

	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/pool"
)

const (
	defaultEventsTableName   = "stored_events"
	defaultTrackingTableName = "notification_tracking"
	defaultRetryAttempts     = 3

	dialectSQLite = "sqlite3"

	colRowID             = "rowid"
	colOriginatorID      = "originator_id"
	colOriginatorVersion = "originator_version"
	colTopic             = "topic"
	colState             = "state"
	colNotificationID    = "notification_id"
	colApplicationName   = "application_name"

	logMsgDBExecFailed  = "database execution failed"
	logMsgDBQueryFailed = "database query execution failed"
	logMsgSQLExecuted   = "executed sql"
	logAttrError        = "error"
	logAttrQuery        = "query"
	logAttrDurationMS   = "duration_ms"
)

var (
	errTrackingNeedsProcessRecorder = errors.New("tracking requires a ProcessRecorder")
	errNonPositiveLimit             = errors.New("limit must be positive")
)

// sqlxQueryer is satisfied by both sqlx.DB and sqlx.Conn.
type sqlxQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlxExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AggregateRecorder is a SQLite-backed per-entity append-only event log with
// optimistic concurrency control via the (originator id, originator version)
// primary key.
type AggregateRecorder struct {
	config
	pool *pool.Pool
}

// NewAggregateRecorder creates an AggregateRecorder on top of the given
// connection pool with optional configuration. The pool should be built with
// the mutually-exclusive read/write mode; see the package documentation.
func NewAggregateRecorder(connectionPool *pool.Pool, options ...Option) (*AggregateRecorder, error) {
	if connectionPool == nil {
		return nil, recorder.ErrNilDatabaseConnection
	}

	cfg := defaultConfig()
	for _, option := range options {
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	return &AggregateRecorder{config: cfg, pool: connectionPool}, nil
}

// CreateTable creates the stored-events table if it does not exist yet.
func (r *AggregateRecorder) CreateTable(ctx context.Context) error {
	return r.execDDL(ctx,
		`CREATE TABLE IF NOT EXISTS "`+r.eventsTableName+`" (
	originator_id TEXT NOT NULL,
	originator_version INTEGER NOT NULL CHECK (originator_version >= 1),
	topic TEXT NOT NULL,
	state BLOB,
	PRIMARY KEY (originator_id, originator_version)
)`)
}

// InsertEvents appends the batch all-or-nothing inside one immediate
// transaction, which takes the database write lock up front.
func (r *AggregateRecorder) InsertEvents(ctx context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	params := recorder.ApplyInsertOptions(options...)
	if params.Tracking != nil {
		return errors.Join(recorder.ErrProgramming, errTrackingNeedsProcessRecorder)
	}

	return r.insertWithRetry(ctx, events, nil)
}

// SelectEvents scans one originator's events by version, ascending by
// default.
func (r *AggregateRecorder) SelectEvents(ctx context.Context, originatorID uuid.UUID, options ...recorder.SelectOption) (recorder.StoredEvents, error) {
	params := recorder.ApplySelectOptions(options...)

	selectStmt := goqu.Dialect(dialectSQLite).
		From(r.eventsTableName).
		Select(colOriginatorID, colOriginatorVersion, colTopic, colState).
		Where(goqu.C(colOriginatorID).Eq(originatorID.String())).
		Prepared(true)

	if params.Gt > 0 {
		selectStmt = selectStmt.Where(goqu.C(colOriginatorVersion).Gt(params.Gt))
	}

	if params.Lte > 0 {
		selectStmt = selectStmt.Where(goqu.C(colOriginatorVersion).Lte(params.Lte))
	}

	if params.Desc {
		selectStmt = selectStmt.Order(goqu.I(colOriginatorVersion).Desc())
	} else {
		selectStmt = selectStmt.Order(goqu.I(colOriginatorVersion).Asc())
	}

	if params.Limit > 0 {
		selectStmt = selectStmt.Limit(uint(params.Limit))
	}

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return nil, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	var events recorder.StoredEvents

	retryErr := recorder.Retry(
		ctx,
		func(ctx context.Context) error {
			var opErr error
			events, opErr = r.queryEvents(ctx, sqlQuery, args)
			return opErr
		},
		recorder.WithMaxAttempts(r.retryAttempts),
		recorder.WithRetryOperational(),
	)
	if retryErr != nil {
		return nil, retryErr
	}

	return events, nil
}

func (r *AggregateRecorder) insertWithRetry(ctx context.Context, events recorder.StoredEvents, tracking *recorder.Tracking) error {
	if len(events) == 0 && tracking == nil {
		return nil
	}

	return recorder.Retry(
		ctx,
		func(ctx context.Context) error {
			return r.insertOnce(ctx, events, tracking)
		},
		recorder.WithMaxAttempts(r.retryAttempts),
	)
}

// insertOnce performs one attempt of the insert transaction. BEGIN IMMEDIATE
// takes the single write lock up front, which is the engine's serialization
// window: rowids, and with them notification ids, are assigned in commit
// order because only one writer exists at a time.
func (r *AggregateRecorder) insertOnce(ctx context.Context, events recorder.StoredEvents, tracking *recorder.Tracking) error {
	conn, getErr := r.pool.GetWriter(ctx)
	if getErr != nil {
		return getErr
	}
	defer r.putConnection(conn)

	session := conn.Session().(*Session).Conn()

	if _, beginErr := session.ExecContext(ctx, "BEGIN IMMEDIATE"); beginErr != nil {
		return translateError(beginErr)
	}

	commitDone := false
	defer func() {
		if !commitDone {
			_, _ = session.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	if len(events) > 0 {
		sqlQuery, args, buildErr := r.buildInsertQuery(events)
		if buildErr != nil {
			return buildErr
		}

		if execErr := r.execStatement(ctx, session, sqlQuery, args); execErr != nil {
			return execErr
		}
	}

	if tracking != nil {
		sqlQuery, args, buildErr := r.buildTrackingInsertQuery(*tracking)
		if buildErr != nil {
			return buildErr
		}

		if execErr := r.execStatement(ctx, session, sqlQuery, args); execErr != nil {
			return execErr
		}
	}

	if _, commitErr := session.ExecContext(ctx, "COMMIT"); commitErr != nil {
		return translateError(commitErr)
	}
	commitDone = true

	return nil
}

func (r *AggregateRecorder) buildInsertQuery(events recorder.StoredEvents) (string, []any, error) {
	insertStmt := goqu.Dialect(dialectSQLite).
		Insert(r.eventsTableName).
		Cols(colOriginatorID, colOriginatorVersion, colTopic, colState).
		Prepared(true)

	for _, event := range events {
		insertStmt = insertStmt.Vals(goqu.Vals{
			event.OriginatorID.String(),
			event.OriginatorVersion,
			event.Topic,
			event.State,
		})
	}

	sqlQuery, args, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return sqlQuery, args, nil
}

func (r *AggregateRecorder) buildTrackingInsertQuery(tracking recorder.Tracking) (string, []any, error) {
	insertStmt := goqu.Dialect(dialectSQLite).
		Insert(r.trackingTableName).
		Cols(colApplicationName, colNotificationID).
		Vals(goqu.Vals{tracking.ApplicationName, tracking.NotificationID}).
		Prepared(true)

	sqlQuery, args, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return sqlQuery, args, nil
}

func (r *AggregateRecorder) execStatement(ctx context.Context, session sqlxExecer, sqlQuery string, args []any) error {
	start := time.Now()
	_, execErr := session.ExecContext(ctx, sqlQuery, args...)
	r.logQuery(ctx, sqlQuery, time.Since(start))

	if execErr != nil {
		translated := translateError(execErr)
		r.logError(ctx, logMsgDBExecFailed, translated, logAttrQuery, sqlQuery)

		return translated
	}

	return nil
}

func (r *AggregateRecorder) queryEvents(ctx context.Context, sqlQuery string, args []any) (recorder.StoredEvents, error) {
	events := make(recorder.StoredEvents, 0)

	scanOneRow := func(rows *sql.Rows) error {
		var (
			rawOriginatorID   string
			originatorVersion int64
			topic             string
			state             []byte
		)

		if scanErr := rows.Scan(&rawOriginatorID, &originatorVersion, &topic, &state); scanErr != nil {
			return scanErr
		}

		originatorID, parseErr := uuid.Parse(rawOriginatorID)
		if parseErr != nil {
			return errors.Join(recorder.ErrProgramming, parseErr)
		}

		events = append(events, recorder.StoredEvent{
			OriginatorID:      originatorID,
			OriginatorVersion: originatorVersion,
			Topic:             topic,
			State:             state,
		})

		return nil
	}

	if err := r.queryRows(ctx, sqlQuery, args, scanOneRow); err != nil {
		return nil, err
	}

	return events, nil
}

// queryRows runs a select through the reader handle or a pooled session and
// feeds every row to the scan callback.
func (r *AggregateRecorder) queryRows(ctx context.Context, sqlQuery string, args []any, scanOneRow func(rows *sql.Rows) error) error {
	return r.withReader(ctx, func(queryer sqlxQueryer) error {
		start := time.Now()
		rows, queryErr := queryer.QueryContext(ctx, sqlQuery, args...)
		r.logQuery(ctx, sqlQuery, time.Since(start))

		if queryErr != nil {
			translated := translateError(queryErr)
			r.logError(ctx, logMsgDBQueryFailed, translated, logAttrQuery, sqlQuery)

			return translated
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			if scanErr := scanOneRow(rows); scanErr != nil {
				if errors.Is(scanErr, recorder.ErrProgramming) {
					return scanErr
				}

				return translateError(scanErr)
			}
		}

		if rowsErr := rows.Err(); rowsErr != nil {
			return translateError(rowsErr)
		}

		return nil
	})
}

func (r *AggregateRecorder) withReader(ctx context.Context, fn func(queryer sqlxQueryer) error) error {
	if r.readerDB != nil {
		return fn(r.readerDB)
	}

	conn, getErr := r.pool.Get(ctx)
	if getErr != nil {
		return getErr
	}
	defer r.putConnection(conn)

	return fn(conn.Session().(*Session).Conn())
}

func (r *AggregateRecorder) putConnection(conn *pool.Connection) {
	if putErr := r.pool.Put(conn); putErr != nil && r.logger != nil {
		r.logger.Warn("failed to return connection to the pool", logAttrError, putErr.Error())
	}
}

func (r *AggregateRecorder) execDDL(ctx context.Context, statements ...string) error {
	conn, getErr := r.pool.GetWriter(ctx)
	if getErr != nil {
		return getErr
	}
	defer r.putConnection(conn)

	session := conn.Session().(*Session).Conn()

	for _, statement := range statements {
		if _, execErr := session.ExecContext(ctx, statement); execErr != nil {
			return translateError(execErr)
		}
	}

	return nil
}

func (r *AggregateRecorder) logQuery(ctx context.Context, sqlQuery string, duration time.Duration) {
	durationMS := float64(duration.Microseconds()) / 1000.0

	if r.contextualLogger != nil {
		r.contextualLogger.DebugContext(ctx, logMsgSQLExecuted, logAttrDurationMS, durationMS, logAttrQuery, sqlQuery)
		return
	}

	if r.logger != nil {
		r.logger.Debug(logMsgSQLExecuted, logAttrDurationMS, durationMS, logAttrQuery, sqlQuery)
	}
}

func (r *AggregateRecorder) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if r.contextualLogger != nil {
		r.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if r.logger != nil {
		r.logger.Error(msg, allArgs...)
	}
}

// ApplicationRecorder is a SQLite-backed AggregateRecorder with a globally
// ordered notification log. Notification ids are the stored-events rowids,
// assigned in commit order by the single writer.
type ApplicationRecorder struct {
	AggregateRecorder
}

// NewApplicationRecorder creates an ApplicationRecorder on top of the given
// connection pool with optional configuration.
func NewApplicationRecorder(connectionPool *pool.Pool, options ...Option) (*ApplicationRecorder, error) {
	base, err := NewAggregateRecorder(connectionPool, options...)
	if err != nil {
		return nil, err
	}

	return &ApplicationRecorder{AggregateRecorder: *base}, nil
}

// SelectNotifications scans notifications with an id of at least start,
// ascending, bounded by limit, optionally bounded by a stop id and filtered
// by topics.
func (r *ApplicationRecorder) SelectNotifications(ctx context.Context, start int64, limit int, options ...recorder.NotificationOption) (recorder.Notifications, error) {
	if limit <= 0 {
		return nil, errors.Join(recorder.ErrProgramming, errNonPositiveLimit)
	}

	params := recorder.ApplyNotificationOptions(options...)

	selectStmt := goqu.Dialect(dialectSQLite).
		From(r.eventsTableName).
		Select(colRowID, colOriginatorID, colOriginatorVersion, colTopic, colState).
		Where(goqu.C(colRowID).Gte(start)).
		Order(goqu.I(colRowID).Asc()).
		Limit(uint(limit)).
		Prepared(true)

	if params.Stop > 0 {
		selectStmt = selectStmt.Where(goqu.C(colRowID).Lte(params.Stop))
	}

	if len(params.Topics) > 0 {
		selectStmt = selectStmt.Where(goqu.C(colTopic).In(params.Topics))
	}

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return nil, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	notifications := make(recorder.Notifications, 0)

	scanOneRow := func(rows *sql.Rows) error {
		var (
			notificationID    int64
			rawOriginatorID   string
			originatorVersion int64
			topic             string
			state             []byte
		)

		if scanErr := rows.Scan(&notificationID, &rawOriginatorID, &originatorVersion, &topic, &state); scanErr != nil {
			return scanErr
		}

		originatorID, parseErr := uuid.Parse(rawOriginatorID)
		if parseErr != nil {
			return errors.Join(recorder.ErrProgramming, parseErr)
		}

		notifications = append(notifications, recorder.Notification{
			ID:                notificationID,
			OriginatorID:      originatorID,
			OriginatorVersion: originatorVersion,
			Topic:             topic,
			State:             state,
		})

		return nil
	}

	retryErr := recorder.Retry(
		ctx,
		func(ctx context.Context) error {
			notifications = notifications[:0]
			return r.queryRows(ctx, sqlQuery, args, scanOneRow)
		},
		recorder.WithMaxAttempts(r.retryAttempts),
		recorder.WithRetryOperational(),
	)
	if retryErr != nil {
		return nil, retryErr
	}

	return notifications, nil
}

// MaxNotificationID reports the current high-water mark of the notification
// log, 0 if empty.
func (r *ApplicationRecorder) MaxNotificationID(ctx context.Context) (int64, error) {
	selectStmt := goqu.Dialect(dialectSQLite).
		From(r.eventsTableName).
		Select(goqu.COALESCE(goqu.MAX(colRowID), 0)).
		Prepared(true)

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return r.queryMax(ctx, sqlQuery, args)
}

func (r *AggregateRecorder) queryMax(ctx context.Context, sqlQuery string, args []any) (int64, error) {
	var maxID int64

	retryErr := recorder.Retry(
		ctx,
		func(ctx context.Context) error {
			maxID = 0

			return r.queryRows(ctx, sqlQuery, args, func(rows *sql.Rows) error {
				return rows.Scan(&maxID)
			})
		},
		recorder.WithMaxAttempts(r.retryAttempts),
		recorder.WithRetryOperational(),
	)
	if retryErr != nil {
		return 0, retryErr
	}

	return maxID, nil
}

// ProcessRecorder is a SQLite-backed ApplicationRecorder with an idempotent
// per-consumer tracking log.
type ProcessRecorder struct {
	ApplicationRecorder
}

// NewProcessRecorder creates a ProcessRecorder on top of the given connection
// pool with optional configuration.
func NewProcessRecorder(connectionPool *pool.Pool, options ...Option) (*ProcessRecorder, error) {
	base, err := NewApplicationRecorder(connectionPool, options...)
	if err != nil {
		return nil, err
	}

	return &ProcessRecorder{ApplicationRecorder: *base}, nil
}

// CreateTable creates the stored-events and tracking tables if they do not
// exist yet.
func (r *ProcessRecorder) CreateTable(ctx context.Context) error {
	if err := r.AggregateRecorder.CreateTable(ctx); err != nil {
		return err
	}

	return r.execDDL(ctx,
		`CREATE TABLE IF NOT EXISTS "`+r.trackingTableName+`" (
	application_name TEXT NOT NULL,
	notification_id INTEGER NOT NULL,
	PRIMARY KEY (application_name, notification_id)
)`)
}

// InsertEvents appends the batch and records the tracking row given via
// recorder.WithTracking in the same immediate transaction. A duplicate
// tracking row fails the whole transaction with recorder.ErrIntegrity.
func (r *ProcessRecorder) InsertEvents(ctx context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	params := recorder.ApplyInsertOptions(options...)

	return r.insertWithRetry(ctx, events, params.Tracking)
}

// MaxTrackingID reports the resume position for a consumer, 0 if none has
// been recorded.
func (r *ProcessRecorder) MaxTrackingID(ctx context.Context, applicationName string) (int64, error) {
	if applicationName == "" {
		return 0, errors.Join(recorder.ErrProgramming, recorder.ErrEmptyApplicationName)
	}

	selectStmt := goqu.Dialect(dialectSQLite).
		From(r.trackingTableName).
		Select(goqu.COALESCE(goqu.MAX(colNotificationID), 0)).
		Where(goqu.C(colApplicationName).Eq(applicationName)).
		Prepared(true)

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return r.queryMax(ctx, sqlQuery, args)
}

// Interface conformance guards.
var (
	_ recorder.AggregateRecorder   = (*AggregateRecorder)(nil)
	_ recorder.ApplicationRecorder = (*ApplicationRecorder)(nil)
	_ recorder.ProcessRecorder     = (*ProcessRecorder)(nil)
)
