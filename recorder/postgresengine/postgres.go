package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ordered-streams/eventrecorder-go/recorder"
	"github.com/ordered-streams/eventrecorder-go/recorder/pool"
	"github.com/ordered-streams/eventrecorder-go/recorder/postgresengine/internal/adapters"
)

const (
	defaultEventsTableName   = "stored_events"
	defaultTrackingTableName = "notification_tracking"
	defaultLockTimeout       = 5 * time.Second
	defaultRetryAttempts     = 3

	dialectPostgres = "postgres"

	colOriginatorID      = "originator_id"
	colOriginatorVersion = "originator_version"
	colTopic             = "topic"
	colState             = "state"
	colNotificationID    = "notification_id"
	colApplicationName   = "application_name"

	opInsertEvents        = "insert_events"
	opSelectEvents        = "select_events"
	opSelectNotifications = "select_notifications"
	opMaxNotificationID   = "max_notification_id"
	opMaxTrackingID       = "max_tracking_id"

	logMsgBuildQueryFailed   = "failed to build query"
	logMsgDBExecFailed       = "database execution failed"
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgScanRowFailed      = "failed to scan database row"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgPutConnFailed      = "failed to return connection to the pool"
	logMsgEventsInserted     = "events inserted"
	logMsgQueryCompleted     = "query completed"
	logMsgIntegrityConflict  = "integrity conflict detected"
	logMsgSQLExecuted        = "executed sql for: "
	logMsgOperation          = "recorder operation: "
	logAttrError             = "error"
	logAttrQuery             = "query"
	logAttrEventCount        = "event_count"
	logAttrDurationMS        = "duration_ms"
	logAttrOriginatorID      = "originator_id"
	logAttrApplicationName   = "application_name"
	logAttrNotificationCount = "notification_count"
)

var (
	errTrackingNeedsProcessRecorder = errors.New("tracking requires a ProcessRecorder")
	errNonPositiveLimit             = errors.New("limit must be positive")
)

// eventRow is the scan target for stored-event and notification rows.
type eventRow struct {
	originatorID      string
	originatorVersion int64
	topic             string
	state             []byte
	notificationID    int64
}

// AggregateRecorder is a Postgres-backed per-entity append-only event log
// with optimistic concurrency control. Writes check a session out of the
// connection pool and run inside one transaction; a duplicate
// (originator id, originator version) pair fails the whole batch with
// recorder.ErrIntegrity via the primary key.
type AggregateRecorder struct {
	config
	pool *pool.Pool
}

// NewAggregateRecorder creates an AggregateRecorder on top of the given
// connection pool with optional configuration.
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

// InsertEvents appends the batch all-or-nothing inside one transaction.
// Transient connection failures are retried transparently with backoff;
// integrity conflicts propagate immediately.
func (r *AggregateRecorder) InsertEvents(ctx context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	params := recorder.ApplyInsertOptions(options...)
	if params.Tracking != nil {
		return errors.Join(recorder.ErrProgramming, errTrackingNeedsProcessRecorder)
	}

	return r.insertWithRetry(ctx, events, nil, false)
}

// SelectEvents scans one originator's events by version, ascending by
// default. Reads are served by the configured reader handle if present,
// otherwise by a pooled reader session.
func (r *AggregateRecorder) SelectEvents(ctx context.Context, originatorID uuid.UUID, options ...recorder.SelectOption) (recorder.StoredEvents, error) {
	params := recorder.ApplySelectOptions(options...)

	sqlQuery, args, buildErr := r.buildSelectEventsQuery(originatorID, params)
	if buildErr != nil {
		return nil, buildErr
	}

	ctx, finishSpan := r.startSpan(ctx, opSelectEvents)

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
		finishSpan(statusError)
		r.recordError(ctx, opSelectEvents, classifyError(retryErr))

		return nil, retryErr
	}

	finishSpan(statusOK)
	r.logOperation(ctx, logMsgQueryCompleted, logAttrOriginatorID, originatorID.String(), logAttrEventCount, len(events))

	return events, nil
}

// insertWithRetry runs one insert transaction through the bounded retry
// policy. Only connection-level failures are retried; integrity and
// operational failures on the write path surface to the caller.
func (r *AggregateRecorder) insertWithRetry(ctx context.Context, events recorder.StoredEvents, tracking *recorder.Tracking, serialize bool) error {
	if len(events) == 0 && tracking == nil {
		return nil
	}

	ctx, finishSpan := r.startSpan(ctx, opInsertEvents)
	start := time.Now()

	retryErr := recorder.Retry(
		ctx,
		func(ctx context.Context) error {
			return r.insertOnce(ctx, events, tracking, serialize)
		},
		recorder.WithMaxAttempts(r.retryAttempts),
	)

	duration := time.Since(start)

	if retryErr != nil {
		finishSpan(statusError)
		r.recordError(ctx, opInsertEvents, classifyError(retryErr))
		r.recordDuration(ctx, opInsertEvents, statusError, duration)

		if errors.Is(retryErr, recorder.ErrIntegrity) {
			r.logOperation(ctx, logMsgIntegrityConflict, logAttrEventCount, len(events))
		}

		return retryErr
	}

	finishSpan(statusOK)
	r.recordDuration(ctx, opInsertEvents, statusOK, duration)
	r.recordEventsInserted(ctx, opInsertEvents, len(events))
	r.logOperation(ctx, logMsgEventsInserted, logAttrEventCount, len(events), logAttrDurationMS, toMilliseconds(duration))

	return nil
}

// insertOnce performs one attempt of the insert transaction. With serialize
// set it takes the exclusive table lock first, so notification ids are
// allocated in commit order; the lock is scoped to this transaction and held
// only for the insert itself.
func (r *AggregateRecorder) insertOnce(ctx context.Context, events recorder.StoredEvents, tracking *recorder.Tracking, serialize bool) error {
	conn, getErr := r.pool.GetWriter(ctx)
	if getErr != nil {
		return getErr
	}
	defer r.putConnection(conn)

	pgConn := conn.Session().(*Session).Conn()

	tx, beginErr := pgConn.Begin(ctx)
	if beginErr != nil {
		return translateError(beginErr)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if serialize {
		if lockErr := r.lockTable(ctx, tx); lockErr != nil {
			return lockErr
		}
	}

	if len(events) > 0 {
		sqlQuery, args, buildErr := r.buildInsertQuery(events)
		if buildErr != nil {
			return buildErr
		}

		if execErr := r.execInTx(ctx, tx, sqlQuery, args); execErr != nil {
			return execErr
		}
	}

	if tracking != nil {
		sqlQuery, args, buildErr := r.buildTrackingInsertQuery(*tracking)
		if buildErr != nil {
			return buildErr
		}

		if execErr := r.execInTx(ctx, tx, sqlQuery, args); execErr != nil {
			return execErr
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return translateError(commitErr)
	}

	return nil
}

func (r *AggregateRecorder) execInTx(ctx context.Context, tx pgx.Tx, sqlQuery string, args []any) error {
	start := time.Now()
	_, execErr := tx.Exec(ctx, sqlQuery, args...)
	r.logQueryWithDuration(ctx, sqlQuery, opInsertEvents, time.Since(start))

	if execErr != nil {
		translated := translateError(execErr)
		r.logError(ctx, logMsgDBExecFailed, translated, logAttrQuery, sqlQuery)

		return translated
	}

	return nil
}

// lockTable serializes concurrent committers for the events table while
// notification ids are allocated. The backend gives up after the configured
// lock timeout, which surfaces as a retryable recorder.ErrOperational.
func (r *AggregateRecorder) lockTable(ctx context.Context, tx pgx.Tx) error {
	if r.lockTimeout > 0 {
		statement := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, statement); err != nil {
			return translateError(err)
		}
	}

	if r.idleTxTimeout > 0 {
		statement := fmt.Sprintf("SET LOCAL idle_in_transaction_session_timeout = '%dms'", r.idleTxTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, statement); err != nil {
			return translateError(err)
		}
	}

	statement := "LOCK TABLE " + r.quotedEventsTable() + " IN EXCLUSIVE MODE"
	if _, err := tx.Exec(ctx, statement); err != nil {
		return translateError(err)
	}

	return nil
}

func (r *AggregateRecorder) buildInsertQuery(events recorder.StoredEvents) (string, []any, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
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
	insertStmt := goqu.Dialect(dialectPostgres).
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

func (r *AggregateRecorder) buildSelectEventsQuery(originatorID uuid.UUID, params recorder.SelectParams) (string, []any, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
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
		return "", nil, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return sqlQuery, args, nil
}

// queryEvents executes one select attempt and scans the result rows.
func (r *AggregateRecorder) queryEvents(ctx context.Context, sqlQuery string, args []any) (recorder.StoredEvents, error) {
	events := make(recorder.StoredEvents, 0)

	scanOneRow := func(rows adapters.DBRows) error {
		row := eventRow{}
		if scanErr := rows.Scan(&row.originatorID, &row.originatorVersion, &row.topic, &row.state); scanErr != nil {
			return scanErr
		}

		originatorID, parseErr := uuid.Parse(row.originatorID)
		if parseErr != nil {
			return errors.Join(recorder.ErrProgramming, parseErr)
		}

		events = append(events, recorder.StoredEvent{
			OriginatorID:      originatorID,
			OriginatorVersion: row.originatorVersion,
			Topic:             row.topic,
			State:             row.state,
		})

		return nil
	}

	if err := r.queryRows(ctx, sqlQuery, args, opSelectEvents, scanOneRow); err != nil {
		return nil, err
	}

	return events, nil
}

// queryRows runs a select through the reader handle or a pooled session and
// feeds every row to the scan callback.
func (r *AggregateRecorder) queryRows(
	ctx context.Context,
	sqlQuery string,
	args []any,
	operation string,
	scanOneRow func(rows adapters.DBRows) error,
) error {

	return r.withReader(ctx, func(reader adapters.DBReader) error {
		start := time.Now()
		rows, queryErr := reader.Query(ctx, sqlQuery, args...)
		r.logQueryWithDuration(ctx, sqlQuery, operation, time.Since(start))

		if queryErr != nil {
			translated := translateError(queryErr)
			r.logError(ctx, logMsgDBQueryFailed, translated, logAttrQuery, sqlQuery)

			return translated
		}
		defer r.closeRows(rows)

		for rows.Next() {
			if scanErr := scanOneRow(rows); scanErr != nil {
				if errors.Is(scanErr, recorder.ErrProgramming) {
					return scanErr
				}

				translated := translateError(scanErr)
				r.logError(ctx, logMsgScanRowFailed, translated)

				return translated
			}
		}

		if rowsErr := rows.Err(); rowsErr != nil {
			return translateError(rowsErr)
		}

		return nil
	})
}

func (r *AggregateRecorder) withReader(ctx context.Context, fn func(reader adapters.DBReader) error) error {
	if r.reader != nil {
		return fn(r.reader)
	}

	conn, getErr := r.pool.Get(ctx)
	if getErr != nil {
		return getErr
	}
	defer r.putConnection(conn)

	return fn(adapters.NewPGXConnAdapter(conn.Session().(*Session).Conn()))
}

func (r *AggregateRecorder) putConnection(conn *pool.Connection) {
	if putErr := r.pool.Put(conn); putErr != nil {
		if r.logger != nil {
			r.logger.Warn(logMsgPutConnFailed, logAttrError, putErr.Error())
		}
	}
}

func (r *AggregateRecorder) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if r.logger != nil {
			r.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// ApplicationRecorder is a Postgres-backed AggregateRecorder with a globally
// ordered notification log. Before allocating notification ids the insert
// transaction takes a short exclusive table lock, so transaction commit order
// always matches notification-id order and readers never observe a gap that
// fills in later.
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

// InsertEvents appends the batch under the ordering-preserving protocol:
// the exclusive table lock is held only while ids are allocated and rows
// inserted, never across the surrounding application logic.
func (r *ApplicationRecorder) InsertEvents(ctx context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	params := recorder.ApplyInsertOptions(options...)
	if params.Tracking != nil {
		return errors.Join(recorder.ErrProgramming, errTrackingNeedsProcessRecorder)
	}

	return r.insertWithRetry(ctx, events, nil, true)
}

// SelectNotifications scans notifications with an id of at least start,
// ascending, bounded by limit, optionally bounded by a stop id and filtered
// by topics.
func (r *ApplicationRecorder) SelectNotifications(ctx context.Context, start int64, limit int, options ...recorder.NotificationOption) (recorder.Notifications, error) {
	if limit <= 0 {
		return nil, errors.Join(recorder.ErrProgramming, errNonPositiveLimit)
	}

	params := recorder.ApplyNotificationOptions(options...)

	sqlQuery, args, buildErr := r.buildSelectNotificationsQuery(start, limit, params)
	if buildErr != nil {
		return nil, buildErr
	}

	ctx, finishSpan := r.startSpan(ctx, opSelectNotifications)

	var notifications recorder.Notifications

	retryErr := recorder.Retry(
		ctx,
		func(ctx context.Context) error {
			var opErr error
			notifications, opErr = r.queryNotifications(ctx, sqlQuery, args)
			return opErr
		},
		recorder.WithMaxAttempts(r.retryAttempts),
		recorder.WithRetryOperational(),
	)
	if retryErr != nil {
		finishSpan(statusError)
		r.recordError(ctx, opSelectNotifications, classifyError(retryErr))

		return nil, retryErr
	}

	finishSpan(statusOK)
	r.logOperation(ctx, logMsgQueryCompleted, logAttrNotificationCount, len(notifications))

	return notifications, nil
}

// MaxNotificationID reports the current high-water mark of the notification
// log, 0 if empty.
func (r *ApplicationRecorder) MaxNotificationID(ctx context.Context) (int64, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.eventsTableName).
		Select(goqu.COALESCE(goqu.MAX(colNotificationID), 0)).
		Prepared(true)

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return r.queryMax(ctx, sqlQuery, args, opMaxNotificationID)
}

func (r *ApplicationRecorder) buildSelectNotificationsQuery(start int64, limit int, params recorder.NotificationParams) (string, []any, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.eventsTableName).
		Select(colNotificationID, colOriginatorID, colOriginatorVersion, colTopic, colState).
		Where(goqu.C(colNotificationID).Gte(start)).
		Order(goqu.I(colNotificationID).Asc()).
		Limit(uint(limit)).
		Prepared(true)

	if params.Stop > 0 {
		selectStmt = selectStmt.Where(goqu.C(colNotificationID).Lte(params.Stop))
	}

	if len(params.Topics) > 0 {
		selectStmt = selectStmt.Where(goqu.C(colTopic).In(params.Topics))
	}

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return sqlQuery, args, nil
}

func (r *ApplicationRecorder) queryNotifications(ctx context.Context, sqlQuery string, args []any) (recorder.Notifications, error) {
	notifications := make(recorder.Notifications, 0)

	scanOneRow := func(rows adapters.DBRows) error {
		row := eventRow{}
		if scanErr := rows.Scan(&row.notificationID, &row.originatorID, &row.originatorVersion, &row.topic, &row.state); scanErr != nil {
			return scanErr
		}

		originatorID, parseErr := uuid.Parse(row.originatorID)
		if parseErr != nil {
			return errors.Join(recorder.ErrProgramming, parseErr)
		}

		notifications = append(notifications, recorder.Notification{
			ID:                row.notificationID,
			OriginatorID:      originatorID,
			OriginatorVersion: row.originatorVersion,
			Topic:             row.topic,
			State:             row.state,
		})

		return nil
	}

	if err := r.queryRows(ctx, sqlQuery, args, opSelectNotifications, scanOneRow); err != nil {
		return nil, err
	}

	return notifications, nil
}

// queryMax executes a COALESCE(MAX(...), 0) query with read-path retries.
func (r *AggregateRecorder) queryMax(ctx context.Context, sqlQuery string, args []any, operation string) (int64, error) {
	var maxID int64

	retryErr := recorder.Retry(
		ctx,
		func(ctx context.Context) error {
			maxID = 0

			scanOneRow := func(rows adapters.DBRows) error {
				return rows.Scan(&maxID)
			}

			return r.queryRows(ctx, sqlQuery, args, operation, scanOneRow)
		},
		recorder.WithMaxAttempts(r.retryAttempts),
		recorder.WithRetryOperational(),
	)
	if retryErr != nil {
		r.recordError(ctx, operation, classifyError(retryErr))
		return 0, retryErr
	}

	return maxID, nil
}

// ProcessRecorder is a Postgres-backed ApplicationRecorder with an idempotent
// per-consumer tracking log. The optional tracking row is inserted in the
// same transaction as the events, so a notification is applied exactly once
// by a given consumer even under retries.
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

// InsertEvents appends the batch under the ordering-preserving protocol and
// records the tracking row given via recorder.WithTracking in the same
// transaction. A duplicate tracking row fails the whole transaction with
// recorder.ErrIntegrity; callers treat that as "already processed" and
// continue from the next position.
func (r *ProcessRecorder) InsertEvents(ctx context.Context, events recorder.StoredEvents, options ...recorder.InsertOption) error {
	params := recorder.ApplyInsertOptions(options...)

	return r.insertWithRetry(ctx, events, params.Tracking, true)
}

// MaxTrackingID reports the resume position for a consumer, 0 if none has
// been recorded.
func (r *ProcessRecorder) MaxTrackingID(ctx context.Context, applicationName string) (int64, error) {
	if applicationName == "" {
		return 0, errors.Join(recorder.ErrProgramming, recorder.ErrEmptyApplicationName)
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.trackingTableName).
		Select(goqu.COALESCE(goqu.MAX(colNotificationID), 0)).
		Where(goqu.C(colApplicationName).Eq(applicationName)).
		Prepared(true)

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(recorder.ErrProgramming, toSQLErr)
	}

	return r.queryMax(ctx, sqlQuery, args, opMaxTrackingID)
}

// Interface conformance guards.
var (
	_ recorder.AggregateRecorder   = (*AggregateRecorder)(nil)
	_ recorder.ApplicationRecorder = (*ApplicationRecorder)(nil)
	_ recorder.ProcessRecorder     = (*ProcessRecorder)(nil)
)
