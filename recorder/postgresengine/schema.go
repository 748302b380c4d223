package postgresengine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateTable creates the stored-events table for a plain AggregateRecorder
// if it does not exist yet.
func (r *AggregateRecorder) CreateTable(ctx context.Context) error {
	return r.execDDL(ctx, r.aggregateTableDDL())
}

// CreateTable creates the stored-events table including the notification-id
// column and its unique index if they do not exist yet.
func (r *ApplicationRecorder) CreateTable(ctx context.Context) error {
	return r.execDDL(ctx, r.applicationTableDDL()...)
}

// CreateTable creates the stored-events table and the tracking table if they
// do not exist yet.
func (r *ProcessRecorder) CreateTable(ctx context.Context) error {
	statements := r.applicationTableDDL()
	statements = append(statements, r.trackingTableDDL())

	return r.execDDL(ctx, statements...)
}

func (r *AggregateRecorder) aggregateTableDDL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	originator_id uuid NOT NULL,
	originator_version bigint NOT NULL CHECK (originator_version >= 1),
	topic text NOT NULL,
	state bytea,
	PRIMARY KEY (originator_id, originator_version)
)`, r.quotedEventsTable())
}

func (r *AggregateRecorder) applicationTableDDL() []string {
	table := r.quotedEventsTable()

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	originator_id uuid NOT NULL,
	originator_version bigint NOT NULL CHECK (originator_version >= 1),
	topic text NOT NULL,
	state bytea,
	notification_id bigserial,
	PRIMARY KEY (originator_id, originator_version)
)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (notification_id)`,
			pgx.Identifier{r.eventsTableName + "_notification_id_idx"}.Sanitize(), table),
	}
}

func (r *AggregateRecorder) trackingTableDDL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	application_name text NOT NULL,
	notification_id bigint NOT NULL,
	PRIMARY KEY (application_name, notification_id)
)`, pgx.Identifier{r.trackingTableName}.Sanitize())
}

func (r *AggregateRecorder) execDDL(ctx context.Context, statements ...string) error {
	conn, err := r.pool.GetWriter(ctx)
	if err != nil {
		return err
	}
	defer r.putConnection(conn)

	session := conn.Session().(*Session)

	for _, statement := range statements {
		if _, execErr := session.Conn().Exec(ctx, statement); execErr != nil {
			return translateError(execErr)
		}
	}

	return nil
}

func (r *AggregateRecorder) quotedEventsTable() string {
	return pgx.Identifier{r.eventsTableName}.Sanitize()
}
