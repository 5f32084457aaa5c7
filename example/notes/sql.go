package notes

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/o11y"
)

func queryGetNoteByID(ctx context.Context, q db.Querier, id uuid.UUID, now time.Time) (note *Note, err error) {
	ctx, span := db.Span(ctx, "notes", "query_get_note_by_id")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	note = &Note{}
	err = q.GetContext(ctx, note, getNoteByIDSQL, id, now)
	if err != nil {
		return nil, err
	}
	return note, nil
}

// language=PostgreSQL
var getNoteByIDSQL = `
SELECT
	id,
	title,
	body,
	created_at,
	expires_at
FROM
	notes
WHERE
	id = $1
AND
	(expires_at IS NULL OR expires_at > $2)
LIMIT 1
;`

func queryInsertNote(ctx context.Context, q db.Querier, note *Note) (err error) {
	ctx, span := db.Span(ctx, "notes", "query_insert_note")
	defer o11y.End(span, &err)

	_, err = q.NamedExecContext(ctx, insertNoteSQL, note)
	return err
}

// language=PostgreSQL
var insertNoteSQL = `
INSERT INTO notes (
	id,
	title,
	body,
	created_at,
	expires_at
)
VALUES (
	:id,
	:title,
	:body,
	:created_at,
	:expires_at
)
;`

func queryDeleteNote(ctx context.Context, q db.Querier, id uuid.UUID) (err error) {
	ctx, span := db.Span(ctx, "notes", "query_delete_note")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	_, err = q.ExecContext(ctx, deleteNoteSQL, id)
	return err
}

// language=PostgreSQL
var deleteNoteSQL = `
DELETE FROM
	notes
WHERE
	id = $1
;`

func queryPurgeExpired(ctx context.Context, q db.Querier, now time.Time, limit int) (n int64, err error) {
	ctx, span := db.Span(ctx, "notes", "query_purge_expired")
	defer o11y.End(span, &err)

	res, err := q.ExecContext(ctx, purgeExpiredSQL, now, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// language=PostgreSQL
var purgeExpiredSQL = `
DELETE FROM
	notes
WHERE
	id IN (
		SELECT id FROM notes WHERE expires_at <= $1 ORDER BY expires_at LIMIT $2
	)
;`
