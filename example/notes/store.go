// Package notes stores notes. Every method runs on the querier it is given, normally
// the request's session, so the caller decides when the work is committed.
package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/o11y"
)

var (
	ErrNotFound = o11y.NewWarning("note not found")
)

type Store struct {
	now func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

func mapError(err error, to error) error {
	if errors.Is(err, db.ErrNop) {
		return to
	}
	return err
}

type Note struct {
	ID        uuid.UUID  `db:"id"`
	Title     string     `db:"title"`
	Body      string     `db:"body"`
	CreatedAt time.Time  `db:"created_at"`
	ExpiresAt *time.Time `db:"expires_at"`
}

func (s *Store) ByID(ctx context.Context, q db.Querier, id uuid.UUID) (note *Note, err error) {
	ctx, span := o11y.StartSpan(ctx, "store: by_id")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	note, err = queryGetNoteByID(ctx, q, id, s.now())
	return note, mapError(err, ErrNotFound)
}

type ToAdd struct {
	Title string
	Body  string
	// TTL is how long the note lives, zero keeps it forever.
	TTL time.Duration
}

func (s *Store) Add(ctx context.Context, q db.Querier, toAdd ToAdd) (note *Note, err error) {
	ctx, span := o11y.StartSpan(ctx, "store: add")
	defer o11y.End(span, &err)
	span.AddField("title", toAdd.Title)

	note = &Note{
		ID:        uuid.New(),
		Title:     toAdd.Title,
		Body:      toAdd.Body,
		CreatedAt: s.now().UTC(),
	}
	if toAdd.TTL > 0 {
		expires := note.CreatedAt.Add(toAdd.TTL)
		note.ExpiresAt = &expires
	}
	span.AddField("id", note.ID)

	err = queryInsertNote(ctx, q, note)
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Store) Delete(ctx context.Context, q db.Querier, id uuid.UUID) (err error) {
	ctx, span := o11y.StartSpan(ctx, "store: delete")
	defer o11y.End(span, &err)
	span.AddField("id", id)

	return mapError(queryDeleteNote(ctx, q, id), ErrNotFound)
}

// PurgeExpired deletes at most limit notes that have expired, and reports how many went.
func (s *Store) PurgeExpired(ctx context.Context, q db.Querier, limit int) (n int64, err error) {
	ctx, span := o11y.StartSpan(ctx, "store: purge_expired")
	defer o11y.End(span, &err)

	n, err = queryPurgeExpired(ctx, q, s.now(), limit)
	if errors.Is(err, db.ErrNop) {
		return 0, nil
	}
	span.AddField("purged", n)
	return n, err
}
