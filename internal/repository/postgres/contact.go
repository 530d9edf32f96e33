// Package postgres implements contactsync.Repository on PostgreSQL. Each
// source collection is a table holding one JSONB document per contact, the
// layout used when venue contacts are mirrored out of MongoDB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailerlite-sync/internal/domain"
)

// DefaultQuarantineTable receives contacts that failed to import.
const DefaultQuarantineTable = "failed"

// ContactRepo implements contactsync.Repository against PostgreSQL.
type ContactRepo struct {
	db         *sql.DB
	quarantine string
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB, quarantine string) *ContactRepo {
	if quarantine == "" {
		quarantine = DefaultQuarantineTable
	}
	return &ContactRepo{db: db, quarantine: quarantine}
}

// EnsureTables creates the contact tables and the quarantine table if missing.
func (r *ContactRepo) EnsureTables(ctx context.Context, tables ...string) error {
	for _, t := range append(append([]string(nil), tables...), r.quarantine) {
		_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         BIGSERIAL PRIMARY KEY,
				doc        JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, pq.QuoteIdentifier(t)))
		if err != nil {
			return fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return nil
}

func (r *ContactRepo) FindUnexported(ctx context.Context, collection string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id::text, doc
		FROM %s
		WHERE (NOT (doc ? 'added_to_mailerlite') OR doc->'added_to_mailerlite' = 'false'::jsonb)
		  AND jsonb_typeof(doc->'email') = 'string'
		  AND lower(trim(doc->>'email')) NOT IN ('', 'none', 'null')
		ORDER BY id
	`, pq.QuoteIdentifier(collection)))
	if err != nil {
		return nil, fmt.Errorf("find unexported in %s: %w", collection, err)
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan contact in %s: %w", collection, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode contact %s in %s: %w", id, collection, err)
		}
		contacts = append(contacts, domain.ContactFromDocument(id, doc))
	}
	return contacts, rows.Err()
}

func (r *ContactRepo) MarkExported(ctx context.Context, collection string, contacts []domain.Contact, at time.Time) (int64, error) {
	var ids, emails []string
	for _, c := range contacts {
		if c.ID == "" {
			emails = append(emails, c.Email)
		} else {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 && len(emails) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET doc = doc || jsonb_build_object(
			'added_to_mailerlite', true,
			'mailerlite_added_date', $1::timestamptz,
			'updated_at', $1::timestamptz)
		WHERE id::text = ANY($2) OR doc->>'email' = ANY($3)
	`, pq.QuoteIdentifier(collection)), at, pq.Array(ids), pq.Array(emails))
	if err != nil {
		return 0, fmt.Errorf("mark exported in %s: %w", collection, err)
	}
	return res.RowsAffected()
}

func (r *ContactRepo) InsertQuarantine(ctx context.Context, rec domain.QuarantineRecord) error {
	raw, err := json.Marshal(rec.Doc())
	if err != nil {
		return fmt.Errorf("encode quarantine record: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (doc) VALUES ($1)`, pq.QuoteIdentifier(r.quarantine)),
		raw,
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", r.quarantine, err)
	}
	return nil
}

func (r *ContactRepo) DeleteContact(ctx context.Context, collection string, c domain.Contact) (int64, error) {
	table := pq.QuoteIdentifier(collection)
	var (
		res sql.Result
		err error
	)
	if c.ID != "" {
		res, err = r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id::text = $1`, table), c.ID)
	} else {
		res, err = r.db.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %[1]s WHERE id = (SELECT id FROM %[1]s WHERE doc->>'email' = $1 ORDER BY id LIMIT 1)`, table),
			c.Email)
	}
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.RowsAffected()
}
