package character

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the characters table.
const Schema = `
CREATE TABLE IF NOT EXISTS characters (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    voice_id      TEXT NOT NULL DEFAULT '',
    system_prompt TEXT NOT NULL,
    greeting      TEXT NOT NULL DEFAULT '',
    is_default    BOOLEAN NOT NULL DEFAULT false,
    position      INTEGER NOT NULL DEFAULT 0,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresSource]. Both
// *pgxpool.Pool and *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource reads the character catalog from PostgreSQL. The catalog
// is read once at startup; later table edits need a restart.
type PostgresSource struct {
	db DB
}

// NewPostgresSource returns a source backed by db.
func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate creates the characters table if it does not exist.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("character: migrate: %w", err)
	}
	return nil
}

// Load returns every stored character ordered by position. The row flagged
// is_default becomes the catalog default; empty voice IDs are left empty.
func (s *PostgresSource) Load(ctx context.Context) (Catalog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, voice_id, system_prompt, greeting, is_default
		FROM characters
		ORDER BY position, id`)
	if err != nil {
		return Catalog{}, fmt.Errorf("character: query: %w", err)
	}
	defer rows.Close()

	var cat Catalog
	for rows.Next() {
		var (
			c         Character
			isDefault bool
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.VoiceID, &c.SystemPrompt, &c.Greeting, &isDefault); err != nil {
			return Catalog{}, fmt.Errorf("character: scan: %w", err)
		}
		if isDefault && cat.Default == "" {
			cat.Default = c.ID
		}
		cat.Characters = append(cat.Characters, c)
	}
	if err := rows.Err(); err != nil {
		return Catalog{}, fmt.Errorf("character: rows: %w", err)
	}
	return cat, nil
}

// Seed inserts or updates every character of cat, preserving catalog order.
func (s *PostgresSource) Seed(ctx context.Context, cat Catalog) error {
	for i, c := range cat.Characters {
		if err := c.Validate(); err != nil {
			return err
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO characters (id, name, voice_id, system_prompt, greeting, is_default, position, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				voice_id = EXCLUDED.voice_id,
				system_prompt = EXCLUDED.system_prompt,
				greeting = EXCLUDED.greeting,
				is_default = EXCLUDED.is_default,
				position = EXCLUDED.position,
				updated_at = now()`,
			c.ID, c.Name, c.VoiceID, c.SystemPrompt, c.Greeting, c.ID == cat.Default, i)
		if err != nil {
			return fmt.Errorf("character: seed %q: %w", c.ID, err)
		}
	}
	return nil
}
