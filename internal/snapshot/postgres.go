package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
)

// PgStore persists snapshot sections in a single postgres table, one row per
// section, rewritten wholesale on every save.
type PgStore struct {
	conn *sql.DB
}

func NewPgStore(dsn string) (*PgStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &PgStore{conn: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgStore) ensureSchema() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			section TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure snapshots table: %w", err)
	}
	return nil
}

func (s *PgStore) Save(section string, data []byte) error {
	_, err := s.conn.Exec(`
		INSERT INTO snapshots (section, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (section) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`,
		section, data)
	if err != nil {
		return fmt.Errorf("save %s: %w", section, err)
	}
	return nil
}

func (s *PgStore) Load(section string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRow(
		`SELECT data FROM snapshots WHERE section = $1`, section,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", section, err)
	}
	return data, nil
}

func (s *PgStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
