package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"aura.town/etc"
	"aura.town/voice"
)

//go:embed init.sql
var sqlFS embed.FS

// Postgres is the durable Store.
type Postgres struct {
	conn *pgx.Conn
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	sqlFile, err := sqlFS.ReadFile("init.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded init.sql: %w", err)
	}
	if _, err := conn.Exec(ctx, string(sqlFile)); err != nil {
		return nil, fmt.Errorf("failed to execute embedded init.sql: %w", err)
	}

	return &Postgres{conn: conn}, nil
}

func (s *Postgres) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	err := s.conn.QueryRow(ctx,
		`SELECT user_name, display_name, assistant_name, email FROM profile`,
	).Scan(&p.UserName, &p.DisplayName, &p.AssistantName, &p.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &p, nil
}

func (s *Postgres) SaveProfile(ctx context.Context, p *Profile) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO profile (only_row, user_name, display_name, assistant_name, email)
		 VALUES (true, $1, $2, $3, $4)
		 ON CONFLICT (only_row) DO UPDATE SET
		   user_name = excluded.user_name,
		   display_name = excluded.display_name,
		   assistant_name = excluded.assistant_name,
		   email = excluded.email`,
		p.UserName, p.DisplayName, p.AssistantName, p.Email)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *Postgres) ClearProfile(ctx context.Context) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM profile`); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Postgres) VoicePreference(ctx context.Context) (voice.Preference, error) {
	var raw string
	err := s.conn.QueryRow(ctx, `SELECT voice FROM preferences`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return voice.PreferenceAuto, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load voice preference: %w", err)
	}
	return voice.ParsePreference(raw)
}

func (s *Postgres) SaveVoicePreference(ctx context.Context, pref voice.Preference) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO preferences (only_row, voice) VALUES (true, $1)
		 ON CONFLICT (only_row) DO UPDATE SET voice = excluded.voice`,
		string(pref))
	if err != nil {
		return fmt.Errorf("failed to save voice preference: %w", err)
	}
	return nil
}

func (s *Postgres) AddConversation(ctx context.Context, user, assistant string) error {
	if blankTurn(user, assistant) {
		return nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO conversations (id, user_text, assistant_text) VALUES ($1, $2, $3)`,
		etc.NewFreshID(), user, assistant)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM conversations WHERE id NOT IN (
		   SELECT id FROM conversations ORDER BY created_at DESC LIMIT $1
		 )`, HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to prune conversation history: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Postgres) History(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, user_text, assistant_text, created_at
		 FROM conversations ORDER BY created_at DESC LIMIT $1`, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.User, &e.Assistant, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Postgres) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
