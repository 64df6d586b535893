package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/andresmejia3/ash/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an identity id does not exist.
var ErrNotFound = errors.New("identity not found")

// Identity is an enrolled person and their reference fingerprint.
type Identity struct {
	ID        int
	Name      string
	Ash       ash.Fingerprint
	Count     int // sightings recorded by scans
	CreatedAt time.Time
}

// Sighting is one face in one scanned source attributed to an identity.
type Sighting struct {
	SourceID   string
	SourcePath string
	FaceIndex  int
	Score      float32
}

// Store manages the PostgreSQL pool holding enrolled fingerprints.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS identities (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			name_key TEXT NOT NULL,
			ash TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS sightings (
			id BIGSERIAL PRIMARY KEY,
			source_id TEXT REFERENCES sources(id) ON DELETE CASCADE,
			identity_id INT REFERENCES identities(id) ON DELETE CASCADE,
			face_index INT NOT NULL,
			score REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS identities_name_key_idx ON identities (name_key);
		CREATE INDEX IF NOT EXISTS sightings_identity_id_idx ON sightings (identity_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close terminates the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateIdentity enrolls a fingerprint and returns its ID. An empty name is
// replaced by "Identity <ID>".
func (s *Store) CreateIdentity(ctx context.Context, name string, fp ash.Fingerprint) (int, error) {
	if _, err := ash.Decode(fp.String()); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// Use a temporary unique name to avoid collisions before we know the ID
	insertName := name
	if insertName == "" {
		insertName = fmt.Sprintf("pending-%d", time.Now().UnixNano())
	}

	var id int
	err = tx.QueryRow(ctx,
		"INSERT INTO identities (name, name_key, ash) VALUES ($1, $2, $3) RETURNING id",
		insertName, utils.NameKey(insertName), fp.String(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	if name == "" {
		finalName := fmt.Sprintf("Identity %d", id)
		_, err = tx.Exec(ctx, "UPDATE identities SET name = $1, name_key = $2 WHERE id = $3",
			finalName, utils.NameKey(finalName), id)
		if err != nil {
			return 0, err
		}
	}

	return id, tx.Commit(ctx)
}

// UpdateFingerprint replaces the reference fingerprint of an identity.
func (s *Store) UpdateFingerprint(ctx context.Context, id int, fp ash.Fingerprint) error {
	if _, err := ash.Decode(fp.String()); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, "UPDATE identities SET ash = $1 WHERE id = $2", fp.String(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameIdentity updates the name of a known identity.
func (s *Store) RenameIdentity(ctx context.Context, id int, newName string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE identities SET name = $1, name_key = $2 WHERE id = $3",
		newName, utils.NameKey(newName), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetIdentity fetches one identity by ID.
func (s *Store) GetIdentity(ctx context.Context, id int) (Identity, error) {
	var it Identity
	var fp string
	err := s.pool.QueryRow(ctx, `
		SELECT i.id, i.name, i.ash, i.created_at, COUNT(s.id)
		FROM identities i LEFT JOIN sightings s ON s.identity_id = i.id
		WHERE i.id = $1
		GROUP BY i.id
	`, id).Scan(&it.ID, &it.Name, &fp, &it.CreatedAt, &it.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	it.Ash = ash.Fingerprint(fp)
	return it, nil
}

// ListIdentities returns all identities, optionally filtered by a name
// fragment compared without case or diacritics.
func (s *Store) ListIdentities(ctx context.Context, nameFilter string) ([]Identity, error) {
	pattern := "%" + escapeLike(utils.NameKey(nameFilter)) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.name, i.ash, i.created_at, COUNT(s.id)
		FROM identities i LEFT JOIN sightings s ON s.identity_id = i.id
		WHERE i.name_key LIKE $1
		GROUP BY i.id
		ORDER BY i.id
	`, pattern)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Identity, error) {
		var it Identity
		var fp string
		err := row.Scan(&it.ID, &it.Name, &fp, &it.CreatedAt, &it.Count)
		it.Ash = ash.Fingerprint(fp)
		return it, err
	})
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// Candidates returns every enrolled fingerprint for scoring.
func (s *Store) Candidates(ctx context.Context) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, ash FROM identities ORDER BY id")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Candidate, error) {
		var c Candidate
		var fp string
		err := row.Scan(&c.ID, &c.Name, &fp)
		c.Ash = ash.Fingerprint(fp)
		return c, err
	})
}

// FindClosestIdentity scores fp against every enrolled identity and returns
// the best one at or above threshold. Match.ID is -1 if nothing qualifies.
func (s *Store) FindClosestIdentity(ctx context.Context, fp ash.Fingerprint, cmp *ash.Comparator, threshold float64) (Match, error) {
	candidates, err := s.Candidates(ctx)
	if err != nil {
		return Match{ID: -1}, err
	}
	return BestMatch(candidates, fp, cmp, threshold), nil
}

// EnsureSource registers a scanned file. Re-registering drops its earlier
// sightings so rescans stay idempotent.
func (s *Store) EnsureSource(ctx context.Context, sourceID, path string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM sightings WHERE source_id = $1", sourceID); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, sourceID, path)
	return err
}

// InsertSighting records that face faceIdx of a source matched an identity.
func (s *Store) InsertSighting(ctx context.Context, sourceID string, faceIdx, identityID int, score float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sightings (source_id, identity_id, face_index, score)
		VALUES ($1, $2, $3, $4)
	`, sourceID, identityID, faceIdx, score)
	return err
}

// GetSightings lists where an identity was seen, best score first.
func (s *Store) GetSightings(ctx context.Context, identityID int) ([]Sighting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT src.id, src.path, s.face_index, s.score
		FROM sightings s JOIN sources src ON src.id = s.source_id
		WHERE s.identity_id = $1
		ORDER BY s.score DESC, src.path
	`, identityID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Sighting, error) {
		var st Sighting
		err := row.Scan(&st.SourceID, &st.SourcePath, &st.FaceIndex, &st.Score)
		return st, err
	})
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS sightings CASCADE;
		DROP TABLE IF EXISTS sources CASCADE;
		DROP TABLE IF EXISTS identities CASCADE;
	`)
	return err
}
