package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(ctx, cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS photos (
	id               UUID PRIMARY KEY,
	filename         TEXT NOT NULL,
	people           JSONB NOT NULL DEFAULT '[]',
	state            TEXT,
	processing_error TEXT NOT NULL DEFAULT '',
	tags             JSONB NOT NULL DEFAULT '[]',
	capture_date     TIMESTAMPTZ,
	location         TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS photos_state_idx ON photos (state);
CREATE INDEX IF NOT EXISTS photos_people_idx ON photos USING GIN (people jsonb_path_ops);

CREATE TABLE IF NOT EXISTS persons (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	face_file   TEXT NOT NULL,
	photo_count INTEGER NOT NULL DEFAULT 0 CHECK (photo_count >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func parseUUID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return u, nil
}

// --- Photos ---

const photoColumns = `id, filename, people, state, processing_error, tags, capture_date, location, created_at, updated_at`

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var (
		p          models.Photo
		id         uuid.UUID
		people     []byte
		tags       []byte
		state      *string
		captureDay *time.Time
	)
	if err := row.Scan(&id, &p.Filename, &people, &state, &p.ProcessingError, &tags, &captureDay, &p.Location, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.String()
	p.CaptureDate = captureDay
	p.State = models.StateUnprocessed
	if state != nil && *state != "" {
		p.State = models.ProcessingState(*state)
	}
	if err := json.Unmarshal(people, &p.People); err != nil {
		return nil, fmt.Errorf("decode people: %w", err)
	}
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) CreatePhoto(ctx context.Context, filename string) (*models.Photo, error) {
	p := &models.Photo{
		ID:       uuid.NewString(),
		Filename: filename,
		People:   []models.FaceAnnotation{},
		State:    models.StateUnprocessed,
		Tags:     []string{},
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO photos (id, filename, state) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		p.ID, p.Filename, string(p.State),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create photo: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	p, err := scanPhoto(s.pool.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPhotos(ctx context.Context, offset, limit int) ([]models.Photo, int, error) {
	return s.queryPhotos(ctx, "", nil, offset, limit)
}

func (s *PostgresStore) ListPhotosByPerson(ctx context.Context, personID string, offset, limit int) ([]models.Photo, int, error) {
	if _, err := parseUUID(personID); err != nil {
		return nil, 0, err
	}
	filter, err := json.Marshal([]map[string]string{{"person_id": personID}})
	if err != nil {
		return nil, 0, fmt.Errorf("encode person filter: %w", err)
	}
	return s.queryPhotos(ctx, "WHERE people @> $1", []interface{}{filter}, offset, limit)
}

func (s *PostgresStore) queryPhotos(ctx context.Context, where string, args []interface{}, offset, limit int) ([]models.Photo, int, error) {
	offset, limit = clampPage(offset, limit)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM photos "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count photos: %w", err)
	}

	argIdx := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM photos %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		photoColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	photos := make([]models.Photo, 0, limit)
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, *p)
	}
	return photos, total, rows.Err()
}

func (s *PostgresStore) ListUnprocessedPhotos(ctx context.Context) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE state IS NULL OR state IN ('', $1) ORDER BY created_at, id`,
		string(models.StateUnprocessed))
	if err != nil {
		return nil, fmt.Errorf("list unprocessed photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, *p)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id string, people []models.FaceAnnotation) error {
	if people == nil {
		people = []models.FaceAnnotation{}
	}
	data, err := json.Marshal(people)
	if err != nil {
		return fmt.Errorf("encode people: %w", err)
	}
	return s.finish(ctx, id,
		`UPDATE photos SET people = $2, state = $3, processing_error = '', updated_at = now()
		 WHERE id = $1 AND (state IS NULL OR state IN ('', $4))`,
		data, string(models.StateProcessed), string(models.StateUnprocessed))
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, message string) error {
	return s.finish(ctx, id,
		`UPDATE photos SET state = $2, processing_error = $3, updated_at = now()
		 WHERE id = $1 AND (state IS NULL OR state IN ('', $4))`,
		string(models.StateProcessedWithError), message, string(models.StateUnprocessed))
}

func (s *PostgresStore) finish(ctx context.Context, id, query string, args ...interface{}) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, append([]interface{}{uid}, args...)...)
	if err != nil {
		return fmt.Errorf("finish photo %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM photos WHERE id = $1)`, uid).Scan(&exists); err != nil {
		return fmt.Errorf("check photo %s: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrPhotoFinalized
}

func (s *PostgresStore) AddAnnotation(ctx context.Context, photoID string, ann models.FaceAnnotation) error {
	uid, err := parseUUID(photoID)
	if err != nil {
		return err
	}
	data, err := json.Marshal([]models.FaceAnnotation{ann})
	if err != nil {
		return fmt.Errorf("encode annotation: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET people = people || $2::jsonb, updated_at = now() WHERE id = $1`, uid, data)
	if err != nil {
		return fmt.Errorf("add annotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReassignAnnotation(ctx context.Context, photoID string, old models.FaceAnnotation, newPersonID string) error {
	uid, err := parseUUID(photoID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT people FROM photos WHERE id = $1 FOR UPDATE`, uid).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load annotations: %w", err)
	}

	var people []models.FaceAnnotation
	if err := json.Unmarshal(raw, &people); err != nil {
		return fmt.Errorf("decode people: %w", err)
	}

	found := false
	for i := range people {
		if people[i] == old {
			people[i].PersonID = newPersonID
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	data, err := json.Marshal(people)
	if err != nil {
		return fmt.Errorf("encode people: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE photos SET people = $2, updated_at = now() WHERE id = $1`, uid, data); err != nil {
		return fmt.Errorf("reassign annotation: %w", err)
	}
	return tx.Commit(ctx)
}

// --- Persons ---

const personColumns = `id, name, face_file, photo_count, created_at, updated_at`

func scanPerson(row pgx.Row) (*models.Person, error) {
	var (
		p  models.Person
		id uuid.UUID
	)
	if err := row.Scan(&id, &p.Name, &p.FaceFile, &p.PhotoCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.String()
	return &p, nil
}

func (s *PostgresStore) CreatePerson(ctx context.Context, name, faceFile string, photoCount int) (*models.Person, error) {
	p := &models.Person{
		ID:         uuid.NewString(),
		Name:       name,
		FaceFile:   faceFile,
		PhotoCount: photoCount,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, name, face_file, photo_count) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		p.ID, p.Name, p.FaceFile, p.PhotoCount,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	p, err := scanPerson(s.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+personColumns+` FROM persons ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, *p)
	}
	return persons, rows.Err()
}

func (s *PostgresStore) ListPersonsPage(ctx context.Context, offset, limit int) ([]models.Person, int, error) {
	offset, limit = clampPage(offset, limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM persons`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+personColumns+` FROM persons ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	persons := make([]models.Person, 0, limit)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, *p)
	}
	return persons, total, rows.Err()
}

func (s *PostgresStore) AdjustPhotoCount(ctx context.Context, id string, delta int) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET photo_count = GREATEST(photo_count + $2, 0), updated_at = now() WHERE id = $1`,
		uid, delta)
	if err != nil {
		return fmt.Errorf("adjust photo count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePerson(ctx context.Context, id string, upd models.PersonUpdate) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET name = COALESCE($2, name), face_file = COALESCE($3, face_file), updated_at = now()
		 WHERE id = $1`,
		uid, upd.Name, upd.FaceFile)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
