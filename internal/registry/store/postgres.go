package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dirsync/internal/domain"
	"dirsync/internal/validity"
	"dirsync/pkg/platform/sentinel"
)

// Postgres is the production registry store. Schema lives in schema.sql next
// to this file; migrations are applied out of band.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) UpsertPerson(ctx context.Context, person domain.Person) error {
	const query = `
		INSERT INTO persons (uuid, secondary_key, given_name, surname)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uuid) DO UPDATE
		SET secondary_key = EXCLUDED.secondary_key,
		    given_name    = EXCLUDED.given_name,
		    surname       = EXCLUDED.surname
	`
	_, err := s.pool.Exec(ctx, query, person.UUID, person.SecondaryKey, person.GivenName, person.Surname)
	if err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}

func (s *Postgres) DeletePerson(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) PersonByUUID(ctx context.Context, id uuid.UUID) (domain.Person, error) {
	const query = `
		SELECT uuid, secondary_key, given_name, surname
		FROM persons
		WHERE uuid = $1
	`
	var person domain.Person
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&person.UUID, &person.SecondaryKey, &person.GivenName, &person.Surname,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Person{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Person{}, fmt.Errorf("get person: %w", err)
	}
	return person, nil
}

func (s *Postgres) PersonUUIDsBySecondaryKey(ctx context.Context, key string) ([]uuid.UUID, error) {
	const query = `SELECT uuid FROM persons WHERE secondary_key = $1 AND secondary_key <> ''`
	rows, err := s.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("list persons by secondary key: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list persons by secondary key: %w", err)
	}
	return ids, nil
}

func (s *Postgres) PersonUUIDsByCorrelationUserKey(ctx context.Context, userKey string) ([]uuid.UUID, error) {
	const query = `SELECT DISTINCT person_uuid FROM correlation_records WHERE user_key = $1`
	rows, err := s.pool.Query(ctx, query, userKey)
	if err != nil {
		return nil, fmt.Errorf("list persons by user key: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list persons by user key: %w", err)
	}
	return ids, nil
}

func (s *Postgres) CorrelationRecords(ctx context.Context, person uuid.UUID) ([]domain.CorrelationRecord, error) {
	const query = `
		SELECT id, person_uuid, user_key, valid_from, valid_to
		FROM correlation_records
		WHERE person_uuid = $1
		ORDER BY valid_from NULLS FIRST
	`
	rows, err := s.pool.Query(ctx, query, person)
	if err != nil {
		return nil, fmt.Errorf("list correlation records: %w", err)
	}
	defer rows.Close()

	var records []domain.CorrelationRecord
	for rows.Next() {
		var record domain.CorrelationRecord
		var from, to *time.Time
		if err := rows.Scan(&record.ID, &record.PersonUUID, &record.UserKey, &from, &to); err != nil {
			return nil, fmt.Errorf("scan correlation record: %w", err)
		}
		record.Valid = validity.Interval{Start: from, End: to}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list correlation records: %w", err)
	}
	return records, nil
}

func (s *Postgres) CreateCorrelationRecord(ctx context.Context, record domain.CorrelationRecord) error {
	const query = `
		INSERT INTO correlation_records (id, person_uuid, user_key, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query,
		record.ID, record.PersonUUID, record.UserKey, record.Valid.Start, record.Valid.End,
	)
	if err != nil {
		return fmt.Errorf("create correlation record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) EndCorrelationRecord(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE correlation_records SET valid_to = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("end correlation record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
