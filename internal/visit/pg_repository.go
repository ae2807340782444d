package visit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit

	err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.DoctorID,
		&v.VisitedAt,
		&v.Diagnosis,
		&v.LabRequest,
		&v.Prescription,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	return &v, nil
}

const visitColumns = `id, patient_id, doctor_id, visited_at, diagnosis, lab_request, prescription, created_at, updated_at`

func (r *PgRepository) Insert(ctx context.Context, v *Visit) (*Visit, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, doctor_id, visited_at, diagnosis, lab_request, prescription, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+visitColumns+`
	`, id, v.PatientID, v.DoctorID, v.VisitedAt, v.Diagnosis, v.LabRequest, v.Prescription)

	return scanVisit(row)
}

func (r *PgRepository) Update(ctx context.Context, v *Visit) (*Visit, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE visits
		SET diagnosis = $2,
		    lab_request = $3,
		    prescription = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+visitColumns+`
	`, v.ID, v.Diagnosis, v.LabRequest, v.Prescription)

	return scanVisit(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE id = $1
	`, id)
	return scanVisit(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Visit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE patient_id = $1
		ORDER BY visited_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *PgRepository) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'doctor')`, id).Scan(&exists)
	return exists, err
}
