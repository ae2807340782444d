package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob *time.Time

	err := row.Scan(
		&p.ID,
		&p.Code,
		&p.FirstName,
		&p.LastName,
		&dob,
		&p.Sex,
		&p.Phone,
		&p.Address,
		&p.Insurance,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.DateOfBirth = dob
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var email *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&email,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Email = email
	return &d, nil
}

const patientColumns = `id, code, first_name, last_name, date_of_birth, sex, phone, address, insurance, created_at, updated_at`

func (r *PgRepository) InsertPatient(ctx context.Context, p *Patient) (*Patient, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, code, first_name, last_name, date_of_birth, sex, phone, address, insurance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+patientColumns+`
	`, id, p.Code, p.FirstName, p.LastName, p.DateOfBirth, p.Sex, p.Phone, p.Address, p.Insurance)

	created, err := scanPatient(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPatientCodeTaken
		}
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE patients
		SET first_name = $2,
		    last_name = $3,
		    date_of_birth = $4,
		    sex = $5,
		    phone = $6,
		    address = $7,
		    insurance = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+patientColumns+`
	`, p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Sex, p.Phone, p.Address, p.Insurance)

	return scanPatient(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByCode(ctx context.Context, code string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE code = $1
	`, code)
	return scanPatient(row)
}

func (r *PgRepository) SearchPatients(ctx context.Context, query string, limit, offset int) ([]Patient, error) {
	pattern := "%" + query + "%"

	rows, err := r.db.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE code ILIKE $1
		   OR first_name ILIKE $1
		   OR last_name ILIKE $1
		ORDER BY last_name, first_name
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) DeletePatient(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) CountPatientReferences(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM appointments WHERE patient_id = $1)
		     + (SELECT COUNT(*) FROM visits WHERE patient_id = $1)
		     + (SELECT COUNT(*) FROM invoices WHERE patient_id = $1)
	`, id).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at
		FROM users
		WHERE id = $1 AND role = 'doctor'
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, email, created_at
		FROM users
		WHERE role = 'doctor'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
