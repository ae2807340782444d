package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var visitID *uuid.UUID

	err := row.Scan(
		&inv.ID,
		&inv.PatientID,
		&visitID,
		&inv.InvoiceDate,
		&inv.Total,
		&inv.Paid,
		&inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	inv.VisitID = visitID
	return &inv, nil
}

const invoiceColumns = `id, patient_id, visit_id, invoice_date, total, paid, created_at`

func (r *PgRepository) CreateInvoice(ctx context.Context, inv *Invoice, items []LineItem) (*Invoice, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin invoice tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	id := uuid.New()

	row := tx.QueryRow(ctx, `
		INSERT INTO invoices (id, patient_id, visit_id, invoice_date, total, paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING `+invoiceColumns+`
	`, id, inv.PatientID, inv.VisitID, inv.InvoiceDate, inv.Total, inv.Paid)

	created, err := scanInvoice(row)
	if err != nil {
		if isUniqueViolation(err) {
			// ux_invoices_visit: a concurrent writer invoiced the visit.
			return nil, ErrVisitAlreadyInvoiced
		}
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, service_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), created.ID, item.ServiceID, item.Quantity, item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("insert invoice item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit invoice tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) GetHeader(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1
	`, id)
	return scanInvoice(row)
}

func (r *PgRepository) GetDetail(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error) {
	header, err := r.GetHeader(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &InvoiceDetail{Invoice: *header}

	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, service_id, quantity, unit_price
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ServiceID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		detail.Items = append(detail.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if header.VisitID != nil {
		var vs VisitSummary
		err := r.db.QueryRow(ctx, `
			SELECT v.id, v.visited_at, v.doctor_id, u.name
			FROM visits v
			JOIN users u ON u.id = v.doctor_id
			WHERE v.id = $1
		`, *header.VisitID).Scan(&vs.ID, &vs.VisitedAt, &vs.DoctorID, &vs.DoctorName)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			detail.Visit = &vs
		}
	}

	return detail, nil
}

func (r *PgRepository) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE visit_id = $1
	`, visitID)
	return scanInvoice(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE patient_id = $1
		ORDER BY invoice_date DESC, created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkPaid(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE invoices
		SET paid = true
		WHERE id = $1
		  AND paid = false
		RETURNING `+invoiceColumns+`
	`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			// Distinguish a missing row from an already-paid one.
			existing, getErr := r.GetHeader(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			if existing.Paid {
				return existing, ErrInvoiceAlreadyPaid
			}
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	return inv, nil
}

func (r *PgRepository) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *PgRepository) VisitExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM visits WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
