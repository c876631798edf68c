package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// RecordRepository stores the rows of one concrete application type.
// Every application table shares the same workflow columns; the type
// specific fields are kept in payload.
type RecordRepository struct {
	db     *sqldb.DB
	tag    string
	table  string
	logger *zap.Logger
}

// NewRecordRepository creates a repository over the given table. The table
// name comes from the application type registry, never from user input.
func NewRecordRepository(db *sqldb.DB, tag, table string, logger *zap.Logger) port.RecordRepository {
	return &RecordRepository{
		db:     db,
		tag:    tag,
		table:  table,
		logger: logger.With(zap.String("application_type", tag)),
	}
}

const recordColumns = `id, workflow_id, current_stage_id, applicant_id, payload, flags, created_at, updated_at`

// Tag implements port.RecordRepository
func (r *RecordRepository) Tag() string {
	return r.tag
}

// Create inserts a new application row
func (r *RecordRepository) Create(ctx context.Context, rec *entity.ApplicationRecord) error {
	payload, err := encodeJSON(rec.Payload)
	if err != nil {
		return err
	}
	flags, err := encodeJSON(rec.Flags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec.Type = r.tag
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO %s (workflow_id, current_stage_id, applicant_id, payload, flags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, r.table)

	err = r.db.QueryRowContext(ctx, query,
		rec.WorkflowID,
		rec.CurrentStageID,
		rec.ApplicantID,
		payload,
		flags,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		r.logger.Error("Failed to create application", zap.Error(err))
		return fmt.Errorf("failed to create application: %w",
			constraintError(err, "current_stage_id", "stage must belong to the application's workflow"))
	}
	return nil
}

// GetByID retrieves an application row by ID
func (r *RecordRepository) GetByID(ctx context.Context, id int64) (*entity.ApplicationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, r.table)
	return r.getOne(ctx, query, id)
}

// GetForUpdate retrieves an application row and locks it until the
// transaction in ctx ends
func (r *RecordRepository) GetForUpdate(ctx context.Context, id int64) (*entity.ApplicationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?%s`, recordColumns, r.table, r.db.Dialect().LockClause())
	return r.getOne(ctx, query, id)
}

func (r *RecordRepository) getOne(ctx context.Context, query string, id int64) (*entity.ApplicationRecord, error) {
	rec, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if sqldb.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get application", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get application: %w", sqldb.Classify(err))
	}
	return rec, nil
}

// List retrieves application rows newest first
func (r *RecordRepository) List(ctx context.Context, limit, offset int) ([]*entity.ApplicationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC LIMIT ? OFFSET ?`, recordColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list applications", zap.Error(err))
		return nil, fmt.Errorf("failed to list applications: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var records []*entity.ApplicationRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Update writes stage, payload and flags back to the row
func (r *RecordRepository) Update(ctx context.Context, rec *entity.ApplicationRecord) error {
	payload, err := encodeJSON(rec.Payload)
	if err != nil {
		return err
	}
	flags, err := encodeJSON(rec.Flags)
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		UPDATE %s
		SET current_stage_id = ?, payload = ?, flags = ?, updated_at = ?
		WHERE id = ?
	`, r.table)

	res, err := r.db.ExecContext(ctx, query, rec.CurrentStageID, payload, flags, rec.UpdatedAt, rec.ID)
	if err != nil {
		r.logger.Error("Failed to update application", zap.Int64("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update application: %w",
			constraintError(err, "current_stage_id", "stage must belong to the application's workflow"))
	}
	return expectAffected(res, "application", rec.Ref())
}

// Delete removes an application row
func (r *RecordRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table), id)
	if err != nil {
		r.logger.Error("Failed to delete application", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete application: %w", sqldb.Classify(err))
	}
	return expectAffected(res, "application", entity.AppRef{Type: r.tag, ID: id})
}

func (r *RecordRepository) scan(row rowScanner) (*entity.ApplicationRecord, error) {
	var (
		rec            entity.ApplicationRecord
		payload, flags string
	)
	err := row.Scan(
		&rec.ID,
		&rec.WorkflowID,
		&rec.CurrentStageID,
		&rec.ApplicantID,
		&payload,
		&flags,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = r.tag
	if rec.Payload, err = decodeObject(payload); err != nil {
		return nil, err
	}
	if rec.Flags, err = decodeFlags(flags); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Verify interface compliance
var _ port.RecordRepository = (*RecordRepository)(nil)
