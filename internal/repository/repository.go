package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/statement-extract/bank-statement-api/internal/models"
)

type Repository interface {
	Create(ctx context.Context, st *models.Statement) error
	GetByID(ctx context.Context, id string) (*models.Statement, error)
	List(ctx context.Context, limit int) ([]*models.Statement, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, st *models.Statement) error {
	info, err := json.Marshal(st.StatementInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal statement_info: %w", err)
	}
	summary, err := json.Marshal(st.AccountSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal account_summary: %w", err)
	}
	txns, err := json.Marshal(st.Transactions)
	if err != nil {
		return fmt.Errorf("failed to marshal transactions: %w", err)
	}
	usage, err := json.Marshal(st.UsageMetadata)
	if err != nil {
		return fmt.Errorf("failed to marshal usage_metadata: %w", err)
	}

	query := `
		INSERT INTO statements (id, filename, file_size, page_count, s3_key,
		        statement_info, account_summary, transactions, usage_metadata,
		        created_at, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		st.ID,
		st.Filename,
		st.FileSize,
		st.PageCount,
		st.S3Key,
		string(info),
		string(summary),
		string(txns),
		string(usage),
		st.CreatedAt,
		st.ExtractedAt,
	)

	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Statement, error) {
	query := `
		SELECT id, filename, file_size, page_count, s3_key,
		       statement_info, account_summary, transactions, usage_metadata,
		       created_at, extracted_at
		FROM statements
		WHERE id = $1
	`

	st, err := scanStatement(r.db.QueryRowxContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return st, nil
}

func (r *repository) List(ctx context.Context, limit int) ([]*models.Statement, error) {
	query := `
		SELECT id, filename, file_size, page_count, s3_key,
		       statement_info, account_summary, transactions, usage_metadata,
		       created_at, extracted_at
		FROM statements
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}

	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatement(row rowScanner) (*models.Statement, error) {
	var st models.Statement
	var info, summary, txns, usage sql.NullString

	err := row.Scan(
		&st.ID,
		&st.Filename,
		&st.FileSize,
		&st.PageCount,
		&st.S3Key,
		&info,
		&summary,
		&txns,
		&usage,
		&st.CreatedAt,
		&st.ExtractedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalInto(info, &st.StatementInfo); err != nil {
		return nil, err
	}
	if err := unmarshalInto(summary, &st.AccountSummary); err != nil {
		return nil, err
	}
	if err := unmarshalInto(txns, &st.Transactions); err != nil {
		return nil, err
	}
	if err := unmarshalInto(usage, &st.UsageMetadata); err != nil {
		return nil, err
	}

	return &st, nil
}

func unmarshalInto(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" || src.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
