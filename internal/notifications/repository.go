// Package notifications рассылает письма о событиях заявок через очередь
// с фиксированным числом обработчиков и ведет журнал отправок
package notifications

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Repository журнал отправленных писем
type Repository struct {
	db *sql.DB
}

// NewRepository создает новый репозиторий уведомлений
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateDelivery записывает попытку отправки
func (r *Repository) CreateDelivery(ctx context.Context, d *Delivery) error {
	query := `
		INSERT INTO notifications
		(id, event, report_id, recipient, subject, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		d.ID,
		d.Event,
		d.ReportID,
		d.Recipient,
		d.Subject,
		d.Status,
		d.Error).
		Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// ListByReport журнал писем по заявке, новые первыми
func (r *Repository) ListByReport(ctx context.Context, reportID uuid.UUID) ([]Delivery, error) {
	query := `
		SELECT id, event, report_id, recipient, subject, status, error, created_at
		FROM notifications
		WHERE report_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var d Delivery
		err := rows.Scan(
			&d.ID,
			&d.Event,
			&d.ReportID,
			&d.Recipient,
			&d.Subject,
			&d.Status,
			&d.Error,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return deliveries, nil
}
