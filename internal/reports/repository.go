// Package reports хранит заявки об инцидентах, применяет правила доступа
// и ведет журнал изменений
package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/database"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var reportColumns = []string{
	"r.id", "r.title", "r.description", "r.type", "r.priority", "r.status",
	"r.location", "r.equipment", "r.image_url", "r.reported_by_id", "r.assigned_to_id",
	"r.created_at", "r.updated_at",
}

var peopleColumns = []string{
	"ru.id", "ru.name", "ru.email", "ru.role",
	"au.id", "au.name", "au.email", "au.role",
}

const peopleJoins = `JOIN users ru ON ru.id = r.reported_by_id
	LEFT JOIN users au ON au.id = r.assigned_to_id`

// Dimension колонка, по которой группируется статистика
type Dimension string

const (
	ByStatus   Dimension = "status"
	ByType     Dimension = "type"
	ByPriority Dimension = "priority"
)

// Repository предоставляет доступ к хранению заявок, комментариев и журнала
type Repository struct {
	db *sql.DB
}

// NewRepository создает новый репозиторий заявок
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func reportDest(r *Report) []interface{} {
	return []interface{}{
		&r.ID, &r.Title, &r.Description, &r.Type, &r.Priority, &r.Status,
		&r.Location, &r.Equipment, &r.ImageURL, &r.ReportedByID, &r.AssignedToID,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

// peopleScan собирает автора и необязательного исполнителя из LEFT JOIN
type peopleScan struct {
	reporter      Person
	assigneeID    uuid.NullUUID
	assigneeName  sql.NullString
	assigneeEmail sql.NullString
	assigneeRole  sql.NullString
}

func (p *peopleScan) dest() []interface{} {
	return []interface{}{
		&p.reporter.ID, &p.reporter.Name, &p.reporter.Email, &p.reporter.Role,
		&p.assigneeID, &p.assigneeName, &p.assigneeEmail, &p.assigneeRole,
	}
}

func (p *peopleScan) assignee() *Person {
	if !p.assigneeID.Valid {
		return nil
	}
	return &Person{
		ID:    p.assigneeID.UUID,
		Name:  p.assigneeName.String,
		Email: p.assigneeEmail.String,
		Role:  users.Role(p.assigneeRole.String),
	}
}

func filterWhere(f Filter) sq.And {
	where := sq.And{}
	if f.Status != nil {
		where = append(where, sq.Eq{"r.status": *f.Status})
	}
	if f.Type != nil {
		where = append(where, sq.Eq{"r.type": *f.Type})
	}
	if f.Priority != nil {
		where = append(where, sq.Eq{"r.priority": *f.Priority})
	}
	if f.AssignedTo != nil {
		where = append(where, sq.Eq{"r.assigned_to_id": *f.AssignedTo})
	}
	if f.ReportedBy != nil {
		where = append(where, sq.Eq{"r.reported_by_id": *f.ReportedBy})
	}
	if f.CreatedSince != nil {
		where = append(where, sq.GtOrEq{"r.created_at": *f.CreatedSince})
	}
	return where
}

// GetReport получает заявку без связанных данных
func (r *Repository) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	query, args, err := psql.Select(reportColumns...).From("reports r").Where(sq.Eq{"r.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build report query: %w", err)
	}

	report := &Report{}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(reportDest(report)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("Заявка не найдена")
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return report, nil
}

// GetDetails получает заявку с автором, исполнителем, комментариями и журналом
func (r *Repository) GetDetails(ctx context.Context, id uuid.UUID) (*Details, error) {
	query, args, err := psql.
		Select(append(append([]string{}, reportColumns...), peopleColumns...)...).
		From("reports r " + peopleJoins).
		Where(sq.Eq{"r.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build details query: %w", err)
	}

	details := &Details{}
	var people peopleScan
	dest := append(reportDest(&details.Report), people.dest()...)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("Заявка не найдена")
		}
		return nil, fmt.Errorf("failed to get report details: %w", err)
	}
	details.ReportedBy = people.reporter
	details.AssignedTo = people.assignee()

	if details.Comments, err = r.ListComments(ctx, id); err != nil {
		return nil, err
	}
	if details.Logs, err = r.ListActivity(ctx, id); err != nil {
		return nil, err
	}

	return details, nil
}

// ListReports возвращает страницу заявок, новые первыми, и общее количество
func (r *Repository) ListReports(ctx context.Context, f Filter, page pagination.Page) ([]Summary, int, error) {
	where := filterWhere(f)

	total, err := r.CountReports(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	columns := append(append([]string{}, reportColumns...), peopleColumns...)
	columns = append(columns, "(SELECT COUNT(*) FROM comments c WHERE c.report_id = r.id) AS comments_count")

	query, args, err := psql.
		Select(columns...).
		From("reports r " + peopleJoins).
		Where(where).
		OrderBy("r.created_at DESC").
		Limit(uint64(page.Limit)).
		Offset(page.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	result := make([]Summary, 0, page.Limit)
	for rows.Next() {
		var item Summary
		var people peopleScan
		dest := append(reportDest(&item.Report), people.dest()...)
		dest = append(dest, &item.CommentsCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		item.ReportedBy = people.reporter
		item.AssignedTo = people.assignee()
		result = append(result, item)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, total, nil
}

// CountReports число заявок, подходящих под фильтр
func (r *Repository) CountReports(ctx context.Context, f Filter) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("reports r").Where(filterWhere(f)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return total, nil
}

// CountBy число заявок в разрезе статуса, типа или приоритета
func (r *Repository) CountBy(ctx context.Context, dim Dimension, f Filter) (map[string]int, error) {
	switch dim {
	case ByStatus, ByType, ByPriority:
	default:
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}
	column := "r." + string(dim)

	query, args, err := psql.
		Select(column, "COUNT(*)").
		From("reports r").
		Where(filterWhere(f)).
		GroupBy(column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build group query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports by %s: %w", dim, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		counts[key] = n
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

// CreateReport сохраняет заявку и запись журнала в одной транзакции
func (r *Repository) CreateReport(ctx context.Context, report *Report, entry *ActivityLog) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO reports (id, title, description, type, priority, status,
				location, equipment, image_url, reported_by_id, assigned_to_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at`

		err := tx.QueryRowContext(ctx, query,
			report.ID, report.Title, report.Description, report.Type, report.Priority, report.Status,
			report.Location, report.Equipment, report.ImageURL, report.ReportedByID, report.AssignedToID,
		).Scan(&report.CreatedAt, &report.UpdatedAt)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return apperr.Conflict("Автор или исполнитель заявки не существует", err)
			}
			return fmt.Errorf("failed to create report: %w", err)
		}

		return insertActivity(ctx, tx, entry)
	})
}

// UpdateReport записывает только перечисленные колонки и запись журнала в одной
// транзакции. report перечитывается из RETURNING: остальные поля отражают
// состояние строки на момент записи, а не на момент чтения.
func (r *Repository) UpdateReport(ctx context.Context, report *Report, columns []Column, entry *ActivityLog) error {
	update := psql.Update("reports r")
	for _, col := range columns {
		update = update.Set(string(col), report.value(col))
	}
	query, args, err := update.
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"r.id": report.ID}).
		Suffix("RETURNING " + strings.Join(reportColumns, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update report query: %w", err)
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, args...).Scan(reportDest(report)...)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("Заявка не найдена")
			}
			if database.IsForeignKeyViolation(err) {
				return apperr.Conflict("Исполнитель не существует", err)
			}
			return fmt.Errorf("failed to update report: %w", err)
		}

		return insertActivity(ctx, tx, entry)
	})
}

// DeleteReport удаляет заявку вместе с комментариями и журналом
func (r *Repository) DeleteReport(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("Заявка не найдена")
	}
	return nil
}

// AddComment сохраняет комментарий и запись журнала в одной транзакции
func (r *Repository) AddComment(ctx context.Context, comment *Comment, entry *ActivityLog) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO comments (id, content, report_id, author_id)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`

		err := tx.QueryRowContext(ctx, query, comment.ID, comment.Content, comment.ReportID, comment.AuthorID).
			Scan(&comment.CreatedAt)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return apperr.NotFound("Заявка не найдена")
			}
			return fmt.Errorf("failed to create comment: %w", err)
		}

		return insertActivity(ctx, tx, entry)
	})
}

// ListComments комментарии заявки в порядке создания
func (r *Repository) ListComments(ctx context.Context, reportID uuid.UUID) ([]CommentView, error) {
	query := `
		SELECT c.id, c.content, c.report_id, c.author_id, c.created_at,
			u.id, u.name, u.email, u.role
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.report_id = $1
		ORDER BY c.created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	result := []CommentView{}
	for rows.Next() {
		var c CommentView
		err := rows.Scan(
			&c.ID, &c.Content, &c.ReportID, &c.AuthorID, &c.CreatedAt,
			&c.Author.ID, &c.Author.Name, &c.Author.Email, &c.Author.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		result = append(result, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// ListActivity журнал заявки в порядке записи
func (r *Repository) ListActivity(ctx context.Context, reportID uuid.UUID) ([]ActivityView, error) {
	query := `
		SELECT l.id, l.action, l.description, l.report_id, l.user_id, l.created_at,
			u.id, u.name, u.email, u.role
		FROM activity_logs l
		JOIN users u ON u.id = l.user_id
		WHERE l.report_id = $1
		ORDER BY l.created_at ASC, l.seq ASC`

	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	result := []ActivityView{}
	for rows.Next() {
		var l ActivityView
		err := rows.Scan(
			&l.ID, &l.Action, &l.Description, &l.ReportID, &l.UserID, &l.CreatedAt,
			&l.User.ID, &l.User.Name, &l.User.Email, &l.User.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		result = append(result, l)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

func insertActivity(ctx context.Context, q database.Querier, entry *ActivityLog) error {
	query := `
		INSERT INTO activity_logs (id, action, description, report_id, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := q.QueryRowContext(ctx, query, entry.ID, entry.Action, entry.Description, entry.ReportID, entry.UserID).
		Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}
