// Package users предоставляет доступ к хранению пользователей
// и управление учетными записями
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/database"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/google/uuid"
)

const userColumns = "id, email, name, password_hash, role, created_at, last_login"

// openTicketsSQL число незакрытых заявок, где пользователь указан в колонке col
const openTicketsSQL = "(SELECT COUNT(*) FROM reports r WHERE r.%s = u.id AND r.status IN ('OPEN', 'IN_PROGRESS'))"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository предоставляет доступ к хранению пользователей
type Repository struct {
	db *sql.DB
}

// NewRepository создает новый репозиторий пользователей
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, user *User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Password,
		&user.Role,
		&user.CreatedAt,
		&user.LastLogin,
	)
}

// CreateUser создает нового пользователя в базе данных
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, user.ID, user.Email, user.Name, user.Password, user.Role).
		Scan(&user.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("Пользователь с таким email уже существует", err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByEmail получает пользователя по email
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user := &User{}
	if err := scanUser(r.db.QueryRowContext(ctx, query, email), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("Пользователь не найден")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetUserByID получает пользователя по ID
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &User{}
	if err := scanUser(r.db.QueryRowContext(ctx, query, id), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("Пользователь не найден")
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// UpdateUser сохраняет email, имя, хэш пароля и роль
func (r *Repository) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET email = $2, name = $3, password_hash = $4, role = $5
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.Password, user.Role)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("Пользователь с таким email уже существует", err)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectAffected(res)
}

// DeleteUser удаляет пользователя. Пользователь, на которого ссылаются
// заявки или комментарии, не удаляется.
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.Conflict("Нельзя удалить пользователя, у которого есть заявки или комментарии", err)
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return expectAffected(res)
}

// UpdateLastLogin отмечает время успешного входа
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// ListUsers возвращает страницу пользователей с числом открытых заявок и общее количество
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter, page pagination.Page) ([]Listed, int, error) {
	where := sq.And{}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where = append(where, sq.Or{sq.ILike{"u.name": pattern}, sq.ILike{"u.email": pattern}})
	}
	if filter.Role != "" {
		where = append(where, sq.Eq{"u.role": filter.Role})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("users u").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query, args, err := psql.
		Select("u.id", "u.email", "u.name", "u.password_hash", "u.role", "u.created_at", "u.last_login",
			fmt.Sprintf(openTicketsSQL, "reported_by_id")).
		From("users u").
		Where(where).
		OrderBy("u.created_at DESC").
		Limit(uint64(page.Limit)).
		Offset(page.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	result := make([]Listed, 0, page.Limit)
	for rows.Next() {
		var item Listed
		err := rows.Scan(
			&item.ID,
			&item.Email,
			&item.Name,
			&item.Password,
			&item.Role,
			&item.CreatedAt,
			&item.LastLogin,
			&item.OpenTickets,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		item.HasOpenTickets = item.OpenTickets > 0
		result = append(result, item)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, total, nil
}

// ListTechnicians возвращает техников и администраторов по имени с числом назначенных им открытых заявок
func (r *Repository) ListTechnicians(ctx context.Context) ([]Technician, error) {
	query, args, err := psql.
		Select("u.id", "u.name", "u.email", "u.role", fmt.Sprintf(openTicketsSQL, "assigned_to_id")).
		From("users u").
		Where(sq.Eq{"u.role": []Role{RoleTechnician, RoleAdmin}}).
		OrderBy("u.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build technicians query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	defer rows.Close()

	var result []Technician
	for rows.Next() {
		var t Technician
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.Role, &t.Workload); err != nil {
			return nil, fmt.Errorf("failed to scan technician: %w", err)
		}
		result = append(result, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// ListByRoles получает всех пользователей с указанными ролями
func (r *Repository) ListByRoles(ctx context.Context, roles ...Role) ([]User, error) {
	query, args, err := psql.
		Select(userColumns).
		From("users").
		Where(sq.Eq{"role": roles}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build roles query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by roles: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("Пользователь не найден")
	}
	return nil
}
