package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Store is the persistence the service needs; *Repository implements it
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, filter ListFilter, page pagination.Page) ([]Listed, int, error)
	ListTechnicians(ctx context.Context) ([]Technician, error)
	ListByRoles(ctx context.Context, roles ...Role) ([]User, error)
}

// Service provides user business logic
type Service struct {
	repo Store
	log  *logrus.Entry
	cost int
}

// NewService creates a new user service
func NewService(repo Store, log *logrus.Entry) *Service {
	return &Service{repo: repo, log: log, cost: bcrypt.DefaultCost}
}

// RegisterInput is the public sign-up payload
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// CreateInput is an admin-created account
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// UpdateInput is a partial admin update; nil fields are kept
type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
	Role     *Role
}

// ListResult is one page of the management list
type ListResult struct {
	Users      []Listed        `json:"users"`
	Pagination pagination.Meta `json:"pagination"`
}

// Register creates a regular user. Privileged accounts are created by admins only.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	return s.create(ctx, CreateInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Role:     RoleUser,
	})
}

// CreateUser creates an account with any role
func (s *Service) CreateUser(ctx context.Context, input CreateInput) (*User, error) {
	if !input.Role.Valid() {
		return nil, apperr.Validation("Ошибка валидации", map[string]string{"role": "неизвестная роль"})
	}
	return s.create(ctx, input)
}

func (s *Service) create(ctx context.Context, input CreateInput) (*User, error) {
	email := normalizeEmail(input.Email)

	// Check if user already exists
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("Пользователь с таким email уже существует", nil)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:       uuid.New(),
		Email:    email,
		Name:     strings.TrimSpace(input.Name),
		Password: hash,
		Role:     input.Role,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("Пользователь создан")
	return user, nil
}

// AuthenticateUser authenticates a user by email and password
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthenticated("Неверный email или пароль")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.Unauthenticated("Неверный email или пароль")
	}

	// last login is informational
	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("Не удалось обновить время входа")
	}

	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// UpdateUser applies a partial update
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, input UpdateInput) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if email != user.Email {
			if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
				return nil, apperr.Conflict("Пользователь с таким email уже существует", nil)
			} else if !apperr.Is(err, apperr.KindNotFound) {
				return nil, err
			}
			user.Email = email
		}
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, apperr.Validation("Ошибка валидации", map[string]string{"role": "неизвестная роль"})
		}
		user.Role = *input.Role
	}
	if input.Password != nil && *input.Password != "" {
		hash, err := s.hash(*input.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hash
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Info("Пользователь обновлен")
	return user, nil
}

// DeleteUser removes an account
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.WithField("user_id", id).Info("Пользователь удален")
	return nil
}

// ListUsers returns a page of users with open ticket counts
func (s *Service) ListUsers(ctx context.Context, filter ListFilter, page pagination.Page) (*ListResult, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	items, total, err := s.repo.ListUsers(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	return &ListResult{Users: items, Pagination: pagination.NewMeta(page, total)}, nil
}

// ListTechnicians returns staff members with workload
func (s *Service) ListTechnicians(ctx context.Context) ([]Technician, error) {
	return s.repo.ListTechnicians(ctx)
}

// ListStaff returns every technician and admin
func (s *Service) ListStaff(ctx context.Context) ([]User, error) {
	return s.repo.ListByRoles(ctx, RoleTechnician, RoleAdmin)
}

func (s *Service) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
