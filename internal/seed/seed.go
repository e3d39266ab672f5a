// Package seed загружает демонстрационные данные из YAML файла
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// File содержимое seed файла
type File struct {
	Users   []User   `yaml:"users"`
	Reports []Report `yaml:"reports"`
}

// User учетная запись; пароль хэшируется при загрузке
type User struct {
	Email    string     `yaml:"email"`
	Name     string     `yaml:"name"`
	Password string     `yaml:"password"`
	Role     users.Role `yaml:"role"`
}

// Report ссылается на пользователей по email
type Report struct {
	Title       string               `yaml:"title"`
	Description string               `yaml:"description"`
	Type        reports.IncidentType `yaml:"type"`
	Priority    reports.Priority     `yaml:"priority"`
	Status      reports.Status       `yaml:"status"`
	Location    string               `yaml:"location"`
	Equipment   string               `yaml:"equipment"`
	ReportedBy  string               `yaml:"reported_by"`
	AssignedTo  string               `yaml:"assigned_to"`
	Comments    []Comment            `yaml:"comments"`
}

// Comment комментарий к демонстрационной заявке
type Comment struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

// Load читает и разбирает файл; неизвестные ключи считаются ошибкой
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает содержимое seed файла
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.UnmarshalStrict(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return f, nil
}

// UserCreator создает пользователя с хэшированием пароля
type UserCreator interface {
	CreateUser(ctx context.Context, input users.CreateInput) (*users.User, error)
}

// UserLookup поиск существующих пользователей по email
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*users.User, error)
}

// ReportStore хранилище заявок для загрузки
type ReportStore interface {
	CountReports(ctx context.Context, f reports.Filter) (int, error)
	CreateReport(ctx context.Context, report *reports.Report, entry *reports.ActivityLog) error
	AddComment(ctx context.Context, comment *reports.Comment, entry *reports.ActivityLog) error
}

// Summary что было создано
type Summary struct {
	UsersCreated   int
	UsersSkipped   int
	ReportsCreated int
	Comments       int
}

// Seeder применяет seed файл. Пользователи с существующим email пропускаются,
// заявки создаются только в пустой базе.
type Seeder struct {
	creator UserCreator
	lookup  UserLookup
	reports ReportStore
	log     *logrus.Entry
}

// NewSeeder создает загрузчик демонстрационных данных
func NewSeeder(creator UserCreator, lookup UserLookup, store ReportStore, log *logrus.Entry) *Seeder {
	return &Seeder{creator: creator, lookup: lookup, reports: store, log: log}
}

// Apply загружает файл и возвращает число созданных записей
func (s *Seeder) Apply(ctx context.Context, f *File) (*Summary, error) {
	sum := &Summary{}
	ids := make(map[string]uuid.UUID, len(f.Users))

	for _, u := range f.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		existing, err := s.lookup.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			ids[email] = existing.ID
			sum.UsersSkipped++
			continue
		case !apperr.Is(err, apperr.KindNotFound):
			return nil, err
		}

		created, err := s.creator.CreateUser(ctx, users.CreateInput{
			Name:     u.Name,
			Email:    email,
			Password: u.Password,
			Role:     u.Role,
		})
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", email, err)
		}
		ids[email] = created.ID
		sum.UsersCreated++
		s.log.WithField("email", email).Info("Создан пользователь")
	}

	if len(f.Reports) == 0 {
		return sum, nil
	}

	total, err := s.reports.CountReports(ctx, reports.Filter{})
	if err != nil {
		return nil, err
	}
	if total > 0 {
		s.log.WithField("reports", total).Info("Заявки уже есть, демонстрационные не создаются")
		return sum, nil
	}

	userID := func(email string) (uuid.UUID, error) {
		id, ok := ids[strings.ToLower(strings.TrimSpace(email))]
		if !ok {
			return uuid.Nil, fmt.Errorf("seed references unknown user %q", email)
		}
		return id, nil
	}

	for _, r := range f.Reports {
		report, err := s.report(r, userID)
		if err != nil {
			return nil, err
		}
		created := activity(report.ID, report.ReportedByID, reports.ActionCreated, "Заявка создана")
		if err := s.reports.CreateReport(ctx, report, created); err != nil {
			return nil, fmt.Errorf("seed report %q: %w", r.Title, err)
		}
		sum.ReportsCreated++

		for _, c := range r.Comments {
			authorID, err := userID(c.Author)
			if err != nil {
				return nil, err
			}
			comment := &reports.Comment{ID: uuid.New(), Content: c.Content, ReportID: report.ID, AuthorID: authorID}
			entry := activity(report.ID, authorID, reports.ActionCommented, "Добавлен комментарий")
			if err := s.reports.AddComment(ctx, comment, entry); err != nil {
				return nil, fmt.Errorf("seed comment for %q: %w", r.Title, err)
			}
			sum.Comments++
		}
	}

	return sum, nil
}

func (s *Seeder) report(r Report, userID func(string) (uuid.UUID, error)) (*reports.Report, error) {
	reporter, err := userID(r.ReportedBy)
	if err != nil {
		return nil, err
	}

	report := &reports.Report{
		ID:           uuid.New(),
		Title:        r.Title,
		Description:  r.Description,
		Type:         r.Type,
		Priority:     r.Priority,
		Status:       r.Status,
		Location:     optional(r.Location),
		Equipment:    optional(r.Equipment),
		ReportedByID: reporter,
	}
	if report.Priority == "" {
		report.Priority = reports.PriorityMedium
	}
	if report.Status == "" {
		report.Status = reports.StatusOpen
	}
	if !report.Type.Valid() || !report.Priority.Valid() || !report.Status.Valid() {
		return nil, fmt.Errorf("seed report %q: invalid type, priority or status", r.Title)
	}

	if r.AssignedTo != "" {
		assignee, err := userID(r.AssignedTo)
		if err != nil {
			return nil, err
		}
		report.AssignedToID = &assignee
	}
	return report, nil
}

func activity(reportID, userID uuid.UUID, action reports.Action, description string) *reports.ActivityLog {
	return &reports.ActivityLog{
		ID:          uuid.New(),
		Action:      action,
		Description: description,
		ReportID:    reportID,
		UserID:      userID,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
