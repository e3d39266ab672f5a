package reports

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Ограничения длины после обрезки пробелов
const (
	MinTitleLength       = 5
	MinDescriptionLength = 10
)

// Store хранилище заявок; *Repository реализует его
type Store interface {
	GetReport(ctx context.Context, id uuid.UUID) (*Report, error)
	GetDetails(ctx context.Context, id uuid.UUID) (*Details, error)
	ListReports(ctx context.Context, f Filter, page pagination.Page) ([]Summary, int, error)
	CountReports(ctx context.Context, f Filter) (int, error)
	CountBy(ctx context.Context, dim Dimension, f Filter) (map[string]int, error)
	CreateReport(ctx context.Context, report *Report, entry *ActivityLog) error
	UpdateReport(ctx context.Context, report *Report, columns []Column, entry *ActivityLog) error
	DeleteReport(ctx context.Context, id uuid.UUID) error
	AddComment(ctx context.Context, comment *Comment, entry *ActivityLog) error
	ListComments(ctx context.Context, reportID uuid.UUID) ([]CommentView, error)
}

// UserDirectory источник данных об исполнителях
type UserDirectory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Notifier ставит письма о событиях заявки в очередь и сразу возвращается.
// false означает, что событие не принято; запрос от этого не проваливается.
type Notifier interface {
	NotifyNewReport(reportID uuid.UUID) bool
	NotifyReportAssigned(reportID uuid.UUID) bool
	NotifyStatusChanged(reportID uuid.UUID, status Status) bool
}

// Service сценарии работы с заявками
type Service struct {
	store    Store
	users    UserDirectory
	notifier Notifier
	log      *logrus.Entry
	now      func() time.Time
}

// NewService создает сервис заявок
func NewService(store Store, directory UserDirectory, notifier Notifier, log *logrus.Entry) *Service {
	return &Service{
		store:    store,
		users:    directory,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// ListResult страница списка заявок
type ListResult struct {
	Reports    []Summary       `json:"reports"`
	Pagination pagination.Meta `json:"pagination"`
}

// List возвращает заявки; пользователь видит только свои
func (s *Service) List(ctx context.Context, actor auth.Identity, f Filter, page pagination.Page) (*ListResult, error) {
	items, total, err := s.store.ListReports(ctx, ListScope(actor, f), page)
	if err != nil {
		return nil, err
	}
	return &ListResult{Reports: items, Pagination: pagination.NewMeta(page, total)}, nil
}

// Get возвращает заявку со связанными данными
func (s *Service) Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Details, error) {
	details, err := s.store.GetDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanView(actor, &details.Report); err != nil {
		return nil, err
	}
	return details, nil
}

// Create регистрирует заявку от имени actor
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (*Report, error) {
	priority := PriorityMedium
	if in.Priority != nil {
		priority = *in.Priority
	}
	if err := validateEnums(&in.Type, &priority, nil); err != nil {
		return nil, err
	}
	title, description := strings.TrimSpace(in.Title), strings.TrimSpace(in.Description)
	if err := validateText(&title, &description); err != nil {
		return nil, err
	}

	report := &Report{
		ID:           uuid.New(),
		Title:        title,
		Description:  description,
		Type:         in.Type,
		Priority:     priority,
		Status:       StatusOpen,
		Location:     in.Location,
		Equipment:    in.Equipment,
		ImageURL:     in.ImageURL,
		ReportedByID: actor.UserID,
	}

	entry := s.entry(report.ID, actor, ActionCreated,
		fmt.Sprintf("Заявка «%s» создана пользователем %s", report.Title, actor.Name))
	if err := s.store.CreateReport(ctx, report, entry); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"report_id": report.ID, "user_id": actor.UserID}).Info("Заявка создана")
	s.queued(s.notifier.NotifyNewReport(report.ID), "new_report", report.ID)
	return report, nil
}

// Update изменяет заявку. Статус и исполнитель меняются только персоналом.
func (s *Service) Update(ctx context.Context, actor auth.Identity, id uuid.UUID, in UpdateInput) (*Report, error) {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanEdit(actor, report); err != nil {
		return nil, err
	}

	in = SanitizeUpdate(actor, in)
	if err := validateEnums(in.Type, in.Priority, in.Status); err != nil {
		return nil, err
	}
	if in.AssignedToID != nil {
		if _, err := s.assignee(ctx, *in.AssignedToID); err != nil {
			return nil, err
		}
	}
	trimPtr(in.Title)
	trimPtr(in.Description)
	if err := validateText(in.Title, in.Description); err != nil {
		return nil, err
	}

	before := ApplyUpdate(report, in)
	action := UpdateAction(before, report.Status)

	description := fmt.Sprintf("Заявка обновлена пользователем %s", actor.Name)
	if action == ActionStatusChanged {
		description = fmt.Sprintf("Статус изменен с %s на %s пользователем %s", before, report.Status, actor.Name)
	}

	if err := s.store.UpdateReport(ctx, report, in.Columns(), s.entry(report.ID, actor, action, description)); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"report_id": report.ID, "action": action}).Info("Заявка обновлена")
	if action == ActionStatusChanged {
		s.queued(s.notifier.NotifyStatusChanged(report.ID, report.Status), "status_changed", report.ID)
	}
	return report, nil
}

// Assign назначает исполнителя; открытая заявка переходит в работу
func (s *Service) Assign(ctx context.Context, actor auth.Identity, id, assigneeID uuid.UUID) (*Report, error) {
	if err := CanAssign(actor); err != nil {
		return nil, err
	}

	assignee, err := s.assignee(ctx, assigneeID)
	if err != nil {
		return nil, err
	}

	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	columns := []Column{ColumnAssignee}
	report.AssignedToID = &assignee.ID
	if next := StatusAfterAssign(report.Status); next != report.Status {
		report.Status = next
		columns = append(columns, ColumnStatus)
	}

	entry := s.entry(report.ID, actor, ActionAssigned,
		fmt.Sprintf("Заявка назначена на %s пользователем %s", assignee.Name, actor.Name))
	if err := s.store.UpdateReport(ctx, report, columns, entry); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"report_id": report.ID, "assignee_id": assignee.ID}).Info("Заявка назначена")
	s.queued(s.notifier.NotifyReportAssigned(report.ID), "assigned", report.ID)
	return report, nil
}

// CheckEdit проверяет право изменять заявку, не меняя ее
func (s *Service) CheckEdit(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return err
	}
	return CanEdit(actor, report)
}

// CheckComment проверяет право комментировать заявку
func (s *Service) CheckComment(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return err
	}
	return CanComment(actor, report)
}

// Delete удаляет заявку
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	if err := CanDelete(actor); err != nil {
		return err
	}
	if err := s.store.DeleteReport(ctx, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"report_id": id, "user_id": actor.UserID}).Info("Заявка удалена")
	return nil
}

// ListComments комментарии заявки, доступные тем, кто видит заявку
func (s *Service) ListComments(ctx context.Context, actor auth.Identity, id uuid.UUID) ([]CommentView, error) {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanView(actor, report); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, id)
}

// AddComment добавляет комментарий от имени actor
func (s *Service) AddComment(ctx context.Context, actor auth.Identity, id uuid.UUID, content string) (*CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("Ошибка валидации", map[string]string{"content": "обязательное поле"})
	}

	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanComment(actor, report); err != nil {
		return nil, err
	}

	comment := &CommentView{
		Comment: Comment{
			ID:       uuid.New(),
			Content:  content,
			ReportID: report.ID,
			AuthorID: actor.UserID,
		},
		Author: Person{ID: actor.UserID, Name: actor.Name, Email: actor.Email, Role: actor.Role},
	}

	entry := s.entry(report.ID, actor, ActionCommented,
		fmt.Sprintf("%s добавил(а) комментарий", actor.Name))
	if err := s.store.AddComment(ctx, &comment.Comment, entry); err != nil {
		return nil, err
	}

	return comment, nil
}

// assignee загружает кандидата в исполнители; отсутствующий пользователь
// и пользователь без роли персонала дают одну и ту же ошибку валидации
func (s *Service) assignee(ctx context.Context, id uuid.UUID) (*users.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		u = nil
	}
	if err := ValidateAssignee(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) entry(reportID uuid.UUID, actor auth.Identity, action Action, description string) *ActivityLog {
	return &ActivityLog{
		ID:          uuid.New(),
		Action:      action,
		Description: description,
		ReportID:    reportID,
		UserID:      actor.UserID,
	}
}

func (s *Service) queued(ok bool, event string, reportID uuid.UUID) {
	if !ok {
		s.log.WithFields(logrus.Fields{"event": event, "report_id": reportID}).
			Warn("Уведомление не поставлено в очередь")
	}
}

func validateEnums(t *IncidentType, p *Priority, st *Status) error {
	fields := map[string]string{}
	if t != nil && !t.Valid() {
		fields["type"] = "неизвестный тип инцидента"
	}
	if p != nil && !p.Valid() {
		fields["priority"] = "неизвестный приоритет"
	}
	if st != nil && !st.Valid() {
		fields["status"] = "неизвестный статус"
	}
	if len(fields) > 0 {
		return apperr.Validation("Ошибка валидации", fields)
	}
	return nil
}

// validateText проверяет длину уже обрезанных заголовка и описания; nil пропускается
func validateText(title, description *string) error {
	fields := map[string]string{}
	if title != nil && utf8.RuneCountInString(*title) < MinTitleLength {
		fields["title"] = fmt.Sprintf("минимальная длина %d", MinTitleLength)
	}
	if description != nil && utf8.RuneCountInString(*description) < MinDescriptionLength {
		fields["description"] = fmt.Sprintf("минимальная длина %d", MinDescriptionLength)
	}
	if len(fields) > 0 {
		return apperr.Validation("Ошибка валидации", fields)
	}
	return nil
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
