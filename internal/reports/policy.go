package reports

import (
	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
)

// Правила доступа к заявкам. Функции не обращаются к хранилищу: решение
// принимается по Identity и уже загруженной заявке.

func isReporter(id auth.Identity, r *Report) bool {
	return r.ReportedByID == id.UserID
}

func isAssignee(id auth.Identity, r *Report) bool {
	return r.AssignedToID != nil && *r.AssignedToID == id.UserID
}

// CanView персонал видит любые заявки, пользователь только свои
func CanView(id auth.Identity, r *Report) error {
	if id.Can(auth.ViewAllReports) || isReporter(id, r) {
		return nil
	}
	return apperr.Forbidden("Нет доступа к этой заявке")
}

// CanEdit персонал редактирует любые заявки, пользователь только свои
func CanEdit(id auth.Identity, r *Report) error {
	if id.Can(auth.EditAllReports) || isReporter(id, r) {
		return nil
	}
	return apperr.Forbidden("Нет прав на изменение этой заявки")
}

// SanitizeUpdate убирает статус и исполнителя из изменений тех, кто не ведет заявки
func SanitizeUpdate(id auth.Identity, in UpdateInput) UpdateInput {
	if !id.Can(auth.TriageReports) {
		in.Status = nil
		in.AssignedToID = nil
	}
	return in
}

// CanComment персонал, автор заявки или ее исполнитель
func CanComment(id auth.Identity, r *Report) error {
	if id.Can(auth.CommentAnyReport) || isReporter(id, r) || isAssignee(id, r) {
		return nil
	}
	return apperr.Forbidden("Нет прав на комментирование этой заявки")
}

// CanAssign назначать исполнителя могут только техники и администраторы
func CanAssign(id auth.Identity) error {
	if id.Can(auth.AssignReports) {
		return nil
	}
	return apperr.Forbidden("Только техники и администраторы могут назначать заявки")
}

// CanDelete удалять заявки может только администратор
func CanDelete(id auth.Identity) error {
	if id.Can(auth.DeleteReports) {
		return nil
	}
	return apperr.Forbidden("Только администраторы могут удалять заявки")
}

// ValidateAssignee исполнителем может быть только существующий техник или администратор
func ValidateAssignee(u *users.User) error {
	if u == nil || !u.Role.IsStaff() {
		return apperr.Validation("Недопустимый техник", map[string]string{
			"assignedToId": "пользователь должен иметь роль TECHNICIAN или ADMIN",
		})
	}
	return nil
}

// StatusAfterAssign назначение переводит OPEN в IN_PROGRESS, остальные статусы не меняет
func StatusAfterAssign(current Status) Status {
	if current == StatusOpen {
		return StatusInProgress
	}
	return current
}

// ListScope ограничивает выборку своими заявками для тех, кто не видит все
func ListScope(id auth.Identity, f Filter) Filter {
	if !id.Can(auth.ViewAllReports) {
		own := id.UserID
		f.ReportedBy = &own
	}
	return f
}

// UpdateAction вид записи журнала для изменения заявки
func UpdateAction(before, after Status) Action {
	if before != after {
		return ActionStatusChanged
	}
	return ActionUpdated
}

// ApplyUpdate переносит заданные поля на заявку и возвращает прежний статус
func ApplyUpdate(r *Report, in UpdateInput) Status {
	before := r.Status
	if in.Title != nil {
		r.Title = *in.Title
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Type != nil {
		r.Type = *in.Type
	}
	if in.Priority != nil {
		r.Priority = *in.Priority
	}
	if in.Status != nil {
		r.Status = *in.Status
	}
	if in.Location != nil {
		r.Location = in.Location
	}
	if in.Equipment != nil {
		r.Equipment = in.Equipment
	}
	if in.ImageURL != nil {
		r.ImageURL = in.ImageURL
	}
	if in.AssignedToID != nil {
		assignee := *in.AssignedToID
		r.AssignedToID = &assignee
	}
	return before
}
