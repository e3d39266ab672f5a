package reports

import (
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
)

// Status состояние заявки
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// Statuses все состояния в порядке жизненного цикла
var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Valid известный статус
func (s Status) Valid() bool { return contains(Statuses, s) }

// Priority приоритет заявки
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Priorities все приоритеты по возрастанию
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Valid известный приоритет
func (p Priority) Valid() bool { return contains(Priorities, p) }

// IncidentType категория инцидента
type IncidentType string

const (
	TypeSystemFailure       IncidentType = "SYSTEM_FAILURE"
	TypeHardwareIssue       IncidentType = "HARDWARE_ISSUE"
	TypeNetworkIssue        IncidentType = "NETWORK_ISSUE"
	TypePrinterProblems     IncidentType = "PRINTER_PROBLEMS"
	TypeComputerSlow        IncidentType = "COMPUTER_SLOW"
	TypeEmailIssues         IncidentType = "EMAIL_ISSUES"
	TypeFileAccess          IncidentType = "FILE_ACCESS"
	TypeHardwareMalfunction IncidentType = "HARDWARE_MALFUNCTION"
	TypeInternetConnection  IncidentType = "INTERNET_CONNECTION"
	TypePasswordReset       IncidentType = "PASSWORD_RESET"
	TypeSoftwareCrash       IncidentType = "SOFTWARE_CRASH"
	TypeSystemUpdate        IncidentType = "SYSTEM_UPDATE"
	TypeVirusMalware        IncidentType = "VIRUS_MALWARE"
)

// IncidentTypes все типы инцидентов
var IncidentTypes = []IncidentType{
	TypeSystemFailure, TypeHardwareIssue, TypeNetworkIssue, TypePrinterProblems,
	TypeComputerSlow, TypeEmailIssues, TypeFileAccess, TypeHardwareMalfunction,
	TypeInternetConnection, TypePasswordReset, TypeSoftwareCrash, TypeSystemUpdate,
	TypeVirusMalware,
}

// Valid известный тип инцидента
func (t IncidentType) Valid() bool { return contains(IncidentTypes, t) }

// Action вид записи журнала
type Action string

const (
	ActionCreated       Action = "created"
	ActionAssigned      Action = "assigned"
	ActionUpdated       Action = "updated"
	ActionCommented     Action = "commented"
	ActionStatusChanged Action = "status_changed"
)

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Report заявка об инциденте
type Report struct {
	ID           uuid.UUID    `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Type         IncidentType `json:"type"`
	Priority     Priority     `json:"priority"`
	Status       Status       `json:"status"`
	Location     *string      `json:"location"`
	Equipment    *string      `json:"equipment"`
	ImageURL     *string      `json:"imageUrl"`
	ReportedByID uuid.UUID    `json:"reportedById"`
	AssignedToID *uuid.UUID   `json:"assignedToId"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Person краткие данные пользователя рядом с заявкой
type Person struct {
	ID    uuid.UUID  `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  users.Role `json:"role"`
}

// Comment комментарий к заявке; не изменяется после создания
type Comment struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	ReportID  uuid.UUID `json:"reportId"`
	AuthorID  uuid.UUID `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentView комментарий с автором
type CommentView struct {
	Comment
	Author Person `json:"author"`
}

// ActivityLog запись журнала изменений заявки
type ActivityLog struct {
	ID          uuid.UUID `json:"id"`
	Action      Action    `json:"action"`
	Description string    `json:"description"`
	ReportID    uuid.UUID `json:"reportId"`
	UserID      uuid.UUID `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActivityView запись журнала с автором действия
type ActivityView struct {
	ActivityLog
	User Person `json:"user"`
}

// Summary строка списка заявок
type Summary struct {
	Report
	ReportedBy    Person  `json:"reportedBy"`
	AssignedTo    *Person `json:"assignedTo"`
	CommentsCount int     `json:"commentsCount"`
}

// Details заявка со всеми связанными данными
type Details struct {
	Report
	ReportedBy Person         `json:"reportedBy"`
	AssignedTo *Person        `json:"assignedTo"`
	Comments   []CommentView  `json:"comments"`
	Logs       []ActivityView `json:"activityLogs"`
}

// Filter условия списка; nil поле не ограничивает выборку
type Filter struct {
	Status     *Status
	Type       *IncidentType
	Priority   *Priority
	AssignedTo *uuid.UUID
	ReportedBy *uuid.UUID
	// CreatedSince используется статистикой
	CreatedSince *time.Time
}

// CreateInput данные новой заявки
type CreateInput struct {
	Title       string
	Description string
	Type        IncidentType
	Priority    *Priority
	Location    *string
	Equipment   *string
	ImageURL    *string
}

// UpdateInput частичное изменение; nil поле остается прежним
type UpdateInput struct {
	Title        *string
	Description  *string
	Type         *IncidentType
	Priority     *Priority
	Status       *Status
	Location     *string
	Equipment    *string
	ImageURL     *string
	AssignedToID *uuid.UUID
}

// Column изменяемая колонка таблицы reports
type Column string

const (
	ColumnTitle       Column = "title"
	ColumnDescription Column = "description"
	ColumnType        Column = "type"
	ColumnPriority    Column = "priority"
	ColumnStatus      Column = "status"
	ColumnLocation    Column = "location"
	ColumnEquipment   Column = "equipment"
	ColumnImageURL    Column = "image_url"
	ColumnAssignee    Column = "assigned_to_id"
)

// Columns колонки, которые задает изменение
func (in UpdateInput) Columns() []Column {
	var cols []Column
	add := func(set bool, col Column) {
		if set {
			cols = append(cols, col)
		}
	}
	add(in.Title != nil, ColumnTitle)
	add(in.Description != nil, ColumnDescription)
	add(in.Type != nil, ColumnType)
	add(in.Priority != nil, ColumnPriority)
	add(in.Status != nil, ColumnStatus)
	add(in.Location != nil, ColumnLocation)
	add(in.Equipment != nil, ColumnEquipment)
	add(in.ImageURL != nil, ColumnImageURL)
	add(in.AssignedToID != nil, ColumnAssignee)
	return cols
}

// value значение колонки в заявке
func (r *Report) value(col Column) interface{} {
	switch col {
	case ColumnTitle:
		return r.Title
	case ColumnDescription:
		return r.Description
	case ColumnType:
		return r.Type
	case ColumnPriority:
		return r.Priority
	case ColumnStatus:
		return r.Status
	case ColumnLocation:
		return r.Location
	case ColumnEquipment:
		return r.Equipment
	case ColumnImageURL:
		return r.ImageURL
	case ColumnAssignee:
		return r.AssignedToID
	default:
		return nil
	}
}
