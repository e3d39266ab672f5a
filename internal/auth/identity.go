package auth

import (
	"context"
	"strings"

	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
)

// Capability право, выводимое из роли
type Capability uint16

const (
	ViewAllReports Capability = 1 << iota
	EditAllReports
	// TriageReports смена статуса и исполнителя при редактировании
	TriageReports
	AssignReports
	CommentAnyReport
	DeleteReports
	ListUsers
	ManageUsers
	SendTestNotifications
)

const staffCapabilities = ViewAllReports | EditAllReports | TriageReports | AssignReports |
	CommentAnyReport | ListUsers

var roleCapabilities = map[users.Role]Capability{
	users.RoleUser:       0,
	users.RoleTechnician: staffCapabilities,
	users.RoleAdmin:      staffCapabilities | DeleteReports | ManageUsers | SendTestNotifications,
}

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{ViewAllReports, "view_all_reports"},
	{EditAllReports, "edit_all_reports"},
	{TriageReports, "triage_reports"},
	{AssignReports, "assign_reports"},
	{CommentAnyReport, "comment_any_report"},
	{DeleteReports, "delete_reports"},
	{ListUsers, "list_users"},
	{ManageUsers, "manage_users"},
	{SendTestNotifications, "send_test_notifications"},
}

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CapabilitiesFor набор прав роли; неизвестная роль не получает ничего
func CapabilitiesFor(role users.Role) Capability {
	return roleCapabilities[role]
}

// Identity личность, от имени которой выполняется запрос
type Identity struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   users.Role
	caps   Capability
}

// NewIdentity строит личность по актуальной записи пользователя
func NewIdentity(u *users.User) Identity {
	return Identity{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		caps:   CapabilitiesFor(u.Role),
	}
}

// Can проверяет наличие всех перечисленных прав
func (i Identity) Can(c Capability) bool {
	return i.caps&c == c
}

// Capabilities полный набор прав
func (i Identity) Capabilities() Capability {
	return i.caps
}

type identityKey struct{}

// WithIdentity кладет личность в контекст
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext извлекает личность из контекста
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
