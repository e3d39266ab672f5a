package reports

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/logger"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore хранилище в памяти с тем же контрактом транзакций:
// изменение и запись журнала сохраняются вместе
type memStore struct {
	mu        sync.Mutex
	reports   map[uuid.UUID]*Report
	comments  map[uuid.UUID][]CommentView
	logs      map[uuid.UUID][]ActivityLog
	mutations int
	clock     time.Time

	// beforeUpdate правит строку между чтением и записью, как параллельный запрос
	beforeUpdate func(map[uuid.UUID]*Report)
}

func newMemStore() *memStore {
	return &memStore{
		reports:  map[uuid.UUID]*Report{},
		comments: map[uuid.UUID][]CommentView{},
		logs:     map[uuid.UUID][]ActivityLog{},
		clock:    time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) log(entry *ActivityLog) {
	entry.CreatedAt = m.tick()
	m.logs[entry.ReportID] = append(m.logs[entry.ReportID], *entry)
}

func (m *memStore) GetReport(_ context.Context, id uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("Заявка не найдена")
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetDetails(ctx context.Context, id uuid.UUID) (*Details, error) {
	r, err := m.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Details{Report: *r, ReportedBy: Person{ID: r.ReportedByID}}, nil
}

func (m *memStore) matching(f Filter) []Report {
	var out []Report
	for _, r := range m.reports {
		if f.ReportedBy != nil && r.ReportedByID != *f.ReportedBy {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.CreatedSince != nil && r.CreatedAt.Before(*f.CreatedSince) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) ListReports(_ context.Context, f Filter, page pagination.Page) ([]Summary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(f)
	var out []Summary
	for i := int(page.Offset()); i < len(all) && len(out) < page.Limit; i++ {
		out = append(out, Summary{Report: all[i]})
	}
	return out, len(all), nil
}

func (m *memStore) CountReports(_ context.Context, f Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(f)), nil
}

func (m *memStore) CountBy(_ context.Context, dim Dimension, f Filter) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, r := range m.matching(f) {
		switch dim {
		case ByStatus:
			out[string(r.Status)]++
		case ByType:
			out[string(r.Type)]++
		case ByPriority:
			out[string(r.Priority)]++
		}
	}
	return out, nil
}

func (m *memStore) CreateReport(_ context.Context, report *Report, entry *ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	report.CreatedAt = m.tick()
	report.UpdatedAt = report.CreatedAt
	cp := *report
	m.reports[report.ID] = &cp
	m.log(entry)
	m.mutations++
	return nil
}

func (m *memStore) UpdateReport(_ context.Context, report *Report, columns []Column, entry *ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeUpdate != nil {
		m.beforeUpdate(m.reports)
	}
	stored, ok := m.reports[report.ID]
	if !ok {
		return apperr.NotFound("Заявка не найдена")
	}
	for _, col := range columns {
		switch col {
		case ColumnTitle:
			stored.Title = report.Title
		case ColumnDescription:
			stored.Description = report.Description
		case ColumnType:
			stored.Type = report.Type
		case ColumnPriority:
			stored.Priority = report.Priority
		case ColumnStatus:
			stored.Status = report.Status
		case ColumnLocation:
			stored.Location = report.Location
		case ColumnEquipment:
			stored.Equipment = report.Equipment
		case ColumnImageURL:
			stored.ImageURL = report.ImageURL
		case ColumnAssignee:
			stored.AssignedToID = report.AssignedToID
		}
	}
	stored.UpdatedAt = m.tick()
	*report = *stored
	m.log(entry)
	m.mutations++
	return nil
}

func (m *memStore) DeleteReport(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return apperr.NotFound("Заявка не найдена")
	}
	delete(m.reports, id)
	delete(m.logs, id)
	delete(m.comments, id)
	m.mutations++
	return nil
}

func (m *memStore) AddComment(_ context.Context, comment *Comment, entry *ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment.CreatedAt = m.tick()
	m.comments[comment.ReportID] = append(m.comments[comment.ReportID], CommentView{Comment: *comment})
	m.log(entry)
	m.mutations++
	return nil
}

func (m *memStore) ListComments(_ context.Context, reportID uuid.UUID) ([]CommentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CommentView{}, m.comments[reportID]...), nil
}

type directory map[uuid.UUID]*users.User

func (d directory) GetUserByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	u, ok := d[id]
	if !ok {
		return nil, apperr.NotFound("Пользователь не найден")
	}
	return u, nil
}

type notification struct {
	event    string
	reportID uuid.UUID
	status   Status
}

type recordingNotifier struct {
	events []notification
}

func (n *recordingNotifier) NotifyNewReport(id uuid.UUID) bool {
	n.events = append(n.events, notification{event: "new_report", reportID: id})
	return true
}

func (n *recordingNotifier) NotifyReportAssigned(id uuid.UUID) bool {
	n.events = append(n.events, notification{event: "assigned", reportID: id})
	return true
}

func (n *recordingNotifier) NotifyStatusChanged(id uuid.UUID, status Status) bool {
	n.events = append(n.events, notification{event: "status_changed", reportID: id, status: status})
	return false
}

type fixture struct {
	svc      *Service
	store    *memStore
	notifier *recordingNotifier
	dir      directory
	user     auth.Identity
	other    auth.Identity
	tech     auth.Identity
	admin    auth.Identity
}

func newFixture() *fixture {
	f := &fixture{store: newMemStore(), notifier: &recordingNotifier{}, dir: directory{}}
	f.user = f.add("Ана", users.RoleUser)
	f.other = f.add("Борис", users.RoleUser)
	f.tech = f.add("Техник", users.RoleTechnician)
	f.admin = f.add("Админ", users.RoleAdmin)
	f.svc = NewService(f.store, f.dir, f.notifier, logger.Discard())
	return f
}

func (f *fixture) add(name string, role users.Role) auth.Identity {
	u := &users.User{ID: uuid.New(), Name: name, Email: strings.ToLower(string(role)) + "@tickets.com", Role: role}
	f.dir[u.ID] = u
	return auth.NewIdentity(u)
}

func (f *fixture) create(t *testing.T, actor auth.Identity) *Report {
	t.Helper()
	r, err := f.svc.Create(context.Background(), actor, CreateInput{
		Title:       "Printer jam",
		Description: "Принтер на третьем этаже зажевал бумагу",
		Type:        TypePrinterProblems,
	})
	require.NoError(t, err)
	return r
}

func TestCreate_DefaultsAndAuthorship(t *testing.T) {
	f := newFixture()

	r := f.create(t, f.user)
	assert.Equal(t, StatusOpen, r.Status)
	assert.Equal(t, PriorityMedium, r.Priority)
	assert.Equal(t, f.user.UserID, r.ReportedByID)

	logs := f.store.logs[r.ID]
	require.Len(t, logs, 1)
	assert.Equal(t, ActionCreated, logs[0].Action)
	assert.Equal(t, f.user.UserID, logs[0].UserID)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "new_report", f.notifier.events[0].event)
}

func TestCreate_RejectsUnknownType(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.user, CreateInput{
		Title: "Что-то", Description: "Описание проблемы", Type: "COFFEE_MACHINE",
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, 0, f.store.mutations)
}

func TestGet_ForeignUserForbidden(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	_, err := f.svc.Get(context.Background(), f.other, r.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.svc.Get(context.Background(), f.tech, r.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), f.user, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestList_UserScopedToOwnReports(t *testing.T) {
	f := newFixture()
	f.create(t, f.user)
	f.create(t, f.other)
	f.create(t, f.other)

	res, err := f.svc.List(context.Background(), f.user, Filter{ReportedBy: &f.other.UserID}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pagination.Total)
	for _, r := range res.Reports {
		assert.Equal(t, f.user.UserID, r.ReportedByID)
	}

	res, err = f.svc.List(context.Background(), f.admin, Filter{}, pagination.New(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.TotalPages)
	assert.Len(t, res.Reports, 2)
}

func TestUpdate_UserCannotTriage(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	status := StatusClosed
	title := "Printer jam again"
	updated, err := f.svc.Update(context.Background(), f.user, r.ID, UpdateInput{
		Title:        &title,
		Status:       &status,
		AssignedToID: &f.tech.UserID,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, updated.Status)
	assert.Nil(t, updated.AssignedToID)
	assert.Equal(t, title, updated.Title)

	stored := f.store.reports[r.ID]
	assert.Equal(t, StatusOpen, stored.Status)
	assert.Nil(t, stored.AssignedToID)

	logs := f.store.logs[r.ID]
	require.Len(t, logs, 2)
	assert.Equal(t, ActionUpdated, logs[1].Action)
}

func TestUpdate_ForeignUserForbidden(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	title := "Чужая заявка"
	_, err := f.svc.Update(context.Background(), f.other, r.ID, UpdateInput{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Len(t, f.store.logs[r.ID], 1)
}

func TestUpdate_StatusChangeNotifiesReporter(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	status := StatusResolved
	updated, err := f.svc.Update(context.Background(), f.tech, r.ID, UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, updated.Status)

	logs := f.store.logs[r.ID]
	require.Len(t, logs, 2)
	assert.Equal(t, ActionStatusChanged, logs[1].Action)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, "status_changed", last.event)
	assert.Equal(t, StatusResolved, last.status)

	// обратный переход разрешен
	reopen := StatusOpen
	updated, err = f.svc.Update(context.Background(), f.admin, r.ID, UpdateInput{Status: &reopen})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, updated.Status)
}

func TestUpdate_SameStatusIsPlainUpdate(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	status := StatusOpen
	_, err := f.svc.Update(context.Background(), f.tech, r.ID, UpdateInput{Status: &status})
	require.NoError(t, err)

	logs := f.store.logs[r.ID]
	assert.Equal(t, ActionUpdated, logs[len(logs)-1].Action)
	assert.Len(t, f.notifier.events, 1)
}

func TestUpdate_InvalidAssignee(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	_, err := f.svc.Update(context.Background(), f.admin, r.ID, UpdateInput{AssignedToID: &f.other.UserID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Len(t, f.store.logs[r.ID], 1)
}

func TestCreate_LengthCheckedAfterTrim(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.user, CreateInput{
		Title: "   a    ", Description: "          x          ", Type: TypePrinterProblems,
	})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "title")
	assert.Contains(t, appErr.Details, "description")
	assert.Equal(t, 0, f.store.mutations)
}

func TestUpdate_LengthCheckedAfterTrim(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	title := "  ab  "
	_, err := f.svc.Update(context.Background(), f.user, r.ID, UpdateInput{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "Printer jam", f.store.reports[r.ID].Title)
	assert.Len(t, f.store.logs[r.ID], 1)
}

func TestUpdate_UserEditKeepsConcurrentTriage(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	// пока пользователь правил заголовок, техник взял заявку в работу
	f.store.beforeUpdate = func(rows map[uuid.UUID]*Report) {
		rows[r.ID].Status = StatusInProgress
		rows[r.ID].AssignedToID = &f.tech.UserID
	}

	title := "Printer jam on floor 3"
	updated, err := f.svc.Update(context.Background(), f.user, r.ID, UpdateInput{Title: &title})
	require.NoError(t, err)

	stored := f.store.reports[r.ID]
	assert.Equal(t, title, stored.Title)
	assert.Equal(t, StatusInProgress, stored.Status)
	require.NotNil(t, stored.AssignedToID)
	assert.Equal(t, f.tech.UserID, *stored.AssignedToID)
	assert.Equal(t, StatusInProgress, updated.Status)
}

func TestCheckEditAndComment(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)
	ctx := context.Background()

	assert.NoError(t, f.svc.CheckEdit(ctx, f.user, r.ID))
	assert.True(t, apperr.Is(f.svc.CheckEdit(ctx, f.other, r.ID), apperr.KindAuthorization))
	assert.True(t, apperr.Is(f.svc.CheckComment(ctx, f.other, r.ID), apperr.KindAuthorization))
	assert.NoError(t, f.svc.CheckComment(ctx, f.tech, r.ID))
	assert.True(t, apperr.Is(f.svc.CheckEdit(ctx, f.user, uuid.New()), apperr.KindNotFound))
}

func TestAssign_OpenMovesToInProgress(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)
	f.notifier.events = nil

	assigned, err := f.svc.Assign(context.Background(), f.admin, r.ID, f.tech.UserID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, assigned.Status)
	require.NotNil(t, assigned.AssignedToID)
	assert.Equal(t, f.tech.UserID, *assigned.AssignedToID)

	logs := f.store.logs[r.ID]
	require.Len(t, logs, 2)
	assert.Equal(t, ActionAssigned, logs[1].Action)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notification{event: "assigned", reportID: r.ID}, f.notifier.events[0])
}

func TestAssign_KeepsNonOpenStatus(t *testing.T) {
	for _, status := range []Status{StatusInProgress, StatusResolved, StatusClosed} {
		f := newFixture()
		r := f.create(t, f.user)
		st := status
		_, err := f.svc.Update(context.Background(), f.tech, r.ID, UpdateInput{Status: &st})
		require.NoError(t, err)

		assigned, err := f.svc.Assign(context.Background(), f.tech, r.ID, f.admin.UserID)
		require.NoError(t, err)
		assert.Equal(t, status, assigned.Status)
	}
}

func TestAssign_InvalidTechnicianNoMutation(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)
	before := f.store.mutations

	_, err := f.svc.Assign(context.Background(), f.admin, r.ID, f.other.UserID)
	require.Error(t, err)
	assert.Equal(t, 400, apperr.HTTPStatus(apperr.KindOf(err)))

	_, err = f.svc.Assign(context.Background(), f.admin, r.ID, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Equal(t, before, f.store.mutations)
	assert.Len(t, f.store.logs[r.ID], 1)
	assert.Equal(t, StatusOpen, f.store.reports[r.ID].Status)
}

func TestAssign_UserForbidden(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)

	_, err := f.svc.Assign(context.Background(), f.user, r.ID, f.tech.UserID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestDelete_OnlyAdmin(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)
	before := f.store.mutations

	err := f.svc.Delete(context.Background(), f.user, r.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	err = f.svc.Delete(context.Background(), f.tech, r.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Equal(t, before, f.store.mutations)

	require.NoError(t, f.svc.Delete(context.Background(), f.admin, r.ID))
	assert.NotContains(t, f.store.reports, r.ID)
}

func TestComments(t *testing.T) {
	f := newFixture()
	r := f.create(t, f.user)
	ctx := context.Background()

	_, err := f.svc.AddComment(ctx, f.other, r.ID, "Я тоже")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.svc.AddComment(ctx, f.user, r.ID, "   ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	c, err := f.svc.AddComment(ctx, f.user, r.ID, "Бумага застряла снова")
	require.NoError(t, err)
	assert.Equal(t, f.user.UserID, c.AuthorID)
	assert.Equal(t, f.user.Name, c.Author.Name)

	_, err = f.svc.ListComments(ctx, f.other, r.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	list, err := f.svc.ListComments(ctx, f.tech, r.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	logs := f.store.logs[r.ID]
	require.Len(t, logs, 2)
	assert.Equal(t, ActionCommented, logs[1].Action)
}

func TestActivityLog_OrderMatchesMutations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.create(t, f.user)

	_, err := f.svc.Assign(ctx, f.admin, r.ID, f.tech.UserID)
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, f.tech, r.ID, "Смотрю")
	require.NoError(t, err)
	resolved := StatusResolved
	_, err = f.svc.Update(ctx, f.tech, r.ID, UpdateInput{Status: &resolved})
	require.NoError(t, err)
	title := "Printer jam (solved)"
	_, err = f.svc.Update(ctx, f.user, r.ID, UpdateInput{Title: &title})
	require.NoError(t, err)

	logs := f.store.logs[r.ID]
	var actions []Action
	for i, l := range logs {
		actions = append(actions, l.Action)
		if i > 0 {
			assert.True(t, l.CreatedAt.After(logs[i-1].CreatedAt))
		}
	}
	assert.Equal(t, []Action{ActionCreated, ActionAssigned, ActionCommented, ActionStatusChanged, ActionUpdated}, actions)
}

func TestStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.svc.now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }

	r := f.create(t, f.user)
	f.create(t, f.other)
	critical := PriorityCritical
	_, err := f.svc.Create(ctx, f.other, CreateInput{
		Title: "Сервер упал", Description: "Основной сервер не отвечает", Type: TypeSystemFailure, Priority: &critical,
	})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, f.tech, r.ID, f.tech.UserID)
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, Overview{Total: 3, Open: 2, InProgress: 1, Critical: 1}, stats.Overview)
	assert.Equal(t, 2, stats.Charts.Type["printer_problems"])
	assert.Equal(t, 0, stats.Charts.Type["virus_malware"])
	assert.Equal(t, 0, stats.Charts.Status["closed"])
	assert.Len(t, stats.Charts.Type, len(IncidentTypes))
	assert.Equal(t, 3, stats.Trends.ThisMonth)
	assert.Equal(t, "0.0", stats.Trends.Change)
	assert.Len(t, stats.Recent, 3)

	own, err := f.svc.Stats(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 1, own.Overview.Total)
	assert.Len(t, own.Recent, 1)
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, "0", percentChange(5, 0))
	assert.Equal(t, "50.0", percentChange(3, 2))
	assert.Equal(t, "-33.3", percentChange(2, 3))
}
