package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/logger"
	"github.com/Ultrahd-dev/helpdesk/internal/metrics"
	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

type fakeReports map[uuid.UUID]*reports.Details

func (f fakeReports) GetDetails(_ context.Context, id uuid.UUID) (*reports.Details, error) {
	d, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("Заявка не найдена")
	}
	return d, nil
}

type fakeStaff []users.User

func (f fakeStaff) ListStaff(context.Context) ([]users.User, error) {
	return f, nil
}

type memDeliveries struct {
	mu    sync.Mutex
	items []Delivery
}

func (m *memDeliveries) CreateDelivery(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.CreatedAt = time.Now()
	m.items = append(m.items, *d)
	return nil
}

func (m *memDeliveries) all() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.items...)
}

type env struct {
	report     *reports.Details
	source     fakeReports
	staff      fakeStaff
	deliveries *memDeliveries
}

func newEnv() *env {
	report := &reports.Details{
		Report: reports.Report{
			ID:       uuid.New(),
			Title:    "Не работает принтер",
			Type:     reports.TypePrinterProblems,
			Priority: reports.PriorityHigh,
			Status:   reports.StatusOpen,
		},
		ReportedBy: reports.Person{ID: uuid.New(), Name: "Иван", Email: "ivan@example.com", Role: users.RoleUser},
	}
	return &env{
		report: report,
		source: fakeReports{report.ID: report},
		staff: fakeStaff{
			{ID: uuid.New(), Email: "tech@example.com", Role: users.RoleTechnician},
			{ID: uuid.New(), Email: "admin@example.com", Role: users.RoleAdmin},
		},
		deliveries: &memDeliveries{},
	}
}

func (e *env) dispatcher(t *testing.T, mailer Mailer, opts Options) *Dispatcher {
	t.Helper()
	d := NewDispatcher(e.source, e.staff, e.deliveries, mailer,
		metrics.New(prometheus.NewRegistry()), logger.Discard(), opts)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestDispatch_NewReportGoesToStaff(t *testing.T) {
	e := newEnv()
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.Subject == "Новая заявка: Не работает принтер"
	})).Return(nil).Twice()

	d := e.dispatcher(t, mailer, Options{})
	res, err := d.Dispatch(context.Background(), Event{Kind: EventNewReport, ReportID: e.report.ID})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"tech@example.com", "admin@example.com"}, res.Recipients)
	assert.Equal(t, 2, res.Sent)
	assert.False(t, res.Simulated)
	mailer.AssertExpectations(t)

	logged := e.deliveries.all()
	require.Len(t, logged, 2)
	for _, dl := range logged {
		assert.Equal(t, DeliverySent, dl.Status)
		assert.Nil(t, dl.Error)
	}
}

func TestDispatch_CollectsFailures(t *testing.T) {
	e := newEnv()
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool { return m.To == "tech@example.com" })).
		Return(errors.New("mailbox unavailable"))
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	d := e.dispatcher(t, mailer, Options{})
	res, err := d.Dispatch(context.Background(), Event{Kind: EventNewReport, ReportID: e.report.ID})
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Contains(t, err.Error(), "tech@example.com")
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)

	var failed int
	for _, dl := range e.deliveries.all() {
		if dl.Status == DeliveryFailed {
			failed++
			require.NotNil(t, dl.Error)
			assert.Contains(t, *dl.Error, "mailbox unavailable")
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDispatch_Recipients(t *testing.T) {
	e := newEnv()
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	d := e.dispatcher(t, mailer, Options{})

	_, err := d.Dispatch(context.Background(), Event{Kind: EventAssigned, ReportID: e.report.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	e.report.AssignedTo = &reports.Person{ID: uuid.New(), Name: "Техник", Email: "tech@example.com"}
	res, err := d.Dispatch(context.Background(), Event{Kind: EventAssigned, ReportID: e.report.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech@example.com"}, res.Recipients)

	res, err = d.Dispatch(context.Background(), Event{Kind: EventStatusChanged, ReportID: e.report.ID, Status: reports.StatusResolved})
	require.NoError(t, err)
	assert.Equal(t, []string{"ivan@example.com"}, res.Recipients)
}

func TestDispatch_RejectsBadEvents(t *testing.T) {
	e := newEnv()
	d := e.dispatcher(t, &mockMailer{}, Options{})

	_, err := d.Dispatch(context.Background(), Event{Kind: "digest", ReportID: e.report.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = d.Dispatch(context.Background(), Event{Kind: EventStatusChanged, ReportID: e.report.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = d.Dispatch(context.Background(), Event{Kind: EventNewReport, ReportID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDispatch_SimulatedMailer(t *testing.T) {
	e := newEnv()
	d := e.dispatcher(t, NewLogMailer(logger.Discard()), Options{})

	res, err := d.Dispatch(context.Background(), Event{Kind: EventNewReport, ReportID: e.report.ID})
	require.NoError(t, err)
	assert.True(t, res.Simulated)
	for _, dl := range e.deliveries.all() {
		assert.Equal(t, DeliverySimulated, dl.Status)
	}
}

type blockingMailer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingMailer) Send(ctx context.Context, _ Message) error {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	e := newEnv()
	e.staff = e.staff[:1]
	mailer := &blockingMailer{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := e.dispatcher(t, mailer, Options{Workers: 1, QueueSize: 1})

	require.True(t, d.NotifyNewReport(e.report.ID))
	<-mailer.started

	assert.True(t, d.NotifyNewReport(e.report.ID))
	assert.False(t, d.NotifyNewReport(e.report.ID))

	close(mailer.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, e.deliveries.all(), 2)
}

func TestClose_StopsIntake(t *testing.T) {
	e := newEnv()
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	d := e.dispatcher(t, mailer, Options{Workers: 2, QueueSize: 10})

	assert.True(t, d.NotifyStatusChanged(e.report.ID, reports.StatusClosed))
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.NotifyNewReport(e.report.ID))
	require.Len(t, e.deliveries.all(), 1)
	assert.Equal(t, "ivan@example.com", e.deliveries.all()[0].Recipient)
}

func TestClose_DeadlineCancelsSends(t *testing.T) {
	e := newEnv()
	e.staff = e.staff[:1]
	mailer := &blockingMailer{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := e.dispatcher(t, mailer, Options{Workers: 1, QueueSize: 1})

	require.True(t, d.NotifyNewReport(e.report.ID))
	<-mailer.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, multierr.Errors(err), 2)

	logged := e.deliveries.all()
	require.Len(t, logged, 1)
	assert.Equal(t, DeliveryFailed, logged[0].Status)
}
