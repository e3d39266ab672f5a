package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/Ultrahd-dev/helpdesk/internal/metrics"
	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/Ultrahd-dev/helpdesk/internal/users"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
)

// ReportSource загружает заявку вместе с автором и исполнителем
type ReportSource interface {
	GetDetails(ctx context.Context, id uuid.UUID) (*reports.Details, error)
}

// StaffDirectory список техников и администраторов
type StaffDirectory interface {
	ListStaff(ctx context.Context) ([]users.User, error)
}

// DeliveryLog журнал попыток отправки
type DeliveryLog interface {
	CreateDelivery(ctx context.Context, d *Delivery) error
}

// Options параметры очереди
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	BaseURL     string
}

// Dispatcher принимает события заявок в ограниченную очередь и рассылает
// письма фоновыми обработчиками. Доставка не более одного раза, без повторов.
type Dispatcher struct {
	reports     ReportSource
	staff       StaffDirectory
	deliveries  DeliveryLog
	mailer      Mailer
	composer    *Composer
	metrics     *metrics.Metrics
	log         *logrus.Entry
	sendTimeout time.Duration

	queue  chan Event
	mu     sync.RWMutex
	closed bool
	wg     conc.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

var _ reports.Notifier = (*Dispatcher)(nil)

// NewDispatcher создает диспетчер и запускает обработчики очереди
func NewDispatcher(
	source ReportSource,
	staff StaffDirectory,
	deliveries DeliveryLog,
	mailer Mailer,
	m *metrics.Metrics,
	log *logrus.Entry,
	opts Options,
) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		reports:     source,
		staff:       staff,
		deliveries:  deliveries,
		mailer:      mailer,
		composer:    NewComposer(opts.BaseURL),
		metrics:     m,
		log:         log,
		sendTimeout: opts.SendTimeout,
		queue:       make(chan Event, opts.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Go(d.work)
	}
	return d
}

// NotifyNewReport ставит в очередь письмо персоналу о новой заявке
func (d *Dispatcher) NotifyNewReport(reportID uuid.UUID) bool {
	return d.Enqueue(Event{Kind: EventNewReport, ReportID: reportID})
}

// NotifyReportAssigned ставит в очередь письмо назначенному исполнителю
func (d *Dispatcher) NotifyReportAssigned(reportID uuid.UUID) bool {
	return d.Enqueue(Event{Kind: EventAssigned, ReportID: reportID})
}

// NotifyStatusChanged ставит в очередь письмо автору заявки о новом статусе
func (d *Dispatcher) NotifyStatusChanged(reportID uuid.UUID, status reports.Status) bool {
	return d.Enqueue(Event{Kind: EventStatusChanged, ReportID: reportID, Status: status})
}

// Enqueue не блокируется: при заполненной или закрытой очереди событие отбрасывается
func (d *Dispatcher) Enqueue(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ev, "очередь уведомлений закрыта")
		return false
	}

	select {
	case d.queue <- ev:
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		d.drop(ev, "очередь уведомлений переполнена")
		return false
	}
}

func (d *Dispatcher) drop(ev Event, reason string) {
	d.metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), "dropped").Inc()
	d.log.WithFields(logrus.Fields{
		"event":     ev.Kind,
		"report_id": ev.ReportID,
	}).Warn(reason)
}

func (d *Dispatcher) work() {
	for ev := range d.queue {
		d.metrics.QueueDepth.Set(float64(len(d.queue)))

		res, err := d.Dispatch(d.ctx, ev)
		entry := d.log.WithFields(logrus.Fields{
			"event":     ev.Kind,
			"report_id": ev.ReportID,
		})
		if err != nil {
			entry.WithError(err).Error("Ошибка отправки уведомления")
			continue
		}
		entry.WithField("recipients", len(res.Recipients)).Debug("Уведомление обработано")
	}
}

// Dispatch синхронно рассылает письма по событию. Ошибки по отдельным
// получателям объединяются, Result при этом заполнен.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (*Result, error) {
	if !ev.Kind.Valid() {
		return nil, apperr.Validation("Тип уведомления не поддерживается", map[string]string{"type": string(ev.Kind)})
	}
	if ev.Kind == EventStatusChanged && !ev.Status.Valid() {
		return nil, apperr.Validation("Для уведомления о смене статуса нужен статус", map[string]string{"status": string(ev.Status)})
	}

	report, err := d.reports.GetDetails(ctx, ev.ReportID)
	if err != nil {
		return nil, err
	}

	recipients, err := d.recipients(ctx, ev, report)
	if err != nil {
		return nil, err
	}

	subject, html, err := d.composer.Compose(ev, report)
	if err != nil {
		return nil, apperr.Internal("Ошибка формирования письма", err)
	}

	res := &Result{
		Event:      ev.Kind,
		ReportID:   ev.ReportID,
		Recipients: recipients,
		Simulated:  isSimulated(d.mailer),
	}

	var errs error
	for _, to := range recipients {
		status, sendErr := d.send(ctx, Message{To: to, Subject: subject, HTML: html})

		delivery := &Delivery{
			ID:        uuid.New(),
			Event:     ev.Kind,
			ReportID:  ev.ReportID,
			Recipient: to,
			Subject:   subject,
			Status:    status,
		}
		if sendErr != nil {
			msg := sendErr.Error()
			delivery.Error = &msg
			res.Failed++
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", to, sendErr))
		} else {
			res.Sent++
		}
		d.metrics.NotificationsTotal.WithLabelValues(string(ev.Kind), string(status)).Inc()

		// журнал пишем и после отмены ctx, иначе при остановке теряются записи
		if err := d.deliveries.CreateDelivery(context.WithoutCancel(ctx), delivery); err != nil {
			d.log.WithError(err).WithField("recipient", to).Warn("Не удалось записать отправку в журнал")
		}
	}

	return res, errs
}

func (d *Dispatcher) send(ctx context.Context, msg Message) (DeliveryStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.mailer.Send(ctx, msg); err != nil {
		return DeliveryFailed, err
	}
	if isSimulated(d.mailer) {
		return DeliverySimulated, nil
	}
	return DeliverySent, nil
}

func (d *Dispatcher) recipients(ctx context.Context, ev Event, report *reports.Details) ([]string, error) {
	switch ev.Kind {
	case EventNewReport:
		staff, err := d.staff.ListStaff(ctx)
		if err != nil {
			return nil, err
		}
		emails := make([]string, 0, len(staff))
		for _, u := range staff {
			emails = append(emails, u.Email)
		}
		return emails, nil
	case EventAssigned:
		if report.AssignedTo == nil {
			return nil, apperr.Validation("Заявка не назначена", map[string]string{"reportId": "у заявки нет исполнителя"})
		}
		return []string{report.AssignedTo.Email}, nil
	default:
		return []string{report.ReportedBy.Email}, nil
	}
}

// Close прекращает прием событий и ждет обработки очереди до дедлайна ctx.
// По истечении дедлайна текущие отправки отменяются.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return multierr.Combine(errors.New("notification queue was not drained"), ctx.Err())
	}
}
