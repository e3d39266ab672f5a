package notifications

import (
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/google/uuid"
)

// EventKind тип события заявки, о котором отправляется письмо
type EventKind string

const (
	EventNewReport     EventKind = "new_report"
	EventAssigned      EventKind = "assigned"
	EventStatusChanged EventKind = "status_changed"
)

// Valid известный тип события
func (k EventKind) Valid() bool {
	switch k {
	case EventNewReport, EventAssigned, EventStatusChanged:
		return true
	}
	return false
}

// Event событие в очереди рассылки
type Event struct {
	Kind     EventKind
	ReportID uuid.UUID
	Status   reports.Status // только для status_changed
}

// Message готовое к отправке письмо
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// DeliveryStatus результат попытки отправки
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySimulated DeliveryStatus = "simulated"
)

// Delivery запись журнала отправленных писем
type Delivery struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	Event     EventKind      `db:"event" json:"event"`
	ReportID  uuid.UUID      `db:"report_id" json:"reportId"`
	Recipient string         `db:"recipient" json:"recipient"`
	Subject   string         `db:"subject" json:"subject"`
	Status    DeliveryStatus `db:"status" json:"status"`
	Error     *string        `db:"error" json:"error,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// Result итог обработки одного события
type Result struct {
	Event      EventKind `json:"event"`
	ReportID   uuid.UUID `json:"reportId"`
	Recipients []string  `json:"recipients"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Simulated  bool      `json:"simulated"`
}
