package notifications

import (
	"testing"

	"github.com/Ultrahd-dev/helpdesk/internal/reports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	location := "Каб. 204"
	report := &reports.Details{
		Report: reports.Report{
			ID:          uuid.MustParse("9b2e4c1a-0d5f-4e7b-8a3c-1f2e3d4c5b6a"),
			Title:       "<b>Сервер</b> недоступен",
			Description: "Не открывается 1С",
			Type:        reports.TypeNetworkIssue,
			Priority:    reports.PriorityCritical,
			Status:      reports.StatusInProgress,
			Location:    &location,
		},
		ReportedBy: reports.Person{Name: "Иван"},
		AssignedTo: &reports.Person{Name: "Петр"},
	}
	c := NewComposer("http://localhost:3000")

	tests := []struct {
		name     string
		event    Event
		subject  string
		contains []string
	}{
		{
			name:     "new report",
			event:    Event{Kind: EventNewReport},
			subject:  "Новая заявка: <b>Сервер</b> недоступен",
			contains: []string{"Критический", "NETWORK ISSUE", "Каб. 204", "Не открывается 1С"},
		},
		{
			name:     "assigned",
			event:    Event{Kind: EventAssigned},
			subject:  "Вам назначена заявка: <b>Сервер</b> недоступен",
			contains: []string{"#3d4c5b6a", "В работе", "Иван"},
		},
		{
			name:     "status changed",
			event:    Event{Kind: EventStatusChanged, Status: reports.StatusClosed},
			subject:  "Статус заявки изменен: <b>Сервер</b> недоступен - Закрыта",
			contains: []string{"Закрыта", "Петр"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, html, err := c.Compose(tt.event, report)
			require.NoError(t, err)
			assert.Equal(t, tt.subject, subject)
			for _, s := range tt.contains {
				assert.Contains(t, html, s)
			}
			assert.Contains(t, html, `href="http://localhost:3000/reports/9b2e4c1a-0d5f-4e7b-8a3c-1f2e3d4c5b6a"`)
			assert.Contains(t, html, "&lt;b&gt;Сервер&lt;/b&gt;")
			assert.NotContains(t, html, "<b>Сервер</b>")
		})
	}

	_, _, err := c.Compose(Event{Kind: "digest"}, report)
	assert.Error(t, err)
}
