package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/Ultrahd-dev/helpdesk/internal/reports"
)

var statusLabels = map[reports.Status]string{
	reports.StatusOpen:       "Открыта",
	reports.StatusInProgress: "В работе",
	reports.StatusResolved:   "Решена",
	reports.StatusClosed:     "Закрыта",
}

var priorityLabels = map[reports.Priority]string{
	reports.PriorityLow:      "Низкий",
	reports.PriorityMedium:   "Средний",
	reports.PriorityHigh:     "Высокий",
	reports.PriorityCritical: "Критический",
}

func statusLabel(s reports.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func priorityLabel(p reports.Priority) string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return string(p)
}

func typeLabel(t reports.IncidentType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}

const layout = `{{define "layout"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #1f2937;">{{.Heading}}</h2>
<div style="background: #f9fafb; padding: 20px; border-radius: 8px; margin: 20px 0;">
<h3 style="margin: 0 0 10px 0; color: #374151;">{{.Report.Title}}</h3>
{{template "body" .}}
</div>
<p style="text-align: center;"><a href="{{.Link}}">Открыть заявку</a></p>
<p style="color: #6b7280; font-size: 12px; text-align: center;">Служба поддержки</p>
</div>{{end}}`

const newReportBody = `{{define "body"}}<p><strong>Приоритет:</strong> {{priority .Report.Priority}}</p>
<p><strong>Тип:</strong> {{incident .Report.Type}}</p>
<p><strong>Автор:</strong> {{.Report.ReportedBy.Name}}</p>
{{with .Report.Location}}<p><strong>Местоположение:</strong> {{.}}</p>{{end}}
{{with .Report.Equipment}}<p><strong>Оборудование:</strong> {{.}}</p>{{end}}
<p><strong>Описание:</strong></p>
<p>{{.Report.Description}}</p>{{end}}`

const assignedBody = `{{define "body"}}<p><strong>Номер:</strong> #{{short .Report.ID.String}}</p>
<p><strong>Приоритет:</strong> {{priority .Report.Priority}}</p>
<p><strong>Статус:</strong> {{status .Report.Status}}</p>
<p><strong>Автор:</strong> {{.Report.ReportedBy.Name}}</p>{{end}}`

const statusChangedBody = `{{define "body"}}<p><strong>Новый статус:</strong> <span style="color: #10b981; font-weight: bold;">{{status .Status}}</span></p>
{{with .Report.AssignedTo}}<p><strong>Техник:</strong> {{.Name}}</p>{{end}}{{end}}`

var funcs = template.FuncMap{
	"status":   statusLabel,
	"priority": priorityLabel,
	"incident": typeLabel,
	"short": func(id string) string {
		if len(id) > 8 {
			return id[len(id)-8:]
		}
		return id
	},
}

// Composer собирает письма по шаблонам
type Composer struct {
	baseURL   string
	templates map[EventKind]*template.Template
}

// NewComposer разбирает шаблоны; baseURL используется для ссылки на заявку
func NewComposer(baseURL string) *Composer {
	bodies := map[EventKind]string{
		EventNewReport:     newReportBody,
		EventAssigned:      assignedBody,
		EventStatusChanged: statusChangedBody,
	}
	c := &Composer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		templates: make(map[EventKind]*template.Template, len(bodies)),
	}
	for kind, body := range bodies {
		c.templates[kind] = template.Must(template.New(string(kind)).Funcs(funcs).Parse(layout + body))
	}
	return c
}

type view struct {
	Heading string
	Report  *reports.Details
	Status  reports.Status
	Link    string
}

// Compose возвращает тему и HTML письма для события
func (c *Composer) Compose(ev Event, report *reports.Details) (subject, html string, err error) {
	tmpl, ok := c.templates[ev.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification event %q", ev.Kind)
	}

	v := view{
		Report: report,
		Status: ev.Status,
		Link:   fmt.Sprintf("%s/reports/%s", c.baseURL, report.ID),
	}
	switch ev.Kind {
	case EventNewReport:
		v.Heading = "Новая заявка"
		subject = "Новая заявка: " + report.Title
	case EventAssigned:
		v.Heading = "Вам назначена заявка"
		subject = "Вам назначена заявка: " + report.Title
	case EventStatusChanged:
		v.Heading = "Статус заявки изменен"
		subject = fmt.Sprintf("Статус заявки изменен: %s - %s", report.Title, statusLabel(ev.Status))
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", v); err != nil {
		return "", "", fmt.Errorf("failed to render %s template: %w", ev.Kind, err)
	}
	return subject, buf.String(), nil
}
