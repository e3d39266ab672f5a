package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/Ultrahd-dev/helpdesk/internal/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Mailer доставляет одно письмо
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// simulator помечает почтальонов, которые ничего не отправляют
type simulator interface {
	Simulated() bool
}

func isSimulated(m Mailer) bool {
	s, ok := m.(simulator)
	return ok && s.Simulated()
}

// NewMailer выбирает SMTP, если задан хост, иначе письма только логируются
func NewMailer(cfg config.MailConfig, log *logrus.Entry) (Mailer, error) {
	if cfg.Host == "" {
		log.Warn("SMTP не настроен, отправка писем симулируется")
		return NewLogMailer(log), nil
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer отправляет письма через SMTP сервер
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     *mail.Address
}

// NewSMTPMailer проверяет адрес отправителя и создает почтальона
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid mail.from %q: %w", cfg.From, err)
	}
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
	}, nil
}

// Send открывает отдельное соединение на каждое письмо
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	body, err := buildMessage(m.from, msg, time.Now())
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(m.host, strconv.Itoa(m.port)))
	if err != nil {
		return fmt.Errorf("SMTP dial error: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake error: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("SMTP STARTTLS error: %w", err)
		}
	}
	if m.username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return fmt.Errorf("SMTP auth error: %w", err)
		}
	}

	if err := c.Mail(m.from.Address); err != nil {
		return fmt.Errorf("SMTP send error: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("SMTP send error: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("SMTP send error: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("SMTP send error: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP send error: %w", err)
	}
	return c.Quit()
}

// buildMessage собирает multipart/alternative письмо с текстовой и HTML частью
func buildMessage(from *mail.Address, msg Message, date time.Time) ([]byte, error) {
	text := msg.Text
	if text == "" {
		var err error
		if text, err = htmlToText(msg.HTML); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := []string{
		"From: " + from.String(),
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + date.Format(time.RFC1123Z),
		"Message-ID: <" + uuid.NewString() + "@" + domainOf(from.Address) + ">",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=" + mw.Boundary(),
	}
	buf.WriteString(strings.Join(header, "\r\n") + "\r\n\r\n")

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mail part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("failed to encode mail part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode mail part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish mail body: %w", err)
	}
	return buf.Bytes(), nil
}

func domainOf(address string) string {
	if _, domain, ok := strings.Cut(address, "@"); ok {
		return domain
	}
	return "localhost"
}

// htmlToText оставляет по строке на заголовок и абзац, ссылки выводит адресом
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse mail html: %w", err)
	}

	var lines []string
	doc.Find("h2, h3, p").Each(func(_ int, s *goquery.Selection) {
		if a := s.Find("a[href]"); a.Length() > 0 {
			href, _ := a.Attr("href")
			lines = append(lines, strings.TrimSpace(a.Text())+": "+href)
			return
		}
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	return strings.Join(lines, "\n"), nil
}

// LogMailer пишет письма в лог вместо отправки
type LogMailer struct {
	log *logrus.Entry
}

// NewLogMailer создает почтовик, который только пишет письма в лог
func NewLogMailer(log *logrus.Entry) *LogMailer {
	return &LogMailer{log: log}
}

// Send записывает письмо в лог вместо отправки
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Симуляция отправки письма")
	return nil
}

// Simulated доставка помечается как simulated
func (m *LogMailer) Simulated() bool { return true }
