package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/xavierca1/leadflow/internal/infra/queue"
)

//go:embed templates/*.html
var templatesFS embed.FS

var replyAlertTmpl = template.Must(template.ParseFS(templatesFS, "templates/reply_alert.html"))

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	cfg    Config
	dialer Dialer
	loc    *time.Location
	log    *zap.Logger
}

func NewEmailSender(cfg Config, loc *time.Location, log *zap.Logger) *EmailSender {
	return NewEmailSenderWithDialer(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), loc, log)
}

func NewEmailSenderWithDialer(cfg Config, d Dialer, loc *time.Location, log *zap.Logger) *EmailSender {
	if loc == nil {
		loc = time.UTC
	}
	return &EmailSender{cfg: cfg, dialer: d, loc: loc, log: log}
}

// NotifyReply emails the sales inbox that a lead answered.
func (s *EmailSender) NotifyReply(_ context.Context, event queue.LeadEvent) error {
	if s.cfg.AlertTo == "" {
		s.log.Debug("reply_alert_skipped", zap.String("reason", "no recipient configured"))
		return nil
	}

	msg, err := s.buildReplyAlert(event)
	if err != nil {
		return err
	}

	if err := s.dialer.DialAndSend(msg); err != nil {
		return eris.Wrap(err, "mail: send reply alert")
	}

	s.log.Info("reply_alert_sent", zap.String("external_id", event.ExternalID), zap.String("to", s.cfg.AlertTo))
	return nil
}

func (s *EmailSender) buildReplyAlert(event queue.LeadEvent) (*gomail.Message, error) {
	data := ReplyAlertData{
		Name:       event.Name,
		Phone:      event.Phone,
		ExternalID: event.ExternalID,
		Status:     event.Status,
		RepliedAt:  event.OccurredAt.In(s.loc).Format("2006-01-02 15:04"),
	}

	var body bytes.Buffer
	if err := replyAlertTmpl.Execute(&body, data); err != nil {
		return nil, eris.Wrap(err, "mail: render reply alert")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.AlertTo)
	m.SetHeader("Subject", fmt.Sprintf("Lead replied: %s", event.Name))
	m.SetBody("text/html", body.String())
	return m, nil
}
