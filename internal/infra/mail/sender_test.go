package mail

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/xavierca1/leadflow/internal/infra/queue"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func replyEvent() queue.LeadEvent {
	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	return queue.NewLeadEvent(queue.EventLeadReplied, "lead-1", "123", "+972501111111", "Dana <b>", "לקוח הגיב", at)
}

func TestNotifyReply(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)

	d := &fakeDialer{}
	s := NewEmailSenderWithDialer(Config{From: "bot@example.com", AlertTo: "sales@example.com"}, d, loc, zap.NewNop())

	require.NoError(t, s.NotifyReply(t.Context(), replyEvent()))
	require.Len(t, d.sent, 1)

	msg := d.sent[0]
	assert.Equal(t, []string{"sales@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Lead replied: Dana <b>"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "+972501111111")
	assert.Contains(t, raw, "2026-03-01 10:30")
	assert.Contains(t, raw, "Dana &lt;b&gt;")
}

func TestNotifyReply_NoRecipient(t *testing.T) {
	d := &fakeDialer{}
	s := NewEmailSenderWithDialer(Config{From: "bot@example.com"}, d, nil, zap.NewNop())

	require.NoError(t, s.NotifyReply(t.Context(), replyEvent()))
	assert.Empty(t, d.sent)
}

func TestNotifyReply_DialError(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	s := NewEmailSenderWithDialer(Config{From: "bot@example.com", AlertTo: "sales@example.com"}, d, nil, zap.NewNop())

	assert.ErrorContains(t, s.NotifyReply(t.Context(), replyEvent()), "connection refused")
}
