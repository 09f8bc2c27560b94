package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, mail *Mail) error {
	args := m.Called(ctx, mail)
	return args.Error(0)
}

func TestMailLink(t *testing.T) {
	v := &Mail{Kind: MailVerification, To: "a@x.com", Token: "abc"}
	assert.Equal(t, "http://localhost:3000/verify-email?token=abc", v.Link("http://localhost:3000/"))

	r := &Mail{Kind: MailPasswordReset, To: "a@x.com", Token: "a+b"}
	assert.Equal(t, "https://hh.org/reset-password?token=a%2Bb", r.Link("https://hh.org"))

	w := &Mail{Kind: MailWelcome, To: "a@x.com"}
	assert.Empty(t, w.Link("https://hh.org"))
}

func TestRender(t *testing.T) {
	subject, body, err := render(&Mail{Kind: MailVerification, Token: "tok"}, "https://hh.org")
	require.NoError(t, err)
	assert.Contains(t, subject, "Verify")
	assert.Contains(t, body, "https://hh.org/verify-email?token=tok")

	subject, _, err = render(&Mail{Kind: MailWelcome}, "https://hh.org")
	require.NoError(t, err)
	assert.Contains(t, subject, "Welcome")

	_, _, err = render(&Mail{Kind: "spam"}, "https://hh.org")
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	l := &LogMailer{FrontendURL: "http://localhost:3000"}

	assert.NoError(t, l.Send(context.Background(), &Mail{Kind: MailPasswordReset, To: "a@x.com", Token: "t"}))
	assert.Error(t, l.Send(context.Background(), &Mail{Kind: "unknown"}))
}

func TestNewSMTPMailer(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{}, "")
	assert.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587}, "")
	assert.Error(t, err, "sender is required")

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@hh.org"}, "")
	require.NoError(t, err)

	err = m.Send(context.Background(), &Mail{Kind: MailWelcome, To: "NoReply@hh.org"})
	assert.Error(t, err, "never mails itself")
}

func TestMailQueueDelivers(t *testing.T) {
	m := &mockMailer{}

	var wg sync.WaitGroup
	wg.Add(2)

	m.On("Send", mock.Anything, mock.MatchedBy(func(mail *Mail) bool { return mail.Kind == MailVerification })).
		Run(func(mock.Arguments) { wg.Done() }).
		Return(nil)
	m.On("Send", mock.Anything, mock.MatchedBy(func(mail *Mail) bool { return mail.Kind == MailWelcome })).
		Run(func(mock.Arguments) { wg.Done() }).
		Return(errors.New("smtp down"))

	q := NewMailQueue(m, 1, 4)
	q.StartWorkerPool()

	require.NoError(t, q.Enqueue(&Mail{Kind: MailVerification, To: "a@x.com", Token: "t"}))
	require.NoError(t, q.Enqueue(&Mail{Kind: MailWelcome, To: "a@x.com"}))

	wg.Wait()
	q.Stop()

	m.AssertNumberOfCalls(t, "Send", 2)
	assert.Error(t, q.Enqueue(&Mail{Kind: MailWelcome, To: "a@x.com"}), "stopped queues reject mail")
}

func TestMailQueueFull(t *testing.T) {
	q := NewMailQueue(&mockMailer{}, 1, 1)

	// No workers, the buffer fills after one mail
	require.NoError(t, q.Enqueue(&Mail{Kind: MailWelcome, To: "a@x.com"}))
	assert.ErrorIs(t, q.Enqueue(&Mail{Kind: MailWelcome, To: "b@x.com"}), ErrMailQueueFull)
}
