package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrMailQueueFull = errors.New("mail queue full")

const (
	DefaultMailWorkers   = 2
	DefaultMailQueueSize = 64
	mailSendTimeout      = 30 * time.Second
)

// MailQueue hands mail to a fixed pool of workers so callers never wait on
// the SMTP server. Delivery is best effort, failures are only logged.
type MailQueue struct {
	mailer  Mailer
	jobs    chan *Mail
	workers int
	pending atomic.Int32

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewMailQueue(m Mailer, workers, size int) *MailQueue {
	if workers <= 0 {
		workers = DefaultMailWorkers
	}
	if size <= 0 {
		size = DefaultMailQueueSize
	}

	zap.L().Debug("Initializing mail queue", zap.Int("workers", workers), zap.Int("size", size))

	return &MailQueue{
		mailer:  m,
		jobs:    make(chan *Mail, size),
		workers: workers,
	}
}

func (q *MailQueue) StartWorkerPool() {
	for range q.workers {
		q.wg.Add(1)
		go q.worker()
	}
}

func (q *MailQueue) worker() {
	defer q.wg.Done()

	for m := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		err := q.mailer.Send(ctx, m)
		cancel()

		q.pending.Add(-1)

		if err != nil {
			mailTotal.WithLabelValues(string(m.Kind), "failed").Inc()
			zap.L().Error("Failed to send mail",
				zap.String("kind", string(m.Kind)),
				zap.String("to", m.To),
				zap.Error(err))
			continue
		}

		mailTotal.WithLabelValues(string(m.Kind), "sent").Inc()
		zap.L().Debug("Mail sent", zap.String("kind", string(m.Kind)))
	}
}

// Enqueue never blocks. A full or stopped queue drops the mail.
func (q *MailQueue) Enqueue(m *Mail) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return errors.New("mail queue stopped")
	}

	select {
	case q.jobs <- m:
		q.pending.Add(1)
		zap.L().Debug("Mail enqueued", zap.Int32("pending", q.pending.Load()), zap.String("kind", string(m.Kind)))
		return nil
	default:
		mailTotal.WithLabelValues(string(m.Kind), "dropped").Inc()
		return ErrMailQueueFull
	}
}

// Stop rejects new mail and waits for the workers to drain what is queued
func (q *MailQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}
