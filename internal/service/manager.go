// Package service coordinates the download job lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ytdlserver/internal/adapters/localstorage"
	"ytdlserver/internal/core/domain"
	"ytdlserver/internal/core/ports"
	"ytdlserver/internal/worker"
)

// ErrEmptyURL is returned when a submission carries no URL.
var ErrEmptyURL = errors.New("missing url")

// errAlreadyTerminal guards against a second terminal transition when the
// panic handler races the normal finish path.
var errAlreadyTerminal = errors.New("job already terminal")

// Manager accepts download submissions, runs them through the worker pool,
// tracks state transitions in the store, and notifies webhooks on terminal
// states.
type Manager struct {
	store     ports.Store
	extractor ports.Extractor
	notifier  ports.Notifier
	pool      *worker.Pool
	artifacts *localstorage.Artifacts
	log       *logrus.Logger
}

// NewManager creates a Manager.
func NewManager(
	store ports.Store,
	extractor ports.Extractor,
	notifier ports.Notifier,
	pool *worker.Pool,
	artifacts *localstorage.Artifacts,
	log *logrus.Logger,
) *Manager {
	return &Manager{
		store:     store,
		extractor: extractor,
		notifier:  notifier,
		pool:      pool,
		artifacts: artifacts,
		log:       log,
	}
}

// Submit validates the request, stores a pending job, and schedules the
// download. It returns as soon as the job is queued; the download itself
// runs on the worker pool. The store write strictly precedes scheduling so
// a status query for the returned id always resolves.
func (m *Manager) Submit(ctx context.Context, rawURL, webhookURL string) (domain.Job, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return domain.Job{}, ErrEmptyURL
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	job := domain.Job{
		ID:         id,
		URL:        url,
		Filename:   id + ".mp4",
		Status:     domain.StatusPending,
		WebhookURL: webhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.store.Create(job); err != nil {
		return domain.Job{}, fmt.Errorf("failed to create job: %w", err)
	}

	if err := m.pool.Submit(func() { m.run(job.ID) }); err != nil {
		// The id was never handed to the caller, so the record can be
		// rolled back without anyone observing a vanishing job.
		if delErr := m.store.Delete(job.ID); delErr != nil {
			m.log.WithField("job_id", job.ID).WithError(delErr).Warn("failed to roll back rejected job")
		}
		return domain.Job{}, err
	}

	m.log.WithFields(logrus.Fields{"job_id": job.ID, "url": url}).Info("job submitted")
	return job, nil
}

// Status returns the current record for id.
func (m *Manager) Status(id string) (domain.Job, error) {
	return m.store.Get(id)
}

// run executes one download from first to terminal transition. It never
// returns an error: failures land on the job record, and a panic in the
// extraction path is recorded rather than allowed to kill the worker.
func (m *Manager) run(id string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("job_id", id).Errorf("download panicked: %v", r)
			m.finish(id, fmt.Errorf("download panicked: %v", r))
		}
	}()

	ctx := context.Background()

	job, err := m.store.Update(id, func(j *domain.Job) error {
		return j.Transition(domain.StatusDownloading, "")
	})
	if err != nil {
		m.log.WithField("job_id", id).WithError(err).Error("failed to start job")
		return
	}
	m.log.WithFields(logrus.Fields{"job_id": id, "url": job.URL}).Info("download started")

	outputPath, err := m.artifacts.PathFor(job.Filename)
	if err == nil {
		err = m.extractor.Download(ctx, job.URL, outputPath)
	}
	m.finish(id, err)
}

// finish applies the terminal transition for id and fires the webhook, if
// any. dlErr nil means success.
func (m *Manager) finish(id string, dlErr error) {
	mutate := func(j *domain.Job) error {
		if j.Status.Terminal() {
			return errAlreadyTerminal
		}
		if dlErr != nil {
			return j.Transition(domain.StatusFailed, dlErr.Error())
		}
		return j.Transition(domain.StatusCompleted, "")
	}

	job, err := m.store.Update(id, mutate)
	if errors.Is(err, errAlreadyTerminal) {
		return
	}
	if err != nil {
		m.log.WithField("job_id", id).WithError(err).Error("failed to finish job")
		return
	}

	if job.Status == domain.StatusCompleted {
		m.log.WithFields(logrus.Fields{"job_id": id, "filename": job.Filename}).Info("download completed")
	} else {
		m.log.WithFields(logrus.Fields{"job_id": id, "error": job.Error}).Warn("download failed")
	}

	if job.WebhookURL == "" {
		return
	}
	d := m.notifier.Notify(context.Background(), job.WebhookURL, PayloadFor(job))
	if d.OK() {
		m.log.WithFields(logrus.Fields{"job_id": id, "webhook": d.URL, "status_code": d.StatusCode}).Info("webhook delivered")
	} else {
		// Best effort only: a dead webhook never touches job state.
		m.log.WithFields(logrus.Fields{"job_id": id, "webhook": d.URL, "status_code": d.StatusCode}).
			WithError(d.Err).Warn("webhook delivery failed")
	}
}

// PayloadFor builds the webhook payload for a terminal job. The retrieval
// URL is only present for completed jobs, the error text only for failed
// ones.
func PayloadFor(job domain.Job) ports.NotifyPayload {
	p := ports.NotifyPayload{
		JobID:    job.ID,
		Status:   job.Status.String(),
		Filename: job.Filename,
	}
	switch job.Status {
	case domain.StatusCompleted:
		p.DownloadURL = DownloadURL(job.Filename)
	case domain.StatusFailed:
		p.Error = job.Error
	}
	return p
}

// DownloadURL returns the retrieval path for a completed artifact.
func DownloadURL(filename string) string {
	return "/downloads/" + filename
}
