package ports

import (
	"context"
	"errors"
	"time"

	"ytdlserver/internal/core/domain"
)

var (
	// ErrNotFound is returned when a job id does not resolve.
	ErrNotFound = errors.New("job not found")

	// ErrExists is returned when a job id is already present in the store.
	ErrExists = errors.New("job already exists")
)

// Store persists job records and is the single source of truth for status
// queries. Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new job record. The record must be visible to Get
	// before Create returns.
	Create(job domain.Job) error

	// Get returns a copy of the job record for id.
	Get(id string) (domain.Job, error)

	// Update applies mutate to a copy of the record under the store's write
	// lock and swaps the result in atomically. Readers never observe a
	// partially applied update. The updated record is returned.
	Update(id string, mutate func(*domain.Job) error) (domain.Job, error)

	// Delete removes the record for id. Used to roll back a submission the
	// scheduler rejected and by TTL eviction.
	Delete(id string) error
}

// Extractor runs the external media extraction tool.
type Extractor interface {
	// Download fetches the media at url and writes it to exactly outputPath.
	Download(ctx context.Context, url, outputPath string) error

	// Version reports the tool's version string.
	Version(ctx context.Context) (string, error)

	// Update upgrades the tool to its latest release.
	Update(ctx context.Context) error
}

// NotifyPayload is the body posted to a webhook URL when a job reaches a
// terminal state.
type NotifyPayload struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Delivery records the outcome of one webhook attempt. Failures are carried
// here rather than as returned errors so the caller can log and move on.
type Delivery struct {
	URL        string
	StatusCode int
	Elapsed    time.Duration
	Err        error
}

// OK reports whether the callback was accepted with a 2xx response.
func (d Delivery) OK() bool {
	return d.Err == nil && d.StatusCode >= 200 && d.StatusCode < 300
}

// Notifier delivers a best-effort callback to a caller-supplied endpoint.
type Notifier interface {
	Notify(ctx context.Context, url string, payload NotifyPayload) Delivery
}
