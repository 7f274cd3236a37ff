package prekey

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nexuswave/wacore/internal/wlog"
)

// Priority orders pending audits; a higher-priority audit never waits
// behind a lower one queued earlier, per §4.E's priority queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

const (
	// MinimumCount is the server pre-key count below which a refill is due.
	MinimumCount = 5
	// CriticalCount is the server pre-key count at or below which a full
	// batch regeneration is warranted rather than a partial top-up.
	CriticalCount = 3
	// BatchSize is how many pre-keys a critical regeneration uploads.
	BatchSize = 95
	// MaxUploadRetries bounds the total number of upload attempts Audit makes
	// before it gives up and returns the last error.
	MaxUploadRetries = 3

	// MinCheckInterval is the minimum time between server pre-key count
	// queries; a pending Critical priority overrides this throttle.
	MinCheckInterval = 5 * time.Minute
	// ScheduledInterval is the cadence at which a caller should drive a
	// low-priority Audit as a periodic sweep.
	ScheduledInterval = 30 * time.Minute
	// MinUploadInterval is the minimum time between uploads; a pending
	// Critical priority overrides this throttle too.
	MinUploadInterval = 5 * time.Second
	// UploadTimeout bounds each individual upload attempt.
	UploadTimeout = 30 * time.Second

	initialBackoff = 200 * time.Millisecond
)

var ErrUploadFailed = errors.New("prekey: upload failed after retries")

// ServerCounter reports how many pre-keys the server currently holds for
// this identity.
type ServerCounter func(ctx context.Context) (int, error)

// Uploader ships freshly generated pre-keys to the server and blocks until
// the upload IQ is acknowledged.
type Uploader func(ctx context.Context, batch []Bundle) error

// CredsUpdated fires after a successful upload, carrying the new
// next-pre-key-id cursor — the creds.update event §4.E requires.
type CredsUpdated func(nextPreKeyID uint32)

// Manager runs the pre-key threshold/priority algorithm. All exported
// methods hold the same mutex for their full duration, so retries within
// one audit and concurrent audit requests share the "at most one upload
// in flight" guard the spec requires.
type Manager struct {
	mu sync.Mutex

	nextPreKeyID uint32
	priority     Priority
	lastCheck    time.Time
	lastUpload   time.Time

	queryCount    ServerCounter
	upload        Uploader
	onCredsUpdate CredsUpdated
	log           *wlog.Logger
}

// NewManager constructs a Manager starting from nextPreKeyID, the next
// unused pre-key id (typically signalstore's persisted cursor).
func NewManager(nextPreKeyID uint32, queryCount ServerCounter, upload Uploader, onCredsUpdate CredsUpdated) *Manager {
	return &Manager{
		nextPreKeyID:  nextPreKeyID,
		priority:      PriorityNormal,
		queryCount:    queryCount,
		upload:        upload,
		onCredsUpdate: onCredsUpdate,
		log:           wlog.New("prekey", "Manager"),
	}
}

// RequestAudit raises the pending priority without running an audit
// immediately, for callers (e.g. the ratchet's corruption-handling path)
// that discover a likely pre-key desync but aren't driving the event loop
// themselves. The next call to Audit picks it up.
func (m *Manager) RequestAudit(priority Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if priority > m.priority {
		m.priority = priority
	}
}

// Audit queries the server's pre-key count and uploads a top-up batch
// sized by the threshold/priority algorithm: count ≤ critical uploads a
// full batch and raises priority to critical; count < minimum uploads
// max(20, minimum−count+5); a pending critical priority with a healthy
// count uploads 20; otherwise Audit is a no-op.
func (m *Manager) Audit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.priority != PriorityCritical && !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < MinCheckInterval {
		m.log.WithField("since_last_check", now.Sub(m.lastCheck)).Debug("pre-key audit: check throttled")
		return nil
	}
	m.lastCheck = now

	count, err := m.queryCount(ctx)
	if err != nil {
		return err
	}

	size, becomesCritical := decideUploadSize(count, m.priority)
	if size == 0 {
		m.log.WithField("server_count", count).Debug("pre-key audit: no upload needed")
		return nil
	}
	if becomesCritical {
		m.priority = PriorityCritical
	}

	if m.priority != PriorityCritical && !m.lastUpload.IsZero() && now.Sub(m.lastUpload) < MinUploadInterval {
		m.log.WithField("since_last_upload", now.Sub(m.lastUpload)).Debug("pre-key audit: upload throttled")
		return nil
	}

	batch, err := m.generateBatchLocked(size)
	if err != nil {
		return err
	}
	if err := m.uploadWithRetry(ctx, batch); err != nil {
		return err
	}

	m.nextPreKeyID += uint32(size)
	m.priority = PriorityNormal
	m.lastUpload = time.Now()
	m.log.WithField("uploaded", size).WithField("next_pre_key_id", m.nextPreKeyID).Info("pre-key audit: uploaded batch")

	if m.onCredsUpdate != nil {
		m.onCredsUpdate(m.nextPreKeyID)
	}
	return nil
}

// ForceFullRegeneration uploads a full BatchSize batch unconditionally,
// bypassing the server-count query. Callers use this for the startup
// integrity check: a missing pre-key at next_pre_key_id−1 must regenerate
// before login proceeds, regardless of what the server currently reports.
func (m *Manager) ForceFullRegeneration(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, err := m.generateBatchLocked(BatchSize)
	if err != nil {
		return err
	}
	if err := m.uploadWithRetry(ctx, batch); err != nil {
		return err
	}

	m.nextPreKeyID += uint32(BatchSize)
	m.priority = PriorityNormal
	m.lastUpload = time.Now()
	if m.onCredsUpdate != nil {
		m.onCredsUpdate(m.nextPreKeyID)
	}
	return nil
}

// NextPreKeyID returns the current cursor, for store persistence.
func (m *Manager) NextPreKeyID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextPreKeyID
}

func (m *Manager) uploadWithRetry(ctx context.Context, batch []Bundle) error {
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < MaxUploadRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		uploadCtx, cancel := context.WithTimeout(ctx, UploadTimeout)
		lastErr = m.upload(uploadCtx, batch)
		cancel()
		if lastErr == nil {
			return nil
		}
		m.log.WithError(lastErr).WithField("attempt", attempt+1).Warn("pre-key upload failed, retrying")
		if attempt < MaxUploadRetries-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return errors.Join(ErrUploadFailed, lastErr)
}

func decideUploadSize(serverCount int, priority Priority) (size int, becomesCritical bool) {
	switch {
	case serverCount <= CriticalCount:
		return BatchSize, true
	case serverCount < MinimumCount:
		want := MinimumCount - serverCount + 5
		if want < 20 {
			want = 20
		}
		return want, false
	case priority == PriorityCritical:
		return 20, false
	default:
		return 0, false
	}
}
