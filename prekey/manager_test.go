package prekey

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingUploader(t *testing.T, calls *int32) Uploader {
	t.Helper()
	return func(ctx context.Context, batch []Bundle) error {
		atomic.AddInt32(calls, 1)
		return nil
	}
}

func TestDecideUploadSize(t *testing.T) {
	size, critical := decideUploadSize(2, PriorityNormal)
	assert.Equal(t, BatchSize, size)
	assert.True(t, critical)

	size, critical = decideUploadSize(3, PriorityNormal)
	assert.Equal(t, BatchSize, size)
	assert.True(t, critical)

	size, critical = decideUploadSize(4, PriorityNormal)
	assert.Equal(t, 20, size)
	assert.False(t, critical)

	size, critical = decideUploadSize(0, PriorityNormal)
	assert.Equal(t, BatchSize, size)
	assert.True(t, critical)

	size, critical = decideUploadSize(10, PriorityCritical)
	assert.Equal(t, 20, size)
	assert.False(t, critical)

	size, critical = decideUploadSize(10, PriorityNormal)
	assert.Equal(t, 0, size)
	assert.False(t, critical)
}

func TestAuditUploadsFullBatchWhenCritical(t *testing.T) {
	var calls int32
	var uploadedBatch []Bundle
	m := NewManager(100,
		func(ctx context.Context) (int, error) { return 2, nil },
		func(ctx context.Context, batch []Bundle) error {
			atomic.AddInt32(&calls, 1)
			uploadedBatch = batch
			return nil
		},
		nil,
	)

	err := m.Audit(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)
	assert.Len(t, uploadedBatch, BatchSize)
	assert.EqualValues(t, 100+BatchSize, m.NextPreKeyID())
	assert.EqualValues(t, uploadedBatch[0].ID, 100)
}

func TestAuditNoOpWhenHealthy(t *testing.T) {
	var calls int32
	m := NewManager(0,
		func(ctx context.Context) (int, error) { return 50, nil },
		countingUploader(t, &calls),
		nil,
	)

	err := m.Audit(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, calls)
	assert.EqualValues(t, 0, m.NextPreKeyID())
}

func TestRequestAuditRaisesPriorityForNextAudit(t *testing.T) {
	var calls int32
	var uploadedBatch []Bundle
	m := NewManager(0,
		func(ctx context.Context) (int, error) { return 50, nil },
		func(ctx context.Context, batch []Bundle) error {
			atomic.AddInt32(&calls, 1)
			uploadedBatch = batch
			return nil
		},
		nil,
	)

	m.RequestAudit(PriorityCritical)
	err := m.Audit(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)
	assert.Len(t, uploadedBatch, 20)
}

func TestAuditRetriesOnUploadFailureThenSucceeds(t *testing.T) {
	var calls int32
	m := NewManager(0,
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context, batch []Bundle) error {
			n := atomic.AddInt32(&calls, 1)
			if n < 2 {
				return errors.New("transient upload failure")
			}
			return nil
		},
		nil,
	)

	err := m.Audit(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestAuditGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	m := NewManager(0,
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context, batch []Bundle) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("permanent failure")
		},
		nil,
	)

	err := m.Audit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.EqualValues(t, MaxUploadRetries, calls)
}

func TestAuditEmitsCredsUpdate(t *testing.T) {
	var gotNextID uint32
	m := NewManager(100,
		func(ctx context.Context) (int, error) { return 2, nil },
		func(ctx context.Context, batch []Bundle) error { return nil },
		func(nextPreKeyID uint32) { gotNextID = nextPreKeyID },
	)

	err := m.Audit(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 100+BatchSize, gotNextID)
}

func TestAuditThrottlesRepeatedChecks(t *testing.T) {
	var queries int32
	m := NewManager(0,
		func(ctx context.Context) (int, error) { atomic.AddInt32(&queries, 1); return 2, nil },
		func(ctx context.Context, batch []Bundle) error { return nil },
		nil,
	)

	require.NoError(t, m.Audit(context.Background()))
	assert.EqualValues(t, 1, queries)

	// Second call immediately after: priority dropped back to Normal, so
	// the 5-minute check throttle applies and the server is not re-queried.
	require.NoError(t, m.Audit(context.Background()))
	assert.EqualValues(t, 1, queries)
}

func TestAuditCriticalPriorityBypassesCheckThrottle(t *testing.T) {
	var queries int32
	m := NewManager(0,
		func(ctx context.Context) (int, error) { atomic.AddInt32(&queries, 1); return 50, nil },
		func(ctx context.Context, batch []Bundle) error { return nil },
		nil,
	)

	require.NoError(t, m.Audit(context.Background()))
	assert.EqualValues(t, 1, queries)

	m.RequestAudit(PriorityCritical)
	require.NoError(t, m.Audit(context.Background()))
	assert.EqualValues(t, 2, queries)
}

func TestForceFullRegenerationIgnoresServerCount(t *testing.T) {
	var queried bool
	var calls int32
	m := NewManager(0,
		func(ctx context.Context) (int, error) { queried = true; return 500, nil },
		countingUploader(t, &calls),
		nil,
	)

	err := m.ForceFullRegeneration(context.Background())
	require.NoError(t, err)
	assert.False(t, queried)
	assert.EqualValues(t, 1, calls)
	assert.EqualValues(t, BatchSize, m.NextPreKeyID())
}
