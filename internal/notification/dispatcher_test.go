package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/repository/memory"
)

type fakeDeliverer struct {
	mu       sync.Mutex
	failures int
	calls    []domain.DispatchRecord
}

func (f *fakeDeliverer) Deliver(_ context.Context, rec domain.DispatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec)
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errors.New("mail provider unavailable")
	}
	return nil
}

func (f *fakeDeliverer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() Config {
	return Config{Workers: 2, QueueSize: 8, MaxRetries: 2, BaseBackoff: time.Millisecond}
}

func TestDispatcher_DeliversPublishedEvent(t *testing.T) {
	store := memory.NewStore()
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(deliverer, store, testConfig(), nil)
	d.Start(context.Background())
	defer d.Stop()

	err := d.Publish(context.Background(), domain.DispatchKindPurchaseCompleted, uuid.New(), map[string]int64{"lead_id": 5})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return deliverer.callCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"lead_id":5}`, string(deliverer.calls[0].Payload))
}

func TestDispatcher_ParksAfterRetries(t *testing.T) {
	store := memory.NewStore()
	deliverer := &fakeDeliverer{failures: -1}
	d := NewDispatcher(deliverer, store, testConfig(), nil)
	d.Start(context.Background())
	defer d.Stop()

	id := uuid.New()
	require.NoError(t, d.Publish(context.Background(), domain.DispatchKindDepositReceived, id, struct{}{}))

	assert.Eventually(t, func() bool {
		pending, err := store.ListPending(context.Background(), 10)
		return err == nil && len(pending) == 1
	}, time.Second, 5*time.Millisecond)

	pending, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, id, pending[0].EventID)
	assert.Equal(t, 3, pending[0].Attempts)
	assert.Equal(t, "mail provider unavailable", pending[0].LastError)
	assert.Equal(t, 3, deliverer.callCount())
}

func TestDispatcher_QueueFullParksEvent(t *testing.T) {
	store := memory.NewStore()
	cfg := testConfig()
	cfg.QueueSize = 1
	d := NewDispatcher(&fakeDeliverer{}, store, cfg, nil)

	require.NoError(t, d.Publish(context.Background(), domain.DispatchKindPurchaseCompleted, uuid.New(), 1))
	second := uuid.New()
	require.NoError(t, d.Publish(context.Background(), domain.DispatchKindPurchaseCompleted, second, 2))

	pending, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].EventID)
	assert.Equal(t, errQueueFull.Error(), pending[0].LastError)
}

func TestDispatcher_StopDrainsQueueToOutbox(t *testing.T) {
	store := memory.NewStore()
	d := NewDispatcher(&fakeDeliverer{}, store, testConfig(), nil)

	require.NoError(t, d.Publish(context.Background(), domain.DispatchKindPurchaseCompleted, uuid.New(), 1))
	d.Stop()

	pending, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, d.Publish(context.Background(), domain.DispatchKindPurchaseCompleted, uuid.New(), 2))
	pending, err = store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestDispatcher_RetryFailed(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	deliverer := &fakeDeliverer{failures: 1}
	d := NewDispatcher(deliverer, store, testConfig(), nil)

	first, second := uuid.New(), uuid.New()
	require.NoError(t, store.Save(ctx, &domain.DispatchRecord{EventID: first, Kind: domain.DispatchKindPurchaseCompleted, Payload: []byte(`{}`)}))
	require.NoError(t, store.Save(ctx, &domain.DispatchRecord{EventID: second, Kind: domain.DispatchKindPurchaseCompleted, Payload: []byte(`{}`)}))

	delivered, failed, err := d.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, failed)

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first, pending[0].EventID)
	assert.Equal(t, 1, pending[0].Attempts)

	delivered, failed, err = d.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, failed)

	pending, err = store.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_PublishRacingStopLosesNothing(t *testing.T) {
	store := memory.NewStore()
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(deliverer, store, Config{Workers: 2, QueueSize: 256, MaxRetries: 0, BaseBackoff: time.Millisecond}, nil)
	d.Start(context.Background())

	const publishers, perPublisher = 4, 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent = make(map[uuid.UUID]bool)
	)
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				id := uuid.New()
				if err := d.Publish(context.Background(), domain.DispatchKindDepositReceived, id, struct{}{}); err == nil {
					mu.Lock()
					sent[id] = true
					mu.Unlock()
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	d.Stop()
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	deliverer.mu.Lock()
	for _, rec := range deliverer.calls {
		seen[rec.EventID] = true
	}
	deliverer.mu.Unlock()
	pending, err := store.ListPending(context.Background(), publishers*perPublisher)
	require.NoError(t, err)
	for _, rec := range pending {
		seen[rec.EventID] = true
	}

	assert.Len(t, sent, publishers*perPublisher)
	for id := range sent {
		assert.True(t, seen[id], "event %s neither delivered nor parked", id)
	}
}
