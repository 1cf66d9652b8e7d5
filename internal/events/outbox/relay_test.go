package outbox

//go:generate mockgen -source=relay.go -destination=mocks/mocks.go -package=mocks Source,Publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"namereg/internal/events/outbox/mocks"
	"namereg/internal/registry/models"
	"namereg/internal/registry/store"
	"namereg/pkg/domain"
)

var admin = domain.MustParseIdentity("0x00000000000000000000000000000000000000ad")

func seedEvents(t *testing.T, s *store.InMemoryStore, names ...string) {
	t.Helper()
	for _, name := range names {
		ev := models.NewNameRegistered(models.Record{Name: name, ExpiresAt: time.Unix(100, 0)}, time.Unix(0, 0))
		require.NoError(t, s.AppendEvent(context.Background(), &ev))
	}
}

func seqsOf(events []models.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.Seq
	}
	return out
}

func TestRelay_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes pending events in sequence order and marks them", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockPublisher(ctrl)
		source := store.NewInMemoryStore(admin)
		seedEvents(t, source, "alice", "bob", "carol", "dave", "erin")
		m := NewMetricsWithRegistry(prometheus.NewRegistry())

		var batches [][]int64
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, events []models.Event) error {
				batches = append(batches, seqsOf(events))
				return nil
			}).Times(3)

		relay := New(source, publisher, WithBatchSize(2), WithMetrics(m))
		n, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, batches)
		assert.InDelta(t, 5, testutil.ToFloat64(m.Published), 0)

		pending, err := source.PendingEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("nothing pending publishes nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockPublisher(ctrl)
		relay := New(store.NewInMemoryStore(admin), publisher)

		n, err := relay.Flush(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("failed batch stays pending and later batches wait", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockPublisher(ctrl)
		source := store.NewInMemoryStore(admin)
		seedEvents(t, source, "alice", "bob", "carol")
		m := NewMetricsWithRegistry(prometheus.NewRegistry())

		gomock.InOrder(
			publisher.EXPECT().Publish(gomock.Any(), gomock.Len(2)).Return(nil),
			publisher.EXPECT().Publish(gomock.Any(), gomock.Len(1)).Return(errors.New("broker down")),
		)

		relay := New(source, publisher, WithBatchSize(2), WithMetrics(m))
		n, err := relay.Flush(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "seq 3")
		assert.Equal(t, 2, n)
		assert.InDelta(t, 1, testutil.ToFloat64(m.PublishFailures), 0)

		pending, err := source.PendingEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, int64(3), pending[0].Seq)

		publisher.EXPECT().Publish(gomock.Any(), gomock.Len(1)).Return(nil)
		n, err = relay.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("mark failure surfaces after delivery", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mocks.NewMockSource(ctrl)
		publisher := mocks.NewMockPublisher(ctrl)
		events := []models.Event{{Seq: 9, Kind: models.EventNameRenewed}}

		source.EXPECT().PendingEvents(gomock.Any(), defaultBatchSize).Return(events, nil)
		publisher.EXPECT().Publish(gomock.Any(), events).Return(nil)
		source.EXPECT().MarkPublished(gomock.Any(), []int64{9}).Return(errors.New("conn reset"))

		n, err := New(source, publisher).Flush(ctx)
		require.Error(t, err)
		assert.Zero(t, n)
	})

	t.Run("source failure is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mocks.NewMockSource(ctrl)
		source.EXPECT().PendingEvents(gomock.Any(), gomock.Any()).Return(nil, errors.New("db gone"))

		_, err := New(source, mocks.NewMockPublisher(ctrl)).Flush(ctx)
		assert.ErrorContains(t, err, "load pending events")
	})
}

func TestRelay_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	source := store.NewInMemoryStore(admin)
	seedEvents(t, source, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan struct{})
	publisher.EXPECT().Publish(gomock.Any(), gomock.Len(1)).DoAndReturn(
		func(context.Context, []models.Event) error {
			close(delivered)
			return nil
		})

	done := make(chan error, 1)
	go func() {
		done <- New(source, publisher, WithInterval(10*time.Millisecond)).Run(ctx)
	}()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not publish")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
