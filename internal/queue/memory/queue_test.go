package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan catalog.Task, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	require.NoError(t, q.Enqueue(context.Background(), catalog.Task{Seq: 0, ID: "SKU-1"}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, catalog.Identifier("SKU-1"), got.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), catalog.Task{ID: "primed"}))
	require.EqualError(t, full.Enqueue(ctx, catalog.Task{ID: "late"}), "enqueue canceled: context canceled")
}

func TestQueueCloseDrainsBufferedTasks(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for i, id := range []catalog.Identifier{"A", "B"} {
		require.NoError(t, q.Enqueue(context.Background(), catalog.Task{Seq: i, ID: id}))
	}
	require.Equal(t, 2, q.Len())
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), catalog.Task{ID: "C"}), catalog.ErrQueueClosed)

	first, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.Identifier("A"), first.ID)
	second, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.Identifier("B"), second.ID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, catalog.ErrQueueClosed)
}
