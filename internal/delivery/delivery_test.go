package delivery

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/catalog-exporter/internal/publisher/memory"
	"github.com/JakeFAU/catalog-exporter/internal/storage/memory"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))
	return path
}

func TestDeliverUploadsAndNotifies(t *testing.T) {
	t.Parallel()

	path := writeExport(t)
	store := memory.NewBlobStore()
	pubsub := pubmemory.New()
	redis := pubmemory.New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := New(Config{}, sha256.New(), store, []Target{
		{Name: "pubsub", Topic: "exports", Publisher: pubsub},
		{Name: "redis", Topic: "catalog.exports", Publisher: redis},
	}, fixedClock{now}, zap.NewNop())

	summary := catalog.Summary{Submitted: 3, Found: 2, NotListed: 1}
	res, err := d.Deliver(context.Background(), "run-1", path, 2, summary)
	require.NoError(t, err)

	require.Equal(t, helloDigest, res.Notice.SHA256)
	require.Equal(t, "memory://run-1/export.csv", res.Notice.URI)
	require.Equal(t, "export.csv", res.Notice.File)
	require.Equal(t, 2, res.Notice.Rows)
	require.Equal(t, now, res.Notice.CompletedAt)
	require.Equal(t, map[string]string{"pubsub": "memory-1", "redis": "memory-1"}, res.MessageIDs)

	obj, ok := store.Get("run-1/export.csv")
	require.True(t, ok)
	require.Equal(t, "text/csv", obj.ContentType)
	require.Equal(t, "hello world", string(obj.Data))

	msgs := pubsub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "exports", msgs[0].Topic)
	notice, ok := msgs[0].Payload.(Notice)
	require.True(t, ok)
	require.Equal(t, summary, notice.Summary)
	require.Equal(t, "catalog.exports", redis.Messages()[0].Topic)
}

func TestDeliverWithoutStoreStillNotifies(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	d := New(Config{}, sha256.New(), nil, []Target{{Name: "pubsub", Publisher: pub}}, fixedClock{}, nil)
	res, err := d.Deliver(context.Background(), "run-2", writeExport(t), 0, catalog.Summary{})
	require.NoError(t, err)
	require.Empty(t, res.Notice.URI)
	require.Len(t, pub.Messages(), 1)
}

func TestDeliverUploadFailureSkipsNotices(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	d := New(Config{}, sha256.New(), failingStore{}, []Target{{Name: "pubsub", Publisher: pub}}, fixedClock{}, nil)
	_, err := d.Deliver(context.Background(), "run-3", writeExport(t), 1, catalog.Summary{})
	require.ErrorContains(t, err, "bucket unavailable")
	require.Empty(t, pub.Messages())
}

func TestDeliverNotifyFailureDoesNotStarveOtherTargets(t *testing.T) {
	t.Parallel()

	broken := pubmemory.New()
	broken.FailWith(errors.New("topic gone"))
	healthy := pubmemory.New()
	d := New(Config{}, sha256.New(), nil, []Target{
		{Name: "pubsub", Publisher: broken},
		{Name: "redis", Publisher: healthy},
	}, fixedClock{}, nil)

	res, err := d.Deliver(context.Background(), "run-4", writeExport(t), 1, catalog.Summary{})
	require.ErrorContains(t, err, "notify pubsub")
	require.Len(t, healthy.Messages(), 1)
	require.Contains(t, res.MessageIDs, "redis")
	require.NotContains(t, res.MessageIDs, "pubsub")
}

func TestDeliverMissingFile(t *testing.T) {
	t.Parallel()

	d := New(Config{}, sha256.New(), nil, nil, fixedClock{}, nil)
	_, err := d.Deliver(context.Background(), "run-5", filepath.Join(t.TempDir(), "nope.csv"), 0, catalog.Summary{})
	require.Error(t, err)
}
