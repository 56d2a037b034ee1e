package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func fakeServer(t *testing.T) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, []option.ClientOption{option.WithGRPCConn(conn)}
}

func TestOpenPublishesJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, opts := fakeServer(t)

	admin, err := pubsub.NewClient(ctx, "proj", opts...)
	require.NoError(t, err)
	_, err = admin.CreateTopic(ctx, "exports")
	require.NoError(t, err)

	pub, err := Open(ctx, "proj", "exports", opts...)
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "ignored", map[string]any{"run_id": "r1", "found": 2})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "r1", got["run_id"])
	require.InDelta(t, 2, got["found"], 0)
}

func TestOpenRejectsMissingTopic(t *testing.T) {
	t.Parallel()

	_, opts := fakeServer(t)
	_, err := Open(context.Background(), "proj", "nope", opts...)
	require.ErrorContains(t, err, "does not exist")
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "t", "x")
	require.Error(t, err)
	require.NoError(t, (&Publisher{}).Close())
}

func TestCarrierHoldsTraceContext(t *testing.T) {
	t.Parallel()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	carrier := &pubsubCarrier{attrs: map[string]string{"content_type": "application/json"}}
	propagation.TraceContext{}.Inject(ctx, carrier)
	require.Equal(t, "00-01000000000000000000000000000000-0200000000000000-01", carrier.Get("traceparent"))
	require.ElementsMatch(t, []string{"content_type", "traceparent"}, carrier.Keys())

	extracted := trace.SpanContextFromContext(propagation.TraceContext{}.Extract(context.Background(), carrier))
	require.Equal(t, sc.TraceID(), extracted.TraceID())
}
