package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPublisher(t *testing.T, topics ...string) (*Publisher, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	for _, topic := range topics {
		_, err := client.CreateTopic(ctx, topic)
		require.NoError(t, err)
	}

	pub, err := New(client, "checkpoints")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublishDefaultTopic(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t, "checkpoints")
	id, err := pub.Publish(context.Background(), "", map[string]any{"run_id": "run-1", "completed": 5})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "application/json", msgs[0].Attributes["content-type"])
}

func TestPublishNamedTopic(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t, "checkpoints", "runs")
	_, err := pub.Publish(context.Background(), "runs", "done")
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "runs", "again")
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, `"done"`, string(msgs[0].Data))
}

func TestPublishMissingTopicFails(t *testing.T) {
	t.Parallel()

	pub, _ := newTestPublisher(t)
	_, err := pub.Publish(context.Background(), "absent", "x")
	require.Error(t, err)
}

func TestPublishUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	pub, _ := newTestPublisher(t, "checkpoints")
	_, err := pub.Publish(context.Background(), "", func() {})
	require.Error(t, err)
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = Open(context.Background(), "", "t")
	require.Error(t, err)
}
