package ingest

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/k0sti/snowclaw-memory/internal/cache"
	"github.com/k0sti/snowclaw-memory/internal/logging"
	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/store"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func claim(id string) model.Memory {
	return model.Memory{
		ID:         id,
		Tier:       model.Group("devs"),
		Topic:      "nostr/nip44",
		Summary:    "padding to powers of two",
		Source:     "npub1alice",
		Model:      "anthropic/claude-opus-4",
		Confidence: 0.9,
		Version:    1,
		CreatedAt:  time.Now().Unix(),
	}
}

func TestPublishThenIngest(t *testing.T) {
	server := startTestNATSServer(t)
	st := store.NewMemStore()
	c := cache.New(st, time.Hour)

	sub := NewSubscriber(connect(t, server), c, []string{"snowclaw.memory.>"})
	require.NoError(t, sub.Start())
	t.Cleanup(func() { sub.Stop() })

	pub := NewPublisher(connect(t, server), "snowclaw.memory")
	assert.Equal(t, "snowclaw.memory.group", pub.Subject(claim("x")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pub.Publish(ctx, claim("m1")))

	require.Eventually(t, func() bool {
		m, err := c.Get(context.Background(), "m1")
		return err == nil && m != nil
	}, 5*time.Second, 10*time.Millisecond)

	got, err := c.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, claim("m1").Topic, got.Topic)
	assert.Equal(t, model.Group("devs"), got.Tier)

	raw, err := st.RawPayload(context.Background(), "m1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":30078`)
}

func TestBadEventsAreSkipped(t *testing.T) {
	server := startTestNATSServer(t)
	c := cache.New(store.NewMemStore(), time.Hour)
	log, logs := logging.NewObserved(zapcore.WarnLevel)

	sub := NewSubscriber(connect(t, server), c, []string{"relay.events"}, WithLogger(log))
	require.NoError(t, sub.Start())
	t.Cleanup(func() { sub.Stop() })

	nc := connect(t, server)
	require.NoError(t, nc.Publish("relay.events", []byte(`not json`)))
	require.NoError(t, nc.Publish("relay.events", []byte(`{"kind":1}`)))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("undecodable memory event").Len() == 2
	}, 5*time.Second, 10*time.Millisecond)

	n, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartTwiceFails(t *testing.T) {
	server := startTestNATSServer(t)
	sub := NewSubscriber(connect(t, server), cache.New(store.NewMemStore(), time.Hour), []string{"a"})
	require.NoError(t, sub.Start())
	assert.Error(t, sub.Start())
	require.NoError(t, sub.Stop())
	require.NoError(t, sub.Start())
	require.NoError(t, sub.Stop())
}

func TestPublishRejectsInvalid(t *testing.T) {
	server := startTestNATSServer(t)
	pub := NewPublisher(connect(t, server), "p")

	bad := claim("bad")
	bad.Confidence = 2
	err := pub.Publish(context.Background(), bad)
	assert.ErrorIs(t, err, model.ErrInvalidMemory)
}
