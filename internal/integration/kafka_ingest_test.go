//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/tidewatch/riskmap-service/internal/adapter/kafka"
	"github.com/tidewatch/riskmap-service/internal/feed"
	"github.com/tidewatch/riskmap-service/internal/observability"
)

const (
	testSignalsTopic = "test-disaster-signals"
	testReportsTopic = "test-community-reports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka spins up a single-broker cluster and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func publish(ctx context.Context, t *testing.T, broker, topic string, payloads ...[]byte) {
	t.Helper()

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: topic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(payloads))
	for i, p := range payloads {
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(fmt.Sprintf("msg-%d", i)),
			Value: p,
		})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

// waitForItems polls the store-backed accessor until it yields at least
// n items. Consumer groups can take several seconds to rebalance after
// the broker comes up, so the deadline is generous.
func waitForItems[T any](ctx context.Context, t *testing.T, items func() []T, n int) []T {
	t.Helper()
	deadline := time.After(60 * time.Second)
	for {
		if got := items(); len(got) >= n {
			return got
		}
		select {
		case <-ctx.Done():
			t.Fatal("context cancelled waiting for messages")
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages", n)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// TestSignalIngestion verifies that signal messages published to the
// broker land in the signal store with their weights intact.
func TestSignalIngestion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSignalsTopic)

	sig1, err := json.Marshal(map[string]any{
		"id": "sig-1", "text": "river gauge above flood stage", "confidence": 0.9,
		"observed_at": time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	sig2, err := json.Marshal(map[string]any{
		"id": "sig-2", "text": "wind advisory issued", "confidence": 0.4,
	})
	require.NoError(t, err)

	publish(ctx, t, broker, testSignalsTopic, sig1, sig2)

	signals := feed.NewSignalStore()
	metrics := observability.NewMetricsForTesting()
	consumer := kafka.NewSignalConsumer([]string{broker}, testSignalsTopic,
		fmt.Sprintf("test-signals-%d", time.Now().UnixNano()),
		signals, discardLogger(), metrics)
	t.Cleanup(func() { _ = consumer.Close() })

	runCtx, runCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(runCtx) }()

	got := waitForItems(ctx, t, signals.Items, 2)
	runCancel()
	require.NoError(t, <-errCh)

	require.Len(t, got, 2)
	assert.Equal(t, "sig-1", got[0].ID)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-9)
	assert.Equal(t, "sig-2", got[1].ID)
}

// TestReportIngestion_PoisonPillSkipped verifies that a malformed record
// is skipped and consumption continues with the valid ones.
func TestReportIngestion_PoisonPillSkipped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportsTopic)

	valid, err := json.Marshal(map[string]any{
		"id": "rep-1", "latitude": 40.71, "longitude": -74.0,
		"description": "street flooding", "verified": true, "upvotes": 3,
	})
	require.NoError(t, err)
	noCoord, err := json.Marshal(map[string]any{
		"id": "rep-2", "description": "sirens heard downtown",
	})
	require.NoError(t, err)

	publish(ctx, t, broker, testReportsTopic,
		[]byte("not-json{{{"), valid, noCoord)

	reports := feed.NewReportStore()
	metrics := observability.NewMetricsForTesting()
	consumer := kafka.NewReportConsumer([]string{broker}, testReportsTopic,
		fmt.Sprintf("test-reports-%d", time.Now().UnixNano()),
		reports, discardLogger(), metrics)
	t.Cleanup(func() { _ = consumer.Close() })

	runCtx, runCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(runCtx) }()

	got := waitForItems(ctx, t, reports.Items, 2)
	runCancel()
	require.NoError(t, <-errCh)

	require.Len(t, got, 2, "poison pill must not reach the store")
	assert.Equal(t, "rep-1", got[0].ID)
	require.NotNil(t, got[0].Coordinate)
	assert.Equal(t, 40.71, got[0].Coordinate.Latitude)
	assert.True(t, got[0].Verified)
	assert.Equal(t, 3, got[0].Upvotes)

	assert.Equal(t, "rep-2", got[1].ID)
	assert.Nil(t, got[1].Coordinate, "reports without a coordinate stay coordinate-free")
}
