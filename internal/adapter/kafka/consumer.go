// Package kafka consumes the two input feeds — disaster signals and
// community reports — into their in-memory stores.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/feed"
	"github.com/tidewatch/riskmap-service/internal/observability"
)

// Consumer reads one topic and applies each decoded message to a feed
// store. Decode failures are logged and skipped; the feed must keep
// flowing past one bad producer.
type Consumer struct {
	reader  *kafkago.Reader
	apply   func(value []byte) error
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSignalConsumer consumes disaster signals into the signal store.
func NewSignalConsumer(brokers []string, topic, groupID string, signals *feed.SignalStore, logger *slog.Logger, metrics *observability.Metrics) *Consumer {
	return &Consumer{
		reader: newReader(brokers, topic, groupID),
		apply: func(value []byte) error {
			sig, err := DecodeSignal(value)
			if err != nil {
				return err
			}
			signals.Append(sig)
			metrics.SignalsIngested.Inc()
			return nil
		},
		logger:  logger.With("topic", topic),
		metrics: metrics,
	}
}

// NewReportConsumer consumes community reports into the report store.
func NewReportConsumer(brokers []string, topic, groupID string, reports *feed.ReportStore, logger *slog.Logger, metrics *observability.Metrics) *Consumer {
	return &Consumer{
		reader: newReader(brokers, topic, groupID),
		apply: func(value []byte) error {
			rep, err := DecodeReport(value)
			if err != nil {
				return err
			}
			reports.Append(rep)
			metrics.ReportsIngested.Inc()
			return nil
		},
		logger:  logger.With("topic", topic),
		metrics: metrics,
	}
}

func newReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  500 * time.Millisecond,
	})
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("fetch message failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		if err := c.apply(msg.Value); err != nil {
			c.logger.Warn("skipping undecodable feed message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			c.metrics.FeedDecodeErrors.Inc()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("commit offset failed", "error", err, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// signalRecord is the wire shape published by the social listener.
type signalRecord struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Confidence *float64  `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// DecodeSignal parses a disaster-signal message. Confidence is
// required and must sit in [0,1].
func DecodeSignal(value []byte) (domain.DisasterSignal, error) {
	var rec signalRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return domain.DisasterSignal{}, fmt.Errorf("decode signal: %w", err)
	}
	if rec.Confidence == nil {
		return domain.DisasterSignal{}, fmt.Errorf("decode signal: missing confidence")
	}
	if *rec.Confidence < 0 || *rec.Confidence > 1 {
		return domain.DisasterSignal{}, fmt.Errorf("decode signal: confidence %v out of range", *rec.Confidence)
	}
	return domain.DisasterSignal{
		ID:         rec.ID,
		Text:       rec.Text,
		Confidence: *rec.Confidence,
		ObservedAt: rec.ObservedAt,
	}, nil
}

// reportRecord is the wire shape for community reports. Latitude and
// longitude are pointers: both must be present for the report to carry
// a coordinate, a half pair means unresolved.
type reportRecord struct {
	ID          string    `json:"id"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Description string    `json:"description"`
	Verified    bool      `json:"verified"`
	Upvotes     int       `json:"upvotes"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// DecodeReport parses a community-report message. A report without a
// complete coordinate pair is still valid; the aggregator skips it.
func DecodeReport(value []byte) (domain.CommunityReport, error) {
	var rec reportRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return domain.CommunityReport{}, fmt.Errorf("decode report: %w", err)
	}
	if rec.ID == "" {
		return domain.CommunityReport{}, fmt.Errorf("decode report: missing id")
	}

	rep := domain.CommunityReport{
		ID:          rec.ID,
		Description: rec.Description,
		Verified:    rec.Verified,
		Upvotes:     rec.Upvotes,
		SubmittedAt: rec.SubmittedAt,
	}
	if rep.Upvotes < 0 {
		rep.Upvotes = 0
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		rep.Coordinate = &domain.Coordinate{
			Latitude:  *rec.Latitude,
			Longitude: *rec.Longitude,
		}
	}
	return rep, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
