// Command feedseed publishes synthetic disaster signals and community
// reports to the ingestion topics. It exists for local development and
// demo environments where no real social listener or report pipeline
// is wired up.
//
// Usage:
//
//	go run ./cmd/feedseed \
//	  -brokers localhost:9092 \
//	  -lat 40.7128 -lng -74.0060 \
//	  -signals 20 -reports 10
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

var signalTexts = []string{
	"river gauge reading above flood stage",
	"transformer explosion reported near substation",
	"wind gusts downing power lines",
	"storm surge warning extended through tonight",
	"wildfire smoke visible from the highway",
	"flash flood watch issued for the county",
	"widespread cell outages reported",
	"evacuation buses staging at the fairgrounds",
}

var reportTexts = []string{
	"underpass flooded, car stalled",
	"tree down blocking both lanes",
	"shelter at the high school is full",
	"gas station out of fuel",
	"water entering ground-floor apartments",
	"roof damage on the block",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated kafka brokers")
	signalsTopic := flag.String("signals-topic", "disaster-signals", "topic for disaster signals")
	reportsTopic := flag.String("reports-topic", "community-reports", "topic for community reports")
	lat := flag.Float64("lat", 40.7128, "center latitude for generated coordinates")
	lng := flag.Float64("lng", -74.0060, "center longitude for generated coordinates")
	spread := flag.Float64("spread", 0.05, "degrees of scatter around the center")
	nSignals := flag.Int("signals", 20, "number of signals to publish")
	nReports := flag.Int("reports", 10, "number of reports to publish")
	seed := flag.Int64("seed", 0, "rng seed (0 uses the current time)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	log.Printf("seed: %d", *seed)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	addrs := strings.Split(*brokers, ",")

	if *nSignals > 0 {
		msgs := make([]kafkago.Message, 0, *nSignals)
		for i := 0; i < *nSignals; i++ {
			payload, err := json.Marshal(map[string]any{
				"id":          uuid.NewString(),
				"text":        signalTexts[rng.Intn(len(signalTexts))],
				"confidence":  0.2 + rng.Float64()*0.8,
				"observed_at": time.Now().UTC().Add(-time.Duration(rng.Intn(3600)) * time.Second),
			})
			if err != nil {
				return fmt.Errorf("marshal signal: %w", err)
			}
			msgs = append(msgs, kafkago.Message{Value: payload})
		}
		if err := publish(ctx, addrs, *signalsTopic, msgs); err != nil {
			return fmt.Errorf("publish signals: %w", err)
		}
		log.Printf("published %d signals to %s", *nSignals, *signalsTopic)
	}

	if *nReports > 0 {
		msgs := make([]kafkago.Message, 0, *nReports)
		for i := 0; i < *nReports; i++ {
			rec := map[string]any{
				"id":           uuid.NewString(),
				"description":  reportTexts[rng.Intn(len(reportTexts))],
				"verified":     rng.Intn(4) == 0,
				"upvotes":      rng.Intn(12),
				"submitted_at": time.Now().UTC(),
			}
			// Roughly one in five reports arrives without a usable
			// coordinate, matching what the mobile pipeline produces
			// when device positioning is off.
			if rng.Intn(5) != 0 {
				rec["latitude"] = *lat + (rng.Float64()-0.5)**spread
				rec["longitude"] = *lng + (rng.Float64()-0.5)**spread
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal report: %w", err)
			}
			msgs = append(msgs, kafkago.Message{Value: payload})
		}
		if err := publish(ctx, addrs, *reportsTopic, msgs); err != nil {
			return fmt.Errorf("publish reports: %w", err)
		}
		log.Printf("published %d reports to %s", *nReports, *reportsTopic)
	}

	return nil
}

func publish(ctx context.Context, brokers []string, topic string, msgs []kafkago.Message) error {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	defer writer.Close()
	return writer.WriteMessages(ctx, msgs...)
}
