package output

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/ring-scanner/internal/metrics"
	"github.com/ring-scanner/internal/types"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const pubsubSink = "pubsub"

// PubSubReporter publishes each report as a JSON message to a Pub/Sub topic
type PubSubReporter struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	metrics *metrics.Collector
}

// NewPubSubReporter connects to projectID and checks that topicID exists.
// PUBSUB_EMULATOR_HOST is honoured by the client library.
func NewPubSubReporter(ctx context.Context, projectID, topicID string, metricsCollector *metrics.Collector, opts ...option.ClientOption) (*PubSubReporter, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("checking topic %q: %w", topicID, err)
	}
	if !exists {
		client.Close()
		return nil, fmt.Errorf("topic %q not found", topicID)
	}

	log.Infof("Publishing reports to pubsub project=%s topic=%s", projectID, topicID)
	return &PubSubReporter{client: client, topic: topic, metrics: metricsCollector}, nil
}

func (p *PubSubReporter) Report(ctx context.Context, report *types.ScanReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	up := "false"
	if report.AllUp() {
		up = "true"
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"scan_timestamp": report.ScanTimestamp,
			"all_up":         up,
		},
	})
	id, err := result.Get(ctx)
	p.metrics.RecordPublish(pubsubSink, err == nil)
	if err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	log.Debugf("Published report %s as message %s", report.ScanTimestamp, id)
	return nil
}

// Close flushes pending messages and closes the client
func (p *PubSubReporter) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
