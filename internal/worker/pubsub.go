package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/webrx-map/webrx/internal/station"
)

// Job types accepted on the subscription.
const (
	JobStationRefresh = "station_refresh"
	JobHealthCheck    = "health_check"
)

var (
	// ErrUnknownJob is returned for messages with an unrecognised job type.
	ErrUnknownJob = errors.New("unknown job type")

	// ErrMalformedMessage is returned for messages that are not valid JSON.
	ErrMalformedMessage = errors.New("malformed job message")
)

// JobMessage is the payload of a job message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// StationChecker checks a single station with retries.
type StationChecker interface {
	Check(ctx context.Context, st station.Station) (station.Result, error)
}

// JobProcessorConfig holds configuration for the job processor.
type JobProcessorConfig struct {
	RefreshJob *RefreshJob
	Source     station.Source
	Checker    StationChecker
	Logger     zerolog.Logger
}

// JobProcessor executes job messages independently of the transport.
type JobProcessor struct {
	refreshJob *RefreshJob
	source     station.Source
	checker    StationChecker
	logger     zerolog.Logger
}

// NewJobProcessor creates a new job processor.
func NewJobProcessor(cfg JobProcessorConfig) *JobProcessor {
	return &JobProcessor{
		refreshJob: cfg.RefreshJob,
		source:     cfg.Source,
		checker:    cfg.Checker,
		logger:     cfg.Logger,
	}
}

// Process decodes and runs one job message.
func (p *JobProcessor) Process(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobStationRefresh:
		return p.refreshJob.RunOnce(ctx).Err
	case JobHealthCheck:
		return p.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// healthCheck probes the first configured station to verify connectivity.
func (p *JobProcessor) healthCheck(ctx context.Context) error {
	stations, err := p.source.Stations(ctx)
	if err != nil {
		return err
	}
	if len(stations) == 0 {
		return station.ErrNoStations
	}

	result, err := p.checker.Check(ctx, stations[0])
	if err != nil {
		return err
	}
	if result.Status == station.StatusOffline {
		return fmt.Errorf("health check: station %s: %w", stations[0].ID, station.ErrUnreachable)
	}

	p.logger.Debug().
		Str("station", string(stations[0].ID)).
		Str("status", result.Status.String()).
		Msg("health check passed")
	return nil
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Processor        *JobProcessor
	Logger           zerolog.Logger
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *JobProcessor
	logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// refreshes are single-flight, more outstanding messages would only queue
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		processor:        cfg.Processor,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if ShouldAck(h.handle(ctx, msg.ID, msg.Data)) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handle(ctx context.Context, id string, data []byte) error {
	start := time.Now()
	logger := h.logger.With().Str("message_id", id).Logger()

	err := h.processor.Process(ctx, data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
	case errors.Is(err, ErrUnknownJob), errors.Is(err, ErrMalformedMessage):
		logger.Warn().Err(err).Msg("dropping job message")
	default:
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
	}
	return err
}

// ShouldAck reports whether a message that produced err should be acked.
// Messages that can never succeed are acked to prevent redelivery.
func ShouldAck(err error) bool {
	return err == nil || errors.Is(err, ErrUnknownJob) || errors.Is(err, ErrMalformedMessage)
}
