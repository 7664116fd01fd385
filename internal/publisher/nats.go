// Package publisher fans domain events out to the event stream and the
// dashboard feed.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
)

// Sink receives encoded events.
type Sink interface {
	Send(ctx context.Context, subject string, payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, subject string, payload []byte) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, subject string, payload []byte) error {
	return f(ctx, subject, payload)
}

// NATSClient interface to allow mocking
type NATSClient interface {
	PublishRaw(ctx context.Context, subject string, payload []byte) error
}

// NATSSink publishes events to JetStream.
type NATSSink struct {
	js NATSClient
}

// NewNATSSink creates a sink over a JetStream client.
func NewNATSSink(js NATSClient) *NATSSink {
	return &NATSSink{js: js}
}

// Send publishes payload on subject.
func (s *NATSSink) Send(ctx context.Context, subject string, payload []byte) error {
	return s.js.PublishRaw(ctx, subject, payload)
}

// Publisher encodes events once and hands them to every sink. A nil
// Publisher drops events.
type Publisher struct {
	sinks []Sink
	log   *logger.Logger
}

// New creates a Publisher over sinks; nil sinks are skipped.
func New(sinks ...Sink) *Publisher {
	p := &Publisher{log: logger.Component("publisher")}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// DeliveryCompleted publishes a successful delivery.
func (p *Publisher) DeliveryCompleted(ctx context.Context, e DeliveryEvent) error {
	return p.publish(ctx, SubjectDeliveryCompleted, stampDelivery(e))
}

// DeliveryFailed publishes a failed delivery.
func (p *Publisher) DeliveryFailed(ctx context.Context, e DeliveryEvent) error {
	return p.publish(ctx, SubjectDeliveryFailed, stampDelivery(e))
}

// PremiumGranted publishes a premium grant.
func (p *Publisher) PremiumGranted(ctx context.Context, e PremiumEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return p.publish(ctx, SubjectPremiumGranted, e)
}

func stampDelivery(e DeliveryEvent) DeliveryEvent {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) error {
	if p == nil || len(p.sinks) == 0 {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var errs []error
	for _, s := range p.sinks {
		if err := s.Send(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publish event")
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
