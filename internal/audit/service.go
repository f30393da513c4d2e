// Package audit consumes order events and writes one structured audit record
// per event. Redelivered events are dropped by event id.
package audit

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/campus-shop/internal/kafka"
	"github.com/ariefcatur/campus-shop/internal/orders"
)

type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

type Service struct {
	Dedup Deduper // optional
	Log   *slog.Logger
}

// HandleEvent dipasang sebagai handler consumer. A nil return commits the
// offset, so only undecodable input and dedup outages are reported.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	// 1) decode envelope
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		log.WarnContext(ctx, "audit: skip undecodable message", "topic", m.Topic, "offset", m.Offset, "error", err)
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	if s.Dedup != nil {
		first, err := s.Dedup.FirstSeen(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			log.DebugContext(ctx, "audit: duplicate event", "event_id", env.EventID)
			return nil
		}
	}

	// 3) decode payload
	attrs := []any{
		"event_id", env.EventID,
		"event_type", env.EventType,
		"event_version", env.EventVersion,
		"occurred_at", env.OccurredAt,
		"producer", env.Producer,
		"order_id", env.CorrelationID,
		"topic", m.Topic,
	}
	if env.TraceID != "" {
		attrs = append(attrs, "trace_id", env.TraceID)
	}

	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			log.WarnContext(ctx, "audit: bad payload", "event_id", env.EventID, "error", err)
			return nil
		}
		attrs = append(attrs, "order_number", p.OrderNumber, "user_id", p.UserID, "lines", len(p.Items), "total", p.Total)
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			log.WarnContext(ctx, "audit: bad payload", "event_id", env.EventID, "error", err)
			return nil
		}
		attrs = append(attrs, "order_number", p.OrderNumber, "from", p.From, "to", p.To)
	case orders.EventOrderPaid:
		p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
		if err != nil {
			log.WarnContext(ctx, "audit: bad payload", "event_id", env.EventID, "error", err)
			return nil
		}
		attrs = append(attrs, "payment_id", p.PaymentID, "amount", p.Amount)
	default:
		// ignore
		return nil
	}

	log.InfoContext(ctx, "order event", attrs...)
	return nil
}
