// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuGH/nlbridge/internal/netlogo"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message types published by AMQP, carried in the Type property.
const (
	MsgSingle    = "nlbridge.single"
	MsgRun       = "nlbridge.run"
	MsgTableOpen = "nlbridge.table_open"
	MsgAction    = "nlbridge.log_action"
)

// publisher is the part of *amqp.Channel the sink uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes every export to a fanout exchange.
type AMQP struct {
	conn     *amqp.Connection
	ch       publisher
	exchange string
	now      func() time.Time
}

// DialAMQP connects to url and declares a durable fanout exchange.
func DialAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("sink: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sink: amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("sink: amqp declare exchange %q: %w", exchange, err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange, now: time.Now}, nil
}

func (a *AMQP) publish(ctx context.Context, typ string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sink: amqp encode %s: %w", typ, err)
	}
	err = a.ch.PublishWithContext(ctx, a.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Type:         typ,
		Timestamp:    a.now(),
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("sink: amqp publish %s: %w", typ, err)
	}
	return nil
}

func (a *AMQP) ExportData(ctx context.Context, data map[string]any) error {
	return a.publish(ctx, MsgSingle, data)
}

func (a *AMQP) ExportRun(ctx context.Context, run netlogo.Run) error {
	return a.publish(ctx, MsgRun, map[string]any{
		"time_stamp":      run.TimeStamp,
		"per_run_labels":  run.PerRunLabels,
		"per_run_values":  run.PerRunValues,
		"per_tick_labels": run.PerTickLabels,
		"per_tick_values": run.PerTickValues,
	})
}

func (a *AMQP) OpenTable(ctx context.Context) error {
	return a.publish(ctx, MsgTableOpen, map[string]any{})
}

func (a *AMQP) LogAction(ctx context.Context, line string) error {
	return a.publish(ctx, MsgAction, map[string]string{"line": line})
}

func (a *AMQP) Close() error {
	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
