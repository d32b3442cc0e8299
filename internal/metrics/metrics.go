// Package metrics exposes the server's OpenTelemetry instruments. It uses the
// global meter provider, which is a no-op until one is installed.
package metrics

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/race/arcade/internal/metrics"

// Metrics groups the game's counters.
type Metrics struct {
	connections metric.Int64UpDownCounter
	messages    metric.Int64Counter
	rejected    metric.Int64Counter
	dropped     metric.Int64Counter
	races       metric.Int64Counter
	payouts     metric.Int64Counter
	purchases   metric.Int64Counter
}

// New creates the instruments on the global meter.
func New() (*Metrics, error) {
	return NewWithMeter(otel.Meter(instrumentationName))
}

// NewWithMeter creates the instruments on m.
func NewWithMeter(m metric.Meter) (*Metrics, error) {
	var (
		mt  Metrics
		err error
	)

	if mt.connections, err = m.Int64UpDownCounter("game.connections",
		metric.WithDescription("Currently connected participants")); err != nil {
		return nil, errors.Wrap(err, "creating connections counter")
	}
	if mt.messages, err = m.Int64Counter("game.messages.processed",
		metric.WithDescription("Client messages handled")); err != nil {
		return nil, errors.Wrap(err, "creating messages counter")
	}
	if mt.rejected, err = m.Int64Counter("game.messages.rejected",
		metric.WithDescription("Client messages that were malformed, flooded or not applicable")); err != nil {
		return nil, errors.Wrap(err, "creating rejected counter")
	}
	if mt.dropped, err = m.Int64Counter("game.frames.dropped",
		metric.WithDescription("Outbound frames dropped because a send buffer was full")); err != nil {
		return nil, errors.Wrap(err, "creating dropped counter")
	}
	if mt.races, err = m.Int64Counter("race.transitions",
		metric.WithDescription("Race lifecycle transitions")); err != nil {
		return nil, errors.Wrap(err, "creating races counter")
	}
	if mt.payouts, err = m.Int64Counter("economy.payouts",
		metric.WithDescription("Currency paid out to finishers")); err != nil {
		return nil, errors.Wrap(err, "creating payouts counter")
	}
	if mt.purchases, err = m.Int64Counter("economy.purchases",
		metric.WithDescription("Successful vehicle purchases")); err != nil {
		return nil, errors.Wrap(err, "creating purchases counter")
	}
	return &mt, nil
}

func (m *Metrics) Connected() {
	m.connections.Add(context.Background(), 1)
}

func (m *Metrics) Disconnected() {
	m.connections.Add(context.Background(), -1)
}

func (m *Metrics) Message(event string) {
	m.messages.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *Metrics) Rejected(event, reason string) {
	m.rejected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) Dropped() {
	m.dropped.Add(context.Background(), 1)
}

// Race records a lifecycle transition such as "countdown", "started",
// "finished" or "cancelled".
func (m *Metrics) Race(transition string) {
	m.races.Add(context.Background(), 1, metric.WithAttributes(attribute.String("transition", transition)))
}

func (m *Metrics) Payout(amount int, rank int) {
	m.payouts.Add(context.Background(), int64(amount), metric.WithAttributes(attribute.Int("rank", rank)))
}

func (m *Metrics) Purchase(item int) {
	m.purchases.Add(context.Background(), 1, metric.WithAttributes(attribute.Int("item", item)))
}
