package netsync

import (
	"time"

	"github.com/pkg/errors"

	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/progress"
)

// Publisher sends the local pose no more often than its interval.
type Publisher struct {
	protocol *network.Protocol
	out      Sender
	interval time.Duration

	last time.Time
	seq  uint32
}

// NewPublisher returns a publisher that sends at most once per interval.
func NewPublisher(p *network.Protocol, out Sender, interval time.Duration) *Publisher {
	return &Publisher{protocol: p, out: out, interval: interval}
}

// Publish sends pose if the interval has elapsed since the last send.
// It reports whether a frame went out.
func (p *Publisher) Publish(now time.Time, pose Pose) (bool, error) {
	if p.seq > 0 && now.Sub(p.last) < p.interval {
		return false, nil
	}
	p.seq++
	p.last = now
	if err := p.out.Send(p.protocol.EncodeMove(pose.Move(p.seq))); err != nil {
		return false, errors.Wrap(err, "publish pose")
	}
	return true, nil
}

// Seq is the sequence number of the last published pose.
func (p *Publisher) Seq() uint32 { return p.seq }

// Relay forwards tracker events as server claims.
type Relay struct {
	protocol *network.Protocol
	out      Sender
}

// NewRelay creates a relay.
func NewRelay(p *network.Protocol, out Sender) *Relay {
	return &Relay{protocol: p, out: out}
}

// Forward sends one frame per checkpoint and lap event. A finish needs no
// frame of its own: the server decides it from the lap claim.
func (r *Relay) Forward(events []progress.Event) error {
	for _, ev := range events {
		var frame []byte
		switch ev.Kind {
		case progress.CheckpointPassed:
			frame = r.protocol.EncodeCheckpoint(ev.Checkpoint)
		case progress.LapCompleted:
			frame = r.protocol.EncodeLapComplete(ev.Lap)
		default:
			continue
		}
		if err := r.out.Send(frame); err != nil {
			return errors.Wrapf(err, "relay %s", ev.Kind)
		}
	}
	return nil
}
