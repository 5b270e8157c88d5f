package eventbus

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"caseboard/pkg/domain"
)

// Envelope is the wire form of a relayed event. Origin identifies the
// publishing relay instance so a relay can skip its own messages when they
// come back around.
type Envelope struct {
	Origin  string         `json:"origin"`
	Kind    Kind           `json:"kind"`
	Patches []domain.Patch `json:"patches,omitempty"`
}

// Relay mirrors bus events onto a Redis channel and republishes events from
// other board instances locally, keeping overlays of multiple processes in
// step. Construction is optional; a single-process deployment runs without
// a relay.
type Relay struct {
	bus         *Bus
	client      *redis.Client
	channel     string
	origin      string
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

// NewRelay connects a bus to a Redis channel. The returned relay is already
// running; call Close to detach it.
func NewRelay(ctx context.Context, bus *Bus, client *redis.Client, channel string) (*Relay, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		bus:     bus,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.unsubscribe = bus.Subscribe(r.forward)
	sub := client.Subscribe(runCtx, channel)
	go r.receive(runCtx, sub)
	return r, nil
}

func (r *Relay) forward(ev Event) {
	if ev.Source != "" {
		return
	}
	payload, err := json.Marshal(Envelope{Origin: r.origin, Kind: ev.Kind, Patches: ev.Patches})
	if err != nil {
		return
	}
	// Fire and forget; a missed relay message is recovered by the next
	// snapshot reconciliation on the remote side.
	_ = r.client.Publish(context.Background(), r.channel, payload).Err()
}

func (r *Relay) receive(ctx context.Context, sub *redis.PubSub) {
	defer close(r.done)
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.bus.Publish(Event{Kind: env.Kind, Patches: env.Patches, Source: env.Origin})
		}
	}
}

// Close detaches the relay from the bus and stops the receive loop.
func (r *Relay) Close() error {
	r.unsubscribe()
	r.cancel()
	<-r.done
	return nil
}
