// Package notify turns tunnel lifecycle events into dashboard messages and
// client webhooks.
package notify

import (
	"context"
	"log"
	"sync"

	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/logutil"
	"github.com/borui/borui/internal/tunnel"
	"github.com/borui/borui/internal/webhook"
)

// Broadcaster is the part of dashboard.Broadcaster the dispatcher uses.
type Broadcaster interface {
	Broadcast(dashboard.Message) int
}

// WebhookSource resolves a client's webhook. ok is false when none is set.
type WebhookSource interface {
	ClientWebhook(id int64) (webhook.Target, webhook.Notification, bool, error)
}

type Sender interface {
	Send(ctx context.Context, target webhook.Target, note webhook.Notification) error
}

// Dispatcher is the event sink shared by both lifecycle managers.
type Dispatcher struct {
	ctx    context.Context
	bc     Broadcaster
	hooks  WebhookSource
	sender Sender
	wg     sync.WaitGroup

	// History, when set, records every event before it is broadcast.
	History *History
}

// New returns a Dispatcher. Webhook deliveries in flight are abandoned when
// ctx is cancelled.
func New(ctx context.Context, bc Broadcaster, hooks WebhookSource, sender Sender) *Dispatcher {
	return &Dispatcher{ctx: ctx, bc: bc, hooks: hooks, sender: sender}
}

// Handle implements tunnel.EventSink. It never blocks on delivery.
func (d *Dispatcher) Handle(ev tunnel.Event) {
	if d.History != nil {
		d.History.Record(ev)
	}
	d.bc.Broadcast(dashboard.ConnectionEvent(ev))

	if ev.Kind != tunnel.KindClient {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(ev)
	}()
}

func (d *Dispatcher) deliver(ev tunnel.Event) {
	target, note, ok, err := d.hooks.ClientWebhook(ev.ID)
	if err != nil {
		log.Printf("[notify] load webhook for client %d: %v", ev.ID, err)
		return
	}
	if !ok {
		return
	}

	note.Time = ev.Time
	switch ev.Type {
	case tunnel.EventConnected:
		note.Event = webhook.Connected
		note.AssignedPort = ev.AssignedPort
	default:
		// A crashed tunnel is announced as a disconnect.
		note.Event = webhook.Disconnected
		note.UptimeSeconds = ev.Uptime
	}

	if err := d.sender.Send(d.ctx, target, note); err != nil {
		log.Printf("[notify] webhook for client %s (%s): %v",
			logutil.SanitizeForLog(note.ClientName), note.Event, err)
	}
}

// Wait blocks until every webhook delivery started so far has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }
