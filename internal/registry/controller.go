package registry

import (
	"context"
	"log"
	"time"

	"github.com/clevio/dashboard/internal/model"
	"github.com/clevio/dashboard/internal/wa"
)

// initTimeout bounds one client initialization attempt. Pairing itself
// happens after Initialize returns and is not covered by this deadline.
const initTimeout = 2 * time.Minute

// initClient starts the handle off the event-dispatch path. An
// initialization failure marks the record failed; the record is kept so the
// operator can rescan or delete it.
func (r *Registry) initClient(name string, epoch uint64, client wa.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	if err := client.Initialize(ctx); err != nil {
		log.Printf("registry: session %s: initialization failed: %v", name, err)
		r.apply(name, epoch, func(rec *record) {
			rec.status = model.StatusFailed
			rec.pairingPayload = ""
		})
	}
}

// runController is the per-handle event loop: it consumes the client's event
// stream and translates each event into exactly one record mutation followed
// by a broadcast. It exits when the handle's event channel closes.
func (r *Registry) runController(name string, epoch uint64, client wa.Client) {
	for ev := range client.Events() {
		switch ev.Type {
		case wa.EventPairingCode:
			r.apply(name, epoch, func(rec *record) {
				rec.status = model.StatusAwaitingScan
				rec.pairingPayload = ev.PairingPayload
			})
		case wa.EventAuthenticated:
			r.apply(name, epoch, func(rec *record) {
				rec.status = model.StatusAuthenticated
				rec.pairingPayload = ""
			})
		case wa.EventReady:
			r.apply(name, epoch, func(rec *record) {
				rec.status = model.StatusReady
				rec.pairingPayload = ""
			})
		case wa.EventAuthFailed:
			log.Printf("registry: session %s: authentication failed: %s", name, ev.Reason)
			r.apply(name, epoch, func(rec *record) {
				rec.status = model.StatusFailed
				rec.pairingPayload = ""
			})
		case wa.EventDisconnected:
			log.Printf("registry: session %s: disconnected: %s", name, ev.Reason)
			r.apply(name, epoch, func(rec *record) {
				rec.status = model.StatusDisconnected
				rec.pairingPayload = ""
			})
		case wa.EventMessage:
			if ev.Message != nil {
				r.forwardMessage(name, epoch, *ev.Message)
			}
		}
	}
}

// apply runs one atomic record mutation and broadcasts the result. The
// mutation is dropped when the record is gone or the handle is stale, so a
// late event from a torn-down handle (e.g. a Ready arriving mid-rescan) can
// never overwrite fresher state.
func (r *Registry) apply(name string, epoch uint64, mutate func(*record)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.sessions[name]
	if !exists || rec.epoch != epoch {
		return false
	}
	mutate(rec)
	r.broadcastLocked()
	return true
}

// forwardMessage hands an inbound message to the webhook forwarder. Delivery
// runs asynchronously and never blocks this session's event loop or any
// other. Messages never mutate status or pairing payload.
func (r *Registry) forwardMessage(name string, epoch uint64, msg model.InboundMessage) {
	r.mu.RLock()
	rec, exists := r.sessions[name]
	var url string
	if exists && rec.epoch == epoch {
		url = rec.webhook
	} else {
		exists = false
	}
	r.mu.RUnlock()

	if !exists {
		return
	}
	r.forwarder.Forward(name, url, msg)
}
