// Package registry owns the authoritative map of session name to session
// record. It is the only place that creates or deletes records; every record
// mutation is followed by a snapshot broadcast.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/clevio/dashboard/internal/broadcast"
	"github.com/clevio/dashboard/internal/model"
	"github.com/clevio/dashboard/internal/store"
	"github.com/clevio/dashboard/internal/wa"
	"github.com/clevio/dashboard/internal/webhook"
)

// record is one live session. The registry mutex serializes every mutation;
// epoch identifies the handle generation so events from a torn-down handle
// cannot overwrite state written by its replacement.
type record struct {
	name           string
	status         model.Status
	pairingPayload string
	webhook        string
	createdAt      time.Time

	client     wa.Client
	epoch      uint64
	rescanning bool
}

// Registry manages the full session set.
type Registry struct {
	store       *store.Store
	broadcaster *broadcast.Broadcaster
	forwarder   *webhook.Forwarder
	factory     wa.Factory

	mu       sync.RWMutex
	sessions map[string]*record
	closed   bool
}

// New creates an empty Registry. Call Restore to recreate persisted sessions.
func New(st *store.Store, b *broadcast.Broadcaster, f *webhook.Forwarder, factory wa.Factory) *Registry {
	return &Registry{
		store:       st,
		broadcaster: b,
		forwarder:   f,
		factory:     factory,
		sessions:    make(map[string]*record),
	}
}

// Create allocates a session in "starting", persists it, and begins
// asynchronous initialization. Pairing and readiness are reported through
// subsequent broadcasts. The existence check and insert happen under one
// lock acquisition, so concurrent Creates for the same name yield exactly
// one success.
func (r *Registry) Create(ctx context.Context, name, webhookURL string) (model.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return model.Summary{}, fmt.Errorf("registry is shut down")
	}
	if _, exists := r.sessions[name]; exists {
		return model.Summary{}, model.ErrDuplicateSession
	}

	rec := &record{
		name:      name,
		status:    model.StatusStarting,
		webhook:   webhookURL,
		createdAt: time.Now().UTC(),
	}
	r.sessions[name] = rec
	r.persistLocked(ctx)

	if err := r.attachLocked(rec); err != nil {
		// The record stays in "failed" rather than being silently removed.
		r.broadcastLocked()
		return rec.summary(), err
	}

	r.broadcastLocked()
	return rec.summary(), nil
}

// attachLocked allocates a fresh handle for rec and wires a controller over
// it. Both Create and Rescan go through this one path so the event wiring
// cannot drift between them. Caller holds r.mu.
func (r *Registry) attachLocked(rec *record) error {
	client, err := r.factory.New(rec.name)
	if err != nil {
		rec.status = model.StatusFailed
		rec.pairingPayload = ""
		return fmt.Errorf("%w: %v", model.ErrClientInit, err)
	}

	rec.epoch++
	rec.client = client
	rec.status = model.StatusStarting
	rec.pairingPayload = ""

	go r.runController(rec.name, rec.epoch, client)
	go r.initClient(rec.name, rec.epoch, client)
	return nil
}

// Delete tears the session's handle down best-effort, removes the record and
// persists the reduced set. In-flight events from the old handle cannot
// resurrect the record afterwards.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	rec, exists := r.sessions[name]
	if !exists {
		r.mu.Unlock()
		return model.ErrSessionNotFound
	}
	if rec.rescanning {
		r.mu.Unlock()
		return model.ErrRescanInProgress
	}
	delete(r.sessions, name)
	client := rec.client
	r.persistLocked(ctx)
	r.broadcastLocked()
	r.mu.Unlock()

	if client != nil {
		if err := client.Destroy(); err != nil {
			log.Printf("registry: session %s: error destroying client: %v", name, err)
		}
	}
	return nil
}

// UpdateWebhook mutates the session's webhook in place. The handle is not
// re-created.
func (r *Registry) UpdateWebhook(ctx context.Context, name, webhookURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.sessions[name]
	if !exists {
		return model.ErrSessionNotFound
	}
	rec.webhook = webhookURL
	r.persistLocked(ctx)
	r.broadcastLocked()
	return nil
}

// Rescan forces re-pairing while preserving the session's name and webhook.
// It is single-flight per name: a rescan already in progress is rejected.
func (r *Registry) Rescan(ctx context.Context, name string) error {
	r.mu.Lock()
	rec, exists := r.sessions[name]
	if !exists {
		r.mu.Unlock()
		return model.ErrSessionNotFound
	}
	if rec.rescanning {
		r.mu.Unlock()
		return model.ErrRescanInProgress
	}
	rec.rescanning = true
	rec.status = model.StatusRescanning
	rec.pairingPayload = ""
	// Invalidate the old handle's epoch up front: events still buffered from
	// it must not touch the record during the teardown window below.
	rec.epoch++
	old := rec.client
	rec.client = nil
	r.broadcastLocked()
	r.mu.Unlock()

	// Graceful teardown of the old handle: logout so the stored credentials
	// are invalidated, then destroy. Failures are logged, not propagated.
	if old != nil {
		if err := old.Logout(); err != nil {
			log.Printf("registry: session %s: logout before rescan failed: %v", name, err)
		}
		if err := old.Destroy(); err != nil {
			log.Printf("registry: session %s: destroy before rescan failed: %v", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, exists = r.sessions[name]
	if !exists {
		// Deleted while we were tearing down; nothing to resurrect.
		return model.ErrSessionNotFound
	}
	rec.rescanning = false
	if err := r.attachLocked(rec); err != nil {
		r.broadcastLocked()
		return err
	}
	r.broadcastLocked()
	return nil
}

// SendMessage sends content through the session's live handle.
func (r *Registry) SendMessage(ctx context.Context, name, target, content string) (string, error) {
	r.mu.RLock()
	rec, exists := r.sessions[name]
	var client wa.Client
	if exists {
		client = rec.client
	}
	r.mu.RUnlock()

	if !exists {
		return "", model.ErrSessionNotFound
	}
	if client == nil {
		return "", fmt.Errorf("%w: session %s has no live handle", model.ErrClientInit, name)
	}
	return client.SendMessage(ctx, target, content)
}

// Snapshot returns the ordered list of session summaries, oldest first.
func (r *Registry) Snapshot() []model.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summariesLocked()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Restore recreates a session per persisted record. Restoration failures are
// logged per record and skipped; one broken record never aborts the others.
func (r *Registry) Restore(ctx context.Context) {
	for _, persisted := range r.store.Load(ctx) {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		if _, exists := r.sessions[persisted.Name]; exists {
			r.mu.Unlock()
			continue
		}
		rec := &record{
			name:      persisted.Name,
			status:    model.StatusStarting,
			webhook:   persisted.Webhook,
			createdAt: persisted.CreatedAt,
		}
		r.sessions[persisted.Name] = rec
		err := r.attachLocked(rec)
		r.broadcastLocked()
		r.mu.Unlock()

		if err != nil {
			log.Printf("registry: error restoring session %s: %v", persisted.Name, err)
		}
	}
}

// Close tears down every controller and handle. The registry rejects new
// sessions afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	clients := make([]wa.Client, 0, len(r.sessions))
	for name, rec := range r.sessions {
		if rec.client != nil {
			clients = append(clients, rec.client)
		}
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	for _, client := range clients {
		if err := client.Destroy(); err != nil {
			log.Printf("registry: error destroying client during shutdown: %v", err)
		}
	}
	r.forwarder.Wait()
}

// summary builds the external view of a record.
func (rec *record) summary() model.Summary {
	return model.Summary{
		Name:           rec.name,
		Status:         rec.status,
		Webhook:        rec.webhook,
		PairingPayload: rec.pairingPayload,
		CreatedAt:      rec.createdAt,
	}
}

// summariesLocked collects the ordered summary list. Caller holds r.mu.
func (r *Registry) summariesLocked() []model.Summary {
	summaries := make([]model.Summary, 0, len(r.sessions))
	for _, rec := range r.sessions {
		summaries = append(summaries, rec.summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// broadcastLocked publishes the current snapshot. Holding r.mu across the
// publish keeps broadcasts strictly ordered with respect to the mutations
// that produced them; Publish itself never blocks.
func (r *Registry) broadcastLocked() {
	frame, err := json.Marshal(r.summariesLocked())
	if err != nil {
		log.Printf("registry: failed to encode snapshot: %v", err)
		return
	}
	r.broadcaster.Publish(frame)
}

// persistLocked saves the durable (name, webhook) set. A write failure is
// logged; the in-memory state stays authoritative until the next save.
func (r *Registry) persistLocked(ctx context.Context) {
	records := make([]model.PersistedSession, 0, len(r.sessions))
	for _, rec := range r.sessions {
		records = append(records, model.PersistedSession{
			Name:      rec.name,
			Webhook:   rec.webhook,
			CreatedAt: rec.createdAt,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Name < records[j].Name
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	if err := r.store.Save(ctx, records); err != nil {
		log.Printf("registry: failed to persist sessions: %v", err)
	}
}
