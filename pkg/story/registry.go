package story

import (
	"context"
	"sync"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Registry owns one Orchestrator per workspace. Workspaces share the store;
// their session and archive records are scoped by workspace ID.
//
// Orchestrators stay cached until Evict drops the idle ones. Their state is
// persisted, so an evicted workspace resumes on its next request.
type Registry struct {
	mu      sync.Mutex
	items   map[string]*registryEntry
	gateway Gateway
	store   storage.Store
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

type registryEntry struct {
	orchestrator *Orchestrator
	lastUsed     time.Time
}

func NewRegistry(gateway Gateway, store storage.Store) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		items:   make(map[string]*registryEntry),
		gateway: gateway,
		store:   store,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Get returns the workspace's orchestrator, resuming its persisted session on first use.
func (r *Registry) Get(ctx context.Context, workspaceID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.items[workspaceID]; ok {
		e.lastUsed = r.now()
		return e.orchestrator
	}
	o := New(ctx, Options{
		Gateway:     r.gateway,
		Store:       r.store,
		Archive:     NewArchive(r.store, ScopedKey(ArchiveKey, workspaceID)),
		SessionKey:  ScopedKey(SessionKey, workspaceID),
		BaseContext: r.ctx,
	})
	r.items[workspaceID] = &registryEntry{orchestrator: o, lastUsed: r.now()}
	log.Debugf("Registry: workspace %s loaded (%d active).", workspaceID, len(r.items))
	return o
}

// Len reports how many workspaces are cached.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Evict drops workspaces unused for at least idle that have no run in
// flight and no subscribers. It returns how many were dropped.
func (r *Registry) Evict(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	evicted := 0
	for id, e := range r.items {
		if e.lastUsed.After(cutoff) || !e.orchestrator.idle() {
			continue
		}
		delete(r.items, id)
		evicted++
	}
	if evicted > 0 {
		log.Infof("Registry: evicted %d idle workspaces (%d active).", evicted, len(r.items))
	}
	return evicted
}

// RunEviction calls Evict every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict(idle)
		}
	}
}

// Shutdown cancels every in-flight run and waits for the runs to settle.
// Cancelled runs persist their partial results before returning.
func (r *Registry) Shutdown() {
	r.cancel()
	r.mu.Lock()
	items := make([]*Orchestrator, 0, len(r.items))
	for _, e := range r.items {
		items = append(items, e.orchestrator)
	}
	r.mu.Unlock()
	for _, o := range items {
		o.Wait()
	}
}

// ScopedKey namespaces a record key to a workspace.
func ScopedKey(key, workspaceID string) string {
	if workspaceID == "" {
		return key
	}
	return key + ":" + workspaceID
}
