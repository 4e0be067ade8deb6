package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// ArchiveCapacity is the number of most recent completed runs kept.
const ArchiveCapacity = 10

// Archive is the bounded newest-first history of completed runs,
// stored as one JSON array under a single key.
type Archive struct {
	mu    sync.Mutex
	store storage.Store
	key   string
}

func NewArchive(store storage.Store, key string) *Archive {
	return &Archive{store: store, key: key}
}

// List returns the archive, newest first. Unreadable data is logged and
// treated as an empty archive.
func (a *Archive) List(ctx context.Context) []ArchivedProject {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load(ctx)
}

// Save prepends project and evicts the oldest entries beyond ArchiveCapacity.
func (a *Archive) Save(ctx context.Context, project ArchivedProject) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	projects := append([]ArchivedProject{project}, a.load(ctx)...)
	if len(projects) > ArchiveCapacity {
		projects = projects[:ArchiveCapacity]
	}
	return a.persist(ctx, projects)
}

func (a *Archive) Get(ctx context.Context, id string) (ArchivedProject, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.load(ctx) {
		if p.ID == id {
			return p, nil
		}
	}
	return ArchivedProject{}, ErrProjectNotFound
}

func (a *Archive) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	projects := a.load(ctx)
	kept := projects[:0]
	for _, p := range projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(projects) {
		return ErrProjectNotFound
	}
	return a.persist(ctx, kept)
}

func (a *Archive) load(ctx context.Context) []ArchivedProject {
	raw, err := a.store.Get(ctx, a.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Errorf("Archive: failed to read %s: %v", a.key, err)
		}
		return []ArchivedProject{}
	}
	var projects []ArchivedProject
	if err := json.Unmarshal(raw, &projects); err != nil {
		log.Errorf("Archive: corrupt data under %s, starting empty: %v", a.key, err)
		return []ArchivedProject{}
	}
	return projects
}

func (a *Archive) persist(ctx context.Context, projects []ArchivedProject) error {
	raw, err := json.Marshal(projects)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := a.store.Set(ctx, a.key, raw); err != nil {
		return fmt.Errorf("persist archive: %w", err)
	}
	return nil
}
