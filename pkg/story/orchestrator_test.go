package story

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/llm"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/storage"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu             sync.Mutex
	descriptors    []llm.SceneDescriptor
	decomposeCalls int
	rendered       []string
	ratios         []string
	// render decides the outcome per prompt; nil means every render succeeds.
	render   func(prompt string) (string, bool)
	onRender func(ctx context.Context, prompt string)
}

func (f *fakeGateway) Decompose(_ context.Context, _, _ string) []llm.SceneDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decomposeCalls++
	return f.descriptors
}

func (f *fakeGateway) RenderImage(ctx context.Context, prompt, ratio string) (string, bool) {
	f.mu.Lock()
	f.rendered = append(f.rendered, prompt)
	f.ratios = append(f.ratios, ratio)
	render, onRender := f.render, f.onRender
	f.mu.Unlock()

	if onRender != nil {
		onRender(ctx, prompt)
	}
	if render == nil {
		return "data:image/png;base64,AAAA", true
	}
	return render(prompt)
}

func (f *fakeGateway) renderCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rendered...)
}

func descriptors(n int) []llm.SceneDescriptor {
	out := make([]llm.SceneDescriptor, n)
	for i := range out {
		shot := llm.ShotMain
		if i%2 == 1 {
			shot = llm.ShotBRoll
		}
		out[i] = llm.SceneDescriptor{
			Text:         fmt.Sprintf("excerpt %d", i),
			Prompt:       fmt.Sprintf("prompt %d", i),
			MotionPrompt: "slow pan",
			ShotType:     shot,
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, gw *fakeGateway, store storage.Store) *Orchestrator {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return New(context.Background(), Options{Gateway: gw, Store: store})
}

func TestGenerate_SingleSceneCompletes(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{descriptors: []llm.SceneDescriptor{{
		Text: "A knight walks into a tavern.", Prompt: "knight", MotionPrompt: "dolly in", ShotType: llm.ShotMain,
	}}}
	o := newTestOrchestrator(t, gw, nil)

	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "A knight walks into a tavern."}))

	s := o.Snapshot()
	require.Equal(t, StateReady, s.State())
	require.Len(t, s.Scenes, 1)
	require.Equal(t, StatusCompleted, s.Scenes[0].Status)
	require.Equal(t, ShotMain, s.Scenes[0].ShotType)
	require.NotEmpty(t, s.Scenes[0].ImageURL)
	require.Equal(t, DefaultAspectRatio, s.AspectRatio)
	require.Equal(t, 1, gw.decomposeCalls)
	require.Len(t, o.Archive().List(ctx), 1)
}

func TestGenerate_EmptyDecompositionReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	store := storage.NewMemoryStore()
	o := newTestOrchestrator(t, gw, store)

	err := o.Generate(ctx, GenerateRequest{Story: "Nothing happens."})
	require.ErrorIs(t, err, ErrAnalysisFailed)

	s := o.Snapshot()
	require.Equal(t, StateIdle, s.State())
	require.Empty(t, s.Scenes)
	require.NotEmpty(t, s.Notice)
	require.Empty(t, gw.renderCalls())
	require.Empty(t, o.Archive().List(ctx))

	_, err = store.Get(ctx, SessionKey)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGenerate_PartialFailureStillArchives(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{
		descriptors: descriptors(2),
		render: func(prompt string) (string, bool) {
			if prompt == "prompt 1" {
				return "", false
			}
			return "data:image/png;base64,AAAA", true
		},
	}
	o := newTestOrchestrator(t, gw, nil)

	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "Two beats."}))

	s := o.Snapshot()
	require.Equal(t, StatusCompleted, s.Scenes[0].Status)
	require.Equal(t, StatusFailed, s.Scenes[1].Status)
	require.Empty(t, s.Scenes[1].ImageURL)
	require.Len(t, o.Archive().List(ctx), 1)
}

func TestRetry_OnlyTouchesTargetScene(t *testing.T) {
	ctx := context.Background()
	fail := true
	gw := &fakeGateway{
		descriptors: descriptors(2),
		render: func(prompt string) (string, bool) {
			if prompt == "prompt 1" && fail {
				return "", false
			}
			return "data:image/png;base64," + prompt, true
		},
	}
	o := newTestOrchestrator(t, gw, nil)
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "Two beats."}))
	before := o.Snapshot()

	fail = false
	issued, err := o.Retry(ctx, before.Scenes[1].ID)
	require.NoError(t, err)
	require.True(t, issued)

	after := o.Snapshot()
	require.Equal(t, before.Scenes[0], after.Scenes[0])
	require.Equal(t, StatusCompleted, after.Scenes[1].Status)
	require.Equal(t, "data:image/png;base64,prompt 1", after.Scenes[1].ImageURL)
	require.Equal(t, StateReady, after.State())
	require.Equal(t, []string{"prompt 0", "prompt 1", "prompt 1"}, gw.renderCalls())
	// retries do not create archive entries
	require.Len(t, o.Archive().List(ctx), 1)
}

func TestRetry_UnknownSceneIsNoop(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{descriptors: descriptors(1)}
	o := newTestOrchestrator(t, gw, nil)
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "One beat."}))
	before := o.Snapshot()

	issued, err := o.Retry(ctx, "no-such-scene")
	require.NoError(t, err)
	require.False(t, issued)
	require.Equal(t, before, o.Snapshot())
	require.Len(t, gw.renderCalls(), 1)
}

func TestGenerate_RendersStrictlyInOrder(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{descriptors: descriptors(5)}
	o := newTestOrchestrator(t, gw, nil)

	var violations []string
	gw.onRender = func(_ context.Context, prompt string) {
		s := o.Snapshot()
		var current int
		_, err := fmt.Sscanf(prompt, "prompt %d", &current)
		require.NoError(t, err)
		for i, sc := range s.Scenes {
			switch {
			case i < current && !sc.Status.Terminal():
				violations = append(violations, fmt.Sprintf("scene %d not settled before %d", i, current))
			case i == current && sc.Status != StatusGenerating:
				violations = append(violations, fmt.Sprintf("scene %d is %s while rendering", i, sc.Status))
			case i > current && sc.Status != StatusPending:
				violations = append(violations, fmt.Sprintf("scene %d started early", i))
			}
		}
	}

	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "Five beats."}))
	require.Empty(t, violations)
	require.Equal(t, []string{"prompt 0", "prompt 1", "prompt 2", "prompt 3", "prompt 4"}, gw.renderCalls())

	s := o.Snapshot()
	require.Len(t, s.Scenes, 5)
	for i, sc := range s.Scenes {
		require.Equal(t, fmt.Sprintf("excerpt %d", i), sc.OriginalText)
	}
}

func TestGenerate_PassesAspectRatio(t *testing.T) {
	gw := &fakeGateway{descriptors: descriptors(2)}
	o := newTestOrchestrator(t, gw, nil)

	require.NoError(t, o.Generate(context.Background(), GenerateRequest{Story: "s", AspectRatio: AspectVertical}))
	require.Equal(t, []string{AspectVertical, AspectVertical}, gw.ratios)
}

func TestGenerate_Validation(t *testing.T) {
	gw := &fakeGateway{descriptors: descriptors(1)}
	o := newTestOrchestrator(t, gw, nil)

	require.ErrorIs(t, o.Generate(context.Background(), GenerateRequest{Story: "   \n"}), ErrEmptyStory)
	require.ErrorIs(t, o.Generate(context.Background(), GenerateRequest{Story: "s", AspectRatio: "4:3"}), ErrInvalidAspectRatio)
	require.Zero(t, gw.decomposeCalls)
}

func TestArchive_KeepsTenMostRecent(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{descriptors: descriptors(1)}
	o := newTestOrchestrator(t, gw, nil)

	for i := 0; i < 11; i++ {
		require.NoError(t, o.Generate(ctx, GenerateRequest{Story: fmt.Sprintf("story %d", i)}))
	}

	list := o.Archive().List(ctx)
	require.Len(t, list, ArchiveCapacity)
	for i, p := range list {
		require.Equal(t, fmt.Sprintf("story %d", 10-i), p.Story)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	gw := &fakeGateway{descriptors: descriptors(3)}
	o := newTestOrchestrator(t, gw, store)
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "Round trip.", Style: "Noir", AspectRatio: AspectSquare}))

	reloaded := newTestOrchestrator(t, gw, store)
	require.Equal(t, o.Snapshot(), reloaded.Snapshot())

	s := reloaded.Snapshot()
	require.Equal(t, "Round trip.", s.OriginalStory)
	require.Equal(t, "Noir", s.StyleInput)
	require.Equal(t, AspectSquare, s.AspectRatio)
	require.Len(t, s.Scenes, 3)
}

func TestResume_InterruptedRunMarksScenesFailed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	stale := Session{
		OriginalStory: "Interrupted.",
		AspectRatio:   AspectCinema,
		IsGenerating:  true,
		Scenes: []Scene{
			{ID: "a", Status: StatusCompleted, ImageURL: "data:x", ShotType: ShotMain},
			{ID: "b", Status: StatusGenerating, ShotType: ShotMain},
			{ID: "c", Status: StatusPending, ShotType: ShotBRoll},
		},
	}
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, SessionKey, raw))

	gw := &fakeGateway{}
	o := newTestOrchestrator(t, gw, store)
	s := o.Snapshot()
	require.False(t, s.Busy())
	require.Equal(t, StatusCompleted, s.Scenes[0].Status)
	require.Equal(t, StatusFailed, s.Scenes[1].Status)
	require.Equal(t, StatusFailed, s.Scenes[2].Status)

	issued, err := o.Retry(ctx, "c")
	require.NoError(t, err)
	require.True(t, issued)
	require.Equal(t, StatusCompleted, o.Snapshot().Scenes[2].Status)
}

func TestResume_CorruptSessionFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, SessionKey, []byte("{not json")))
	require.NoError(t, store.Set(ctx, ArchiveKey, []byte("[oops")))

	o := newTestOrchestrator(t, &fakeGateway{}, store)
	require.Equal(t, StateIdle, o.Snapshot().State())
	require.Empty(t, o.Archive().List(ctx))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	o := newTestOrchestrator(t, &fakeGateway{descriptors: descriptors(1)}, store)
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "s", Style: "Noir"}))

	require.ErrorIs(t, o.Reset(ctx, false), ErrConfirmationRequired)
	require.Len(t, o.Snapshot().Scenes, 1)

	require.NoError(t, o.Reset(ctx, true))
	s := o.Snapshot()
	require.Equal(t, StateIdle, s.State())
	require.Empty(t, s.OriginalStory)
	require.Empty(t, s.StyleInput)

	_, err := store.Get(ctx, SessionKey)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Len(t, o.Archive().List(ctx), 1)
}

func TestLoadProject(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeGateway{descriptors: descriptors(2)}, nil)
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "first", AspectRatio: AspectVertical}))
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "second"}))

	list := o.Archive().List(ctx)
	require.Len(t, list, 2)
	first := list[1]

	require.ErrorIs(t, o.LoadProject(ctx, first.ID, false), ErrConfirmationRequired)
	require.Equal(t, "second", o.Snapshot().OriginalStory)

	require.ErrorIs(t, o.LoadProject(ctx, "proj-missing", true), ErrProjectNotFound)

	require.NoError(t, o.LoadProject(ctx, first.ID, true))
	s := o.Snapshot()
	require.Equal(t, "first", s.OriginalStory)
	require.Equal(t, AspectVertical, s.AspectRatio)
	require.Equal(t, first.Scenes, s.Scenes)

	require.NoError(t, o.Reset(ctx, true))
	require.NoError(t, o.LoadProject(ctx, first.ID, false))
}

func TestArchive_DeleteLeavesSessionAlone(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeGateway{descriptors: descriptors(1)}, nil)
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "keep me"}))
	id := o.Archive().List(ctx)[0].ID

	require.NoError(t, o.Archive().Delete(ctx, id))
	require.Empty(t, o.Archive().List(ctx))
	require.ErrorIs(t, o.Archive().Delete(ctx, id), ErrProjectNotFound)
	require.Equal(t, "keep me", o.Snapshot().OriginalStory)
}

func TestStart_BusyAndCancel(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	gw := &fakeGateway{descriptors: descriptors(3)}
	gw.onRender = func(rctx context.Context, _ string) {
		started <- struct{}{}
		select {
		case <-release:
		case <-rctx.Done():
		}
	}
	gw.render = func(string) (string, bool) { return "", false }
	o := newTestOrchestrator(t, gw, nil)

	require.NoError(t, o.Start(GenerateRequest{Story: "long story"}))
	<-started

	require.ErrorIs(t, o.Start(GenerateRequest{Story: "another"}), ErrBusy)
	_, err := o.Retry(ctx, o.Snapshot().Scenes[0].ID)
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, o.Reset(ctx, true), ErrBusy)

	require.True(t, o.Cancel())
	o.Wait()

	s := o.Snapshot()
	require.False(t, s.Busy())
	for _, sc := range s.Scenes {
		require.Equal(t, StatusFailed, sc.Status)
	}
	require.Len(t, gw.renderCalls(), 1)
	require.Empty(t, o.Archive().List(ctx))
	require.False(t, o.Cancel())
}

func TestStartRetry_CanBeCancelled(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{descriptors: descriptors(2)}
	o := newTestOrchestrator(t, gw, nil)
	require.NoError(t, o.Generate(ctx, GenerateRequest{Story: "s"}))
	before := o.Snapshot()

	started := make(chan struct{}, 1)
	gw.mu.Lock()
	gw.onRender = func(rctx context.Context, _ string) {
		started <- struct{}{}
		<-rctx.Done()
	}
	gw.render = func(string) (string, bool) { return "", false }
	gw.mu.Unlock()

	issued, err := o.StartRetry(before.Scenes[1].ID)
	require.NoError(t, err)
	require.True(t, issued)
	<-started
	require.Equal(t, StateRendering, o.Snapshot().State())

	require.True(t, o.Cancel())
	o.Wait()

	after := o.Snapshot()
	require.False(t, after.Busy())
	require.Equal(t, StatusFailed, after.Scenes[1].Status)
	require.Equal(t, before.Scenes[0], after.Scenes[0])
	require.Equal(t, noticeCancelled, after.Notice)
	require.False(t, o.Cancel())
}

func TestRetry_ClearsCancelledNotice(t *testing.T) {
	store := storage.NewMemoryStore()
	runCtx, cancel := context.WithCancel(context.Background())
	gw := &fakeGateway{descriptors: descriptors(2)}
	gw.onRender = func(context.Context, string) { cancel() }
	o := newTestOrchestrator(t, gw, store)

	require.ErrorIs(t, o.Generate(runCtx, GenerateRequest{Story: "s"}), context.Canceled)
	s := o.Snapshot()
	require.Equal(t, noticeCancelled, s.Notice)
	require.Equal(t, StatusFailed, s.Scenes[1].Status)

	gw.mu.Lock()
	gw.onRender = nil
	gw.mu.Unlock()
	issued, err := o.Retry(context.Background(), s.Scenes[1].ID)
	require.NoError(t, err)
	require.True(t, issued)

	s = o.Snapshot()
	require.Equal(t, StatusCompleted, s.Scenes[1].Status)
	require.Empty(t, s.Notice)

	raw, err := store.Get(context.Background(), SessionKey)
	require.NoError(t, err)
	var persisted Session
	require.NoError(t, json.Unmarshal(raw, &persisted))
	require.Empty(t, persisted.Notice)
}

func TestSubscribe_ReceivesLatestSnapshot(t *testing.T) {
	o := newTestOrchestrator(t, &fakeGateway{descriptors: descriptors(2)}, nil)
	updates, stop := o.Subscribe()
	defer stop()

	initial := <-updates
	require.Equal(t, StateIdle, initial.State())

	require.NoError(t, o.Generate(context.Background(), GenerateRequest{Story: "s"}))

	select {
	case s := <-updates:
		require.Equal(t, StateReady, s.State())
		require.True(t, s.AllSettled())
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestRegistry_ScopesWorkspaces(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	reg := NewRegistry(&fakeGateway{descriptors: descriptors(1)}, store)
	defer reg.Shutdown()

	a := reg.Get(ctx, "ws-a")
	require.Same(t, a, reg.Get(ctx, "ws-a"))
	b := reg.Get(ctx, "ws-b")

	require.NoError(t, a.Generate(ctx, GenerateRequest{Story: "only in a"}))
	require.Empty(t, b.Snapshot().Scenes)
	require.Empty(t, b.Archive().List(ctx))

	_, err := store.Get(ctx, ScopedKey(SessionKey, "ws-a"))
	require.NoError(t, err)
}

func TestRegistry_EvictsIdleWorkspaces(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	reg := NewRegistry(&fakeGateway{descriptors: descriptors(1)}, store)
	defer reg.Shutdown()
	now := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return now }

	a := reg.Get(ctx, "ws-a")
	require.NoError(t, a.Generate(ctx, GenerateRequest{Story: "kept on disk"}))
	b := reg.Get(ctx, "ws-b")
	_, stop := b.Subscribe()
	defer stop()

	now = now.Add(10 * time.Minute)
	require.Zero(t, reg.Evict(30*time.Minute))

	now = now.Add(time.Hour)
	require.Equal(t, 1, reg.Evict(30*time.Minute))
	require.Equal(t, 1, reg.Len())
	require.Same(t, b, reg.Get(ctx, "ws-b"))

	resumed := reg.Get(ctx, "ws-a")
	require.NotSame(t, a, resumed)
	require.Equal(t, "kept on disk", resumed.Snapshot().OriginalStory)
	require.Len(t, resumed.Archive().List(ctx), 1)
}
