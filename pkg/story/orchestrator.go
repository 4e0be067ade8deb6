package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Default record keys. Registry scopes them per workspace.
const (
	SessionKey = "storycanvas_active_session"
	ArchiveKey = "storycanvas_archives"
)

const noticeCancelled = "generation cancelled"

// GenerateRequest is the user input that starts a run.
type GenerateRequest struct {
	Story       string
	Style       string
	AspectRatio string
}

// Options configures an Orchestrator.
type Options struct {
	Gateway    Gateway
	Store      storage.Store
	Archive    *Archive
	SessionKey string
	// BaseContext bounds runs started with Start and StartRetry. Defaults to context.Background().
	BaseContext context.Context
}

// Orchestrator is the session state machine of one workspace:
//
//	Idle -> Analyzing -> Rendering -> Ready
//
// Render calls are issued one at a time in scene order. Results are written
// back by scene ID. The mutex is never held across a gateway call.
type Orchestrator struct {
	mu      sync.Mutex
	session Session
	cancel  context.CancelFunc

	gateway    Gateway
	store      storage.Store
	archive    *Archive
	sessionKey string
	baseCtx    context.Context

	subscribers map[int]chan Session
	nextSubID   int

	wg    sync.WaitGroup
	newID func() string
	now   func() time.Time
}

// New builds an orchestrator and resumes the persisted session, if any.
func New(ctx context.Context, opts Options) *Orchestrator {
	if opts.SessionKey == "" {
		opts.SessionKey = SessionKey
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Archive == nil {
		opts.Archive = NewArchive(opts.Store, ArchiveKey)
	}
	o := &Orchestrator{
		gateway:     opts.Gateway,
		store:       opts.Store,
		archive:     opts.Archive,
		sessionKey:  opts.SessionKey,
		baseCtx:     opts.BaseContext,
		subscribers: make(map[int]chan Session),
		newID:       uuid.NewString,
		now:         time.Now,
	}
	o.session = o.resume(ctx)
	return o
}

// Archive exposes the history of completed runs.
func (o *Orchestrator) Archive() *Archive {
	return o.archive
}

// Snapshot returns a copy of the current session.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.clone()
}

// idle reports whether nothing holds on to the orchestrator: no run or
// retry in flight and no subscribers.
func (o *Orchestrator) idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.session.Busy() && o.cancel == nil && len(o.subscribers) == 0
}

// Subscribe returns a channel receiving a snapshot after every state change.
// Slow readers only see the latest snapshot. Call the returned func to stop.
func (o *Orchestrator) Subscribe() (<-chan Session, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSubID
	o.nextSubID++
	ch := make(chan Session, 1)
	ch <- o.session.clone()
	o.subscribers[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(c)
		}
	}
}

// Generate runs a full pipeline synchronously: decomposition, then one render
// call per scene in order, then archiving. It returns ErrAnalysisFailed when the
// decomposition is empty, and the context error when the run was cancelled.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) error {
	runCtx, err := o.begin(ctx, req)
	if err != nil {
		return err
	}
	return o.run(runCtx, req)
}

// Start validates req and claims the session like Generate, then continues the
// run in the background. Failures after this point surface through the session notice.
func (o *Orchestrator) Start(req GenerateRequest) error {
	runCtx, err := o.begin(o.baseCtx, req)
	if err != nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.run(runCtx, req); err != nil {
			log.Warnf("Orchestrator: background run ended: %v", err)
		}
	}()
	return nil
}

// Cancel stops an in-flight run between scenes. It reports whether a run was active.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Wait blocks until background runs started by Start and StartRetry return.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) begin(ctx context.Context, req GenerateRequest) (context.Context, error) {
	story := strings.TrimSpace(req.Story)
	if story == "" {
		return nil, ErrEmptyStory
	}
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = DefaultAspectRatio
	}
	if !ValidAspectRatio(ratio) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAspectRatio, ratio)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Busy() {
		return nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.session = Session{
		OriginalStory: req.Story,
		StyleInput:    req.Style,
		AspectRatio:   ratio,
		Scenes:        []Scene{},
		IsAnalyzing:   true,
	}
	o.publishLocked()
	return runCtx, nil
}

func (o *Orchestrator) run(ctx context.Context, req GenerateRequest) error {
	descriptors := o.gateway.Decompose(ctx, req.Story, req.Style)
	if len(descriptors) == 0 {
		o.mu.Lock()
		o.session.IsAnalyzing = false
		o.session.Notice = ErrAnalysisFailed.Error()
		o.releaseRunLocked()
		o.settleLocked(ctx)
		o.mu.Unlock()
		log.Warnf("Orchestrator: decomposition returned no scenes.")
		return ErrAnalysisFailed
	}

	o.mu.Lock()
	ids := make([]string, len(descriptors))
	scenes := make([]Scene, len(descriptors))
	for i, d := range descriptors {
		ids[i] = o.newID()
		scenes[i] = Scene{
			ID:           ids[i],
			OriginalText: d.Text,
			ImagePrompt:  d.Prompt,
			MotionPrompt: d.MotionPrompt,
			ShotType:     ShotType(d.ShotType),
			Status:       StatusPending,
		}
	}
	o.session.Scenes = scenes
	o.session.IsAnalyzing = false
	o.session.IsGenerating = true
	o.publishLocked()
	o.mu.Unlock()
	log.Infof("Orchestrator: rendering %d scenes.", len(ids))

	var runErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		o.renderScene(ctx, id)
	}

	o.mu.Lock()
	if runErr != nil {
		for i := range o.session.Scenes {
			if !o.session.Scenes[i].Status.Terminal() {
				o.session.Scenes[i].Status = StatusFailed
			}
		}
		o.session.Notice = noticeCancelled
	}
	o.session.IsGenerating = false
	o.releaseRunLocked()
	o.settleLocked(ctx)
	finished := o.session.clone()
	o.mu.Unlock()

	if runErr != nil {
		log.Infof("Orchestrator: run cancelled, not archiving.")
		return runErr
	}
	if finished.AllSettled() {
		o.archiveRun(context.WithoutCancel(ctx), finished)
	}
	return nil
}

// renderScene performs one render call for the scene with id and records the outcome.
func (o *Orchestrator) renderScene(ctx context.Context, id string) {
	o.mu.Lock()
	idx := o.session.indexOf(id)
	if idx < 0 {
		o.mu.Unlock()
		return
	}
	o.session.Scenes[idx].Status = StatusGenerating
	prompt := o.session.Scenes[idx].ImagePrompt
	ratio := o.session.AspectRatio
	o.publishLocked()
	o.mu.Unlock()

	url, ok := o.gateway.RenderImage(ctx, prompt, ratio)

	o.mu.Lock()
	defer o.mu.Unlock()
	// Write back by ID, not by the index captured before the call.
	idx = o.session.indexOf(id)
	if idx < 0 {
		return
	}
	if ok {
		o.session.Scenes[idx].ImageURL = url
		o.session.Scenes[idx].Status = StatusCompleted
	} else {
		o.session.Scenes[idx].ImageURL = ""
		o.session.Scenes[idx].Status = StatusFailed
		log.Warnf("Orchestrator: scene %s failed to render.", id)
	}
	o.publishLocked()
}

// Retry re-issues the render call for one scene. It reports false, and does
// nothing, when no scene has that ID. Cancel stops a retry like a full run.
func (o *Orchestrator) Retry(ctx context.Context, sceneID string) (bool, error) {
	runCtx, err := o.beginRetry(ctx, sceneID)
	if err != nil {
		if errors.Is(err, errSceneMissing) {
			return false, nil
		}
		return false, err
	}
	o.finishRetry(runCtx, sceneID)
	return true, nil
}

// StartRetry is Retry with the render call running in the background.
func (o *Orchestrator) StartRetry(sceneID string) (bool, error) {
	runCtx, err := o.beginRetry(o.baseCtx, sceneID)
	if err != nil {
		if errors.Is(err, errSceneMissing) {
			return false, nil
		}
		return false, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.finishRetry(runCtx, sceneID)
	}()
	return true, nil
}

var errSceneMissing = errors.New("scene not found")

func (o *Orchestrator) beginRetry(ctx context.Context, sceneID string) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Busy() {
		return nil, ErrBusy
	}
	if o.session.indexOf(sceneID) < 0 {
		return nil, errSceneMissing
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.session.IsGenerating = true
	o.session.Notice = ""
	o.publishLocked()
	return runCtx, nil
}

func (o *Orchestrator) finishRetry(ctx context.Context, sceneID string) {
	if ctx.Err() == nil {
		o.renderScene(ctx, sceneID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if idx := o.session.indexOf(sceneID); ctx.Err() != nil && idx >= 0 && o.session.Scenes[idx].Status != StatusCompleted {
		o.session.Scenes[idx].Status = StatusFailed
		o.session.Notice = noticeCancelled
	}
	o.session.IsGenerating = false
	o.releaseRunLocked()
	o.settleLocked(ctx)
}

// Reset clears the live session and deletes its persisted record. The archive is kept.
func (o *Orchestrator) Reset(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Busy() {
		return ErrBusy
	}
	o.session = emptySession()
	if err := o.store.Delete(ctx, o.sessionKey); err != nil {
		log.Errorf("Orchestrator: failed to delete persisted session: %v", err)
	}
	o.publishLocked()
	return nil
}

// LoadProject replaces the live session with an archived project. Overwriting
// a session that has scenes requires confirmation.
func (o *Orchestrator) LoadProject(ctx context.Context, id string, confirmed bool) error {
	project, err := o.archive.Get(ctx, id)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Busy() {
		return ErrBusy
	}
	if len(o.session.Scenes) > 0 && !confirmed {
		return ErrConfirmationRequired
	}
	ratio := project.AspectRatio
	if !ValidAspectRatio(ratio) {
		ratio = DefaultAspectRatio
	}
	o.session = Session{
		OriginalStory: project.Story,
		StyleInput:    project.Style,
		AspectRatio:   ratio,
		Scenes:        append([]Scene{}, project.Scenes...),
	}
	o.settleLocked(ctx)
	return nil
}

func (o *Orchestrator) archiveRun(ctx context.Context, s Session) {
	project := ArchivedProject{
		ID:          "proj-" + o.newID(),
		Timestamp:   o.now().UnixMilli(),
		Story:       s.OriginalStory,
		Style:       s.StyleInput,
		AspectRatio: s.AspectRatio,
		Scenes:      s.Scenes,
	}
	if err := o.archive.Save(ctx, project); err != nil {
		log.Errorf("Orchestrator: failed to archive run: %v", err)
		return
	}
	log.Infof("Orchestrator: archived project %s with %d scenes.", project.ID, len(project.Scenes))
}

// releaseRunLocked drops the cancel func of the run that is settling.
func (o *Orchestrator) releaseRunLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// settleLocked persists the session and notifies subscribers. A session
// without scenes has nothing worth resuming, so its record is removed.
func (o *Orchestrator) settleLocked(ctx context.Context) {
	o.publishLocked()
	if o.session.Busy() {
		return
	}
	// Persistence must not be skipped because the run's own context was cancelled.
	ctx = context.WithoutCancel(ctx)

	if len(o.session.Scenes) == 0 {
		if err := o.store.Delete(ctx, o.sessionKey); err != nil {
			log.Errorf("Orchestrator: failed to clear persisted session: %v", err)
		}
		return
	}
	raw, err := json.Marshal(o.session)
	if err != nil {
		log.Errorf("Orchestrator: failed to encode session: %v", err)
		return
	}
	if err := o.store.Set(ctx, o.sessionKey, raw); err != nil {
		log.Errorf("Orchestrator: failed to persist session: %v", err)
	}
}

func (o *Orchestrator) publishLocked() {
	for _, ch := range o.subscribers {
		snap := o.session.clone()
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot so the reader sees the latest one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// resume loads the persisted session. Busy flags are cleared because no
// in-flight request survives a restart, and scenes left pending or generating
// are marked failed so they can be retried.
func (o *Orchestrator) resume(ctx context.Context) Session {
	raw, err := o.store.Get(ctx, o.sessionKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Errorf("Orchestrator: session recovery failed: %v", err)
		}
		return emptySession()
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		log.Errorf("Orchestrator: corrupt persisted session, starting fresh: %v", err)
		return emptySession()
	}
	if s.Scenes == nil {
		s.Scenes = []Scene{}
	}
	if !ValidAspectRatio(s.AspectRatio) {
		s.AspectRatio = DefaultAspectRatio
	}

	interrupted := s.Busy()
	s.IsAnalyzing, s.IsGenerating = false, false
	for i := range s.Scenes {
		if !s.Scenes[i].Status.Terminal() {
			s.Scenes[i].Status = StatusFailed
			interrupted = true
		}
	}
	if interrupted {
		log.Infof("Orchestrator: resumed an interrupted session; unfinished scenes marked failed.")
		if raw, err := json.Marshal(s); err == nil {
			if err := o.store.Set(ctx, o.sessionKey, raw); err != nil {
				log.Errorf("Orchestrator: failed to persist resumed session: %v", err)
			}
		}
	}
	return s
}
