package story

import (
	"context"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/llm"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is settled (completed or failed).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ShotType string

const (
	ShotMain  ShotType = llm.ShotMain
	ShotBRoll ShotType = llm.ShotBRoll
)

const (
	AspectCinema   = "16:9"
	AspectVertical = "9:16"
	AspectSquare   = "1:1"

	DefaultAspectRatio = AspectCinema
)

// AspectRatios lists the supported ratios in display order.
var AspectRatios = []string{AspectCinema, AspectVertical, AspectSquare}

func ValidAspectRatio(r string) bool {
	for _, a := range AspectRatios {
		if a == r {
			return true
		}
	}
	return false
}

type Scene struct {
	ID           string   `json:"id"`
	OriginalText string   `json:"originalText"`
	ImagePrompt  string   `json:"imagePrompt"`
	MotionPrompt string   `json:"motionPrompt"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Status       Status   `json:"status"`
	ShotType     ShotType `json:"shotType"`
}

// Session is the live, persisted working state of one workspace.
type Session struct {
	OriginalStory string  `json:"originalStory"`
	StyleInput    string  `json:"styleInput"`
	AspectRatio   string  `json:"aspectRatio"`
	Scenes        []Scene `json:"scenes"`
	IsAnalyzing   bool    `json:"isAnalyzing"`
	IsGenerating  bool    `json:"isGenerating"`
	// Notice is the last user-facing failure message, cleared on the next submit.
	Notice string `json:"notice,omitempty"`
}

type State string

const (
	StateIdle      State = "idle"
	StateAnalyzing State = "analyzing"
	StateRendering State = "rendering"
	StateReady     State = "ready"
)

func (s Session) Busy() bool {
	return s.IsAnalyzing || s.IsGenerating
}

func (s Session) State() State {
	switch {
	case s.IsAnalyzing:
		return StateAnalyzing
	case s.IsGenerating:
		return StateRendering
	case len(s.Scenes) == 0:
		return StateIdle
	default:
		return StateReady
	}
}

// AllSettled reports whether there is at least one scene and every scene is terminal.
func (s Session) AllSettled() bool {
	if len(s.Scenes) == 0 {
		return false
	}
	for _, sc := range s.Scenes {
		if !sc.Status.Terminal() {
			return false
		}
	}
	return true
}

func (s Session) clone() Session {
	c := s
	c.Scenes = append([]Scene(nil), s.Scenes...)
	return c
}

func (s *Session) indexOf(sceneID string) int {
	for i := range s.Scenes {
		if s.Scenes[i].ID == sceneID {
			return i
		}
	}
	return -1
}

func emptySession() Session {
	return Session{AspectRatio: DefaultAspectRatio, Scenes: []Scene{}}
}

// ArchivedProject is a frozen snapshot of a completed run.
type ArchivedProject struct {
	ID          string  `json:"id"`
	Timestamp   int64   `json:"timestamp"` // unix millis
	Story       string  `json:"story"`
	Style       string  `json:"style"`
	AspectRatio string  `json:"aspectRatio,omitempty"`
	Scenes      []Scene `json:"scenes"`
}

// Gateway is the AI backend the orchestrator drives. Both calls fail soft:
// an empty decomposition or ok=false means "no result".
type Gateway interface {
	Decompose(ctx context.Context, story, style string) []llm.SceneDescriptor
	RenderImage(ctx context.Context, prompt, aspectRatio string) (string, bool)
}
