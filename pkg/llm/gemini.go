// pkg/llm/gemini.go

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// ErrNotConfigured is reported when no Gemini API key was supplied at startup.
var ErrNotConfigured = errors.New("gemini API key is not configured")

const (
	ShotMain  = "main"
	ShotBRoll = "b-roll"
)

// SceneDescriptor is one item of the decomposition response.
type SceneDescriptor struct {
	Text         string `json:"text"`
	Prompt       string `json:"prompt"`
	MotionPrompt string `json:"motionPrompt"`
	ShotType     string `json:"shotType"`
}

func (d SceneDescriptor) validate() error {
	switch {
	case strings.TrimSpace(d.Text) == "":
		return errors.New("missing text")
	case strings.TrimSpace(d.Prompt) == "":
		return errors.New("missing prompt")
	case strings.TrimSpace(d.MotionPrompt) == "":
		return errors.New("missing motionPrompt")
	case d.ShotType != ShotMain && d.ShotType != ShotBRoll:
		return fmt.Errorf("invalid shotType %q", d.ShotType)
	}
	return nil
}

// contentGenerator is the part of *genai.GenerativeModel the service relies on.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Options selects the models used for each call.
type Options struct {
	APIKey     string
	TextModel  string
	ImageModel string
}

// Service is the gateway to Gemini. Both calls fail soft: transport and parse
// errors are logged and reported as "no result", never returned.
type Service struct {
	client       *genai.Client
	newTextModel func(systemInstruction string) contentGenerator
	images       imageGenerator
	imageModel   string
}

// NewGeminiService creates the gateway. An empty API key is not an error: the
// returned service is unconfigured and every call yields an empty result.
func NewGeminiService(ctx context.Context, opts Options) (*Service, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		log.Warn("Gemini service created without an API key; AI calls are disabled.")
		return &Service{}, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	images, err := newImageGenerator(ctx, opts.APIKey)
	if err != nil {
		client.Close()
		return nil, err
	}

	newTextModel := func(systemInstruction string) contentGenerator {
		model := client.GenerativeModel(opts.TextModel)
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = sceneListSchema
		return model
	}
	return &Service{
		client:       client,
		newTextModel: newTextModel,
		images:       images,
		imageModel:   opts.ImageModel,
	}, nil
}

// Configured reports whether calls will reach the model at all.
func (s *Service) Configured() bool {
	return s.newTextModel != nil && s.images != nil
}

// Decompose asks the model to split story into ordered scene descriptors.
// An empty slice means the analysis failed; the cause has already been logged.
func (s *Service) Decompose(ctx context.Context, story, style string) []SceneDescriptor {
	if !s.Configured() {
		log.Errorf("Decompose: %v", ErrNotConfigured)
		return nil
	}
	log.Debugf("Decompose: analyzing story of %d characters (style %q).", len(story), style)

	model := s.newTextModel(buildSystemInstruction(style))
	resp, err := model.GenerateContent(ctx, genai.Text(story))
	if err != nil {
		log.Errorf("Decompose: Gemini API call failed: %v", err)
		return nil
	}

	raw := responseText(resp)
	if raw == "" {
		log.Warn("Decompose: Gemini returned no text content.")
		return nil
	}
	log.Debugf("Decompose: raw response: %s", raw)

	scenes, err := parseSceneList(raw)
	if err != nil {
		log.Errorf("Decompose: rejecting model response: %v", err)
		return nil
	}
	log.Infof("Decompose: story split into %d scenes.", len(scenes))
	return scenes
}

// Close releases the underlying Gemini client.
func (s *Service) Close() error {
	if s.client == nil {
		return nil
	}
	log.Info("Closing Gemini AI service client.")
	return s.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}

// stripCodeFences removes markdown fences the model sometimes wraps JSON in.
func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func parseSceneList(raw string) ([]SceneDescriptor, error) {
	var scenes []SceneDescriptor
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &scenes); err != nil {
		return nil, fmt.Errorf("invalid scene JSON: %w", err)
	}
	for i, sc := range scenes {
		if err := sc.validate(); err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
	}
	return scenes, nil
}
