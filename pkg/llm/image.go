package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	log "github.com/sirupsen/logrus"
	imagegen "google.golang.org/genai"
)

// imageGenerator is the part of the genai Models service used for rendering.
// The rendering call needs response modalities and an image config, which the
// text client does not expose.
type imageGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*imagegen.Content, config *imagegen.GenerateContentConfig) (*imagegen.GenerateContentResponse, error)
}

func newImageGenerator(ctx context.Context, apiKey string) (imageGenerator, error) {
	client, err := imagegen.NewClient(ctx, &imagegen.ClientConfig{
		APIKey:  apiKey,
		Backend: imagegen.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini image client: %w", err)
	}
	return client.Models, nil
}

func imageRequestConfig(aspectRatio string) *imagegen.GenerateContentConfig {
	return &imagegen.GenerateContentConfig{
		ResponseModalities: []string{string(imagegen.ModalityText), string(imagegen.ModalityImage)},
		ImageConfig:        &imagegen.ImageConfig{AspectRatio: aspectRatio},
	}
}

// RenderImage requests one image for prompt. It returns a data URI and true
// when the response carried an inline image, or "" and false otherwise.
func (s *Service) RenderImage(ctx context.Context, prompt, aspectRatio string) (string, bool) {
	if !s.Configured() {
		log.Errorf("RenderImage: %v", ErrNotConfigured)
		return "", false
	}

	resp, err := s.images.GenerateContent(ctx, s.imageModel,
		imagegen.Text(buildImagePrompt(prompt, aspectRatio)), imageRequestConfig(aspectRatio))
	if err != nil {
		log.Errorf("RenderImage: Gemini API call failed: %v", err)
		return "", false
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		log.Warn("RenderImage: Gemini returned no candidates.")
		return "", false
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data), true
	}
	log.Warn("RenderImage: response contained no inline image data.")
	return "", false
}
