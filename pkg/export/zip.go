// Package export bundles a session's rendered shots into a downloadable zip.
package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/story"
	"github.com/klauspost/compress/zip"
	log "github.com/sirupsen/logrus"
)

const (
	MainFolder     = "01_Main_Scenes"
	BRollFolder    = "02_B_Roll_Shots"
	ManifestName   = "manifest.txt"
	maxImageBytes  = 32 << 20
	manifestHeader = "STORYCANVAS PRODUCTION NOTES\n============================\n"
)

// Summary describes what ended up in the archive.
type Summary struct {
	Exported int      `json:"exported"`
	Skipped  []string `json:"skipped,omitempty"` // scene IDs whose image could not be fetched
}

type Exporter struct {
	HTTPClient *http.Client
}

func New() *Exporter {
	return &Exporter{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// FileName returns the download name for an export created at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("storycanvas-export-%d.zip", t.UnixMilli())
}

// Write streams the zip for storyText and scenes to w. Scenes without an image
// are left out; an image that cannot be fetched is logged and skipped.
func (e *Exporter) Write(ctx context.Context, w io.Writer, storyText string, scenes []story.Scene) (Summary, error) {
	var summary Summary
	withImages := make([]story.Scene, 0, len(scenes))
	for _, sc := range scenes {
		if sc.ImageURL != "" {
			withImages = append(withImages, sc)
		}
	}
	if len(withImages) == 0 {
		return summary, story.ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	notes := []string{manifestHeader, fmt.Sprintf("Story: %s\n", storyText)}

	for i, sc := range withImages {
		data, ext, err := e.fetch(ctx, sc.ImageURL)
		if err != nil {
			log.Errorf("Export: skipping scene %s: %v", sc.ID, err)
			summary.Skipped = append(summary.Skipped, sc.ID)
			continue
		}
		folder := BRollFolder
		if sc.ShotType == story.ShotMain {
			folder = MainFolder
		}
		f, err := zw.Create(fmt.Sprintf("%s/shot-%d%s", folder, i+1, ext))
		if err != nil {
			return summary, fmt.Errorf("create zip entry: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			return summary, fmt.Errorf("write zip entry: %w", err)
		}
		notes = append(notes, fmt.Sprintf("[SHOT %d] %s\n", i+1, sc.OriginalText))
		summary.Exported++
	}

	f, err := zw.Create(ManifestName)
	if err != nil {
		return summary, fmt.Errorf("create manifest: %w", err)
	}
	if _, err := io.WriteString(f, strings.Join(notes, "\n")); err != nil {
		return summary, fmt.Errorf("write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return summary, fmt.Errorf("finalize zip: %w", err)
	}
	log.Infof("Export: %d shots written, %d skipped.", summary.Exported, len(summary.Skipped))
	return summary, nil
}

// fetch resolves an image reference to bytes and a file extension.
func (e *Exporter) fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("unsupported image reference %q", truncate(ref, 40))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	return data, extensionFor(resp.Header.Get("Content-Type")), nil
}

func decodeDataURI(ref string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, "", errors.New("malformed data URI")
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URI: %w", err)
	}
	return data, extensionFor(mime), nil
}

func extensionFor(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	switch strings.TrimSpace(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
