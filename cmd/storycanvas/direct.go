package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/app"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/export"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/llm"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/story"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	directStory string
	directFile  string
	directStyle string
	directRatio string
	directOut   string
)

var directCmd = &cobra.Command{
	Use:   "direct",
	Short: "Run one story through analysis and rendering",
	Long: `Analyze a story, render every scene in order and archive the run.

The story comes from --story, --file, or stdin when neither is given.
With --out, the rendered shots are also written to a zip archive.`,
	RunE: runDirect,
}

func init() {
	directCmd.Flags().StringVarP(&directStory, "story", "s", "", "Story text")
	directCmd.Flags().StringVarP(&directFile, "file", "f", "", "Read the story from a file")
	directCmd.Flags().StringVar(&directStyle, "style", "", "Style directive, e.g. \"Cinematic Noir\"")
	directCmd.Flags().StringVar(&directRatio, "ratio", story.DefaultAspectRatio, "Aspect ratio: 16:9, 9:16 or 1:1")
	directCmd.Flags().StringVarP(&directOut, "out", "o", "", "Write the shots to this zip file")
}

func readStory(stdin io.Reader) (string, error) {
	switch {
	case directStory != "":
		return directStory, nil
	case directFile != "":
		data, err := os.ReadFile(directFile)
		if err != nil {
			return "", fmt.Errorf("read story file: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

func runDirect(cmd *cobra.Command, args []string) error {
	text, err := readStory(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if !cfg.AIConfigured() {
		return llm.ErrNotConfigured
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, cleanup, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	o := story.NewRegistry(comps.Gateway, comps.Store).Get(ctx, workspaceID)
	updates, unsubscribe := o.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(cmd.OutOrStdout(), updates)
	}()

	runErr := o.Generate(ctx, story.GenerateRequest{Story: text, Style: directStyle, AspectRatio: directRatio})
	unsubscribe()
	<-done
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			printStatus(cmd.OutOrStdout(), "⚠", "Run cancelled; partial results saved", color.FgYellow)
			return nil
		}
		return runErr
	}

	s := o.Snapshot()
	printSummary(cmd.OutOrStdout(), s)

	if directOut == "" {
		return nil
	}
	f, err := os.Create(directOut)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()
	summary, err := export.New().Write(ctx, f, s.OriginalStory, s.Scenes)
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Exported %d shots to %s", summary.Exported, directOut), color.FgGreen)
	return nil
}

// printProgress prints each scene once when it reaches a terminal status.
func printProgress(w io.Writer, updates <-chan story.Session) {
	reported := make(map[string]bool)
	analyzing := false
	for s := range updates {
		if s.IsAnalyzing && !analyzing {
			analyzing = true
			printStatus(w, "…", "Analyzing script", color.FgCyan)
		}
		for i, sc := range s.Scenes {
			if reported[sc.ID] || !sc.Status.Terminal() {
				continue
			}
			reported[sc.ID] = true
			symbol, attr := "✓", color.FgGreen
			if sc.Status == story.StatusFailed {
				symbol, attr = "✗", color.FgRed
			}
			printStatus(w, symbol, fmt.Sprintf("Scene %d/%d [%s] %s", i+1, len(s.Scenes), sc.ShotType, excerpt(sc.OriginalText)), attr)
		}
	}
}

func printSummary(w io.Writer, s story.Session) {
	var completed int
	for _, sc := range s.Scenes {
		if sc.Status == story.StatusCompleted {
			completed++
		}
	}
	fmt.Fprintf(w, "\n%d of %d scenes rendered.\n", completed, len(s.Scenes))
	for i, sc := range s.Scenes {
		fmt.Fprintf(w, "  %2d. %-8s %-7s %s\n", i+1, sc.Status, sc.ShotType, sc.MotionPrompt)
	}
}

func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return s
}
