package main

import (
	"os"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/app"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/config"
	"github.com/spf13/cobra"
)

var (
	cfg         *config.Config
	workspaceID string
)

var rootCmd = &cobra.Command{
	Use:   "storycanvas",
	Short: "Turn a story into consistent illustrated scenes",
	Long: `StoryCanvas splits a story into scenes with Gemini, renders one image per
scene in order and keeps a history of the last completed runs.

Configuration is read from the environment and an optional .env file
(GEMINI_API_KEY, STORE_DRIVER, DATABASE_URL, JWT_SECRET, ...).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.LoadConfig()
		app.SetupLogging(cfg.LogLevel)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceID, "workspace", "cli", "Workspace whose session and archive the command uses")
	rootCmd.AddCommand(serveCmd, directCmd, archiveCmd)
}
