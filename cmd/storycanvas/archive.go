package main

import (
	"fmt"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/storage"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/story"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and prune the history of completed runs",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived projects, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, closeStore, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		projects := archive.List(cmd.Context())
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archived productions found.")
			return nil
		}
		for _, p := range projects {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %2d scenes  %q\n",
				p.ID, time.UnixMilli(p.Timestamp).Format("2006-01-02 15:04"), len(p.Scenes), excerpt(p.Story))
		}
		return nil
	},
}

var archiveDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, closeStore, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := archive.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "Deleted "+args[0], color.FgGreen)
		return nil
	},
}

func init() {
	archiveCmd.AddCommand(archiveListCmd, archiveDeleteCmd)
}

func openArchive(cmd *cobra.Command) (*story.Archive, func(), error) {
	store, closeStore, err := storage.Open(cmd.Context(), cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return story.NewArchive(store, story.ScopedKey(story.ArchiveKey, workspaceID)), closeStore, nil
}
