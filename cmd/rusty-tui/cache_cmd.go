package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cli/go-gh/v2/pkg/tableprinter"
	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/cli/go-gh/v2/pkg/text"
	"github.com/spf13/cobra"

	"github.com/rusty-ci/rusty-tui/internal/cache"
	"github.com/rusty-ci/rusty-tui/internal/config"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local log cache",
	}
	cmd.AddCommand(newCacheListCmd(configPath))
	cmd.AddCommand(newCacheClearCmd(configPath))
	return cmd
}

// openCache only needs the cache section, so it skips the network services
// that setup builds.
func openCache(cmd *cobra.Command, configPath string) (*cache.LogCache, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return cache.NewLogCache(cfg.Cache.Dir, cfg.Cache.SizeMB, cfg.Cache.TTL)
}

func newCacheListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached pipeline logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lc, err := openCache(cmd, *configPath)
			if err != nil {
				return err
			}
			entries, err := lc.ListEntries()
			if err != nil {
				return err
			}

			t := term.FromEnv()
			width, _, _ := t.Size()
			if width <= 0 {
				width = 80
			}
			now := time.Now()
			tp := tableprinter.New(cmd.OutOrStdout(), t.IsTerminalOutput(), width)
			tp.AddHeader([]string{"PIPELINE", "NUMBER", "STATUS", "BRANCH", "LINES", "SIZE", "LAST READ"})
			for _, e := range entries {
				tp.AddField(e.PipelineID)
				tp.AddField("#" + strconv.Itoa(e.Number))
				tp.AddField(string(e.Status))
				tp.AddField(e.Branch)
				tp.AddField(strconv.Itoa(e.Lines))
				tp.AddField(ui.FormatSize(e.Size))
				tp.AddField(text.RelativeTimeAgo(now, e.LastAccessed))
				tp.EndRow()
			}
			if err := tp.Render(); err != nil {
				return err
			}
			total, err := lc.TotalSize()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s, %s in %s\n",
				text.Pluralize(len(entries), "pipeline"), ui.FormatSize(total), lc.Dir())
			return nil
		},
	}
}

func newCacheClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [pipeline-id...]",
		Short: "Delete cached logs, all of them when no id is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			lc, err := openCache(cmd, *configPath)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				if err := lc.DeleteAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			}
			for _, id := range args {
				if err := lc.DeleteEntry(id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", text.Pluralize(len(args), "pipeline"))
			return nil
		},
	}
}
