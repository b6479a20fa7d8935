package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ambientflow/ambientmix/internal/config"
	"github.com/ambientflow/ambientmix/internal/logger"
)

var (
	cacheJSON bool

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the asset cache",
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and hit statistics",
		Args:  cobra.NoArgs,
		RunE:  withCache(runCacheStats),
	}

	cacheLsCmd = &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List per-sound cache entries",
		Args:    cobra.NoArgs,
		RunE:    withCache(runCacheLs),
	}

	cachePreloadCmd = &cobra.Command{
		Use:   "preload",
		Short: "Fetch every high priority sound into the cache",
		Args:  cobra.NoArgs,
		RunE:  withCache(runCachePreload),
	}

	cacheCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale low priority entries",
		Args:  cobra.NoArgs,
		RunE:  withCache(runCacheCleanup),
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached asset",
		Args:  cobra.NoArgs,
		RunE:  withCache(runCacheClear),
	}
)

func init() {
	cacheCmd.PersistentFlags().BoolVar(&cacheJSON, "json", false, "print JSON instead of a table")
	cacheCmd.AddCommand(cacheStatsCmd, cacheLsCmd, cachePreloadCmd, cacheCleanupCmd, cacheClearCmd)
}

// withCache loads config, opens the cache stack with a synchronous event
// dispatcher and closes it after run returns
func withCache(run func(ctx context.Context, a *app, w io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Sync()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		return run(ctx, a, cmd.OutOrStdout())
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCacheStats(_ context.Context, a *app, w io.Writer) error {
	stats := a.orchestrator.GetStats()
	if cacheJSON {
		return printJSON(w, stats)
	}
	fmt.Fprintf(w, "Cached files:  %d\n", stats.CachedFileCount)
	fmt.Fprintf(w, "Total size:    %s of %s\n",
		humanize.IBytes(uint64(stats.TotalSizeBytes)),
		humanize.IBytes(uint64(a.cfg.Cache.GetMaxSizeBytes())))
	usage := a.bytes.Usage()
	fmt.Fprintf(w, "On disk:       %s\n", humanize.IBytes(uint64(usage.OnDiskBytes)))
	if usage.Disk != nil {
		fmt.Fprintf(w, "Disk used:     %.1f%% (%s free)\n", usage.Disk.UsedPct, humanize.IBytes(usage.Disk.Free))
	}
	fmt.Fprintf(w, "Requests:      %d (%d hits, %.1f%%)\n", stats.TotalRequests, stats.CacheHits, stats.HitRate)
	return nil
}

func runCacheLs(_ context.Context, a *app, w io.Writer) error {
	entries := a.orchestrator.Entries()
	if cacheJSON {
		return printJSON(w, entries)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOUND\tPRIORITY\tPRELOAD\tSIZE\tLAST USED")
	for _, e := range entries {
		size := "-"
		if e.IsCached() {
			size = humanize.IBytes(uint64(e.SizeBytes))
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
			e.SoundID, e.Priority, e.Preload, size, humanize.Time(e.LastUsedAt))
	}
	return tw.Flush()
}

func runCachePreload(ctx context.Context, a *app, w io.Writer) error {
	start := time.Now()
	a.orchestrator.PreloadHighPriority(ctx)
	stats := a.orchestrator.GetStats()
	fmt.Fprintf(w, "Preload finished in %s: %d files, %s cached\n",
		time.Since(start).Round(time.Millisecond),
		stats.CachedFileCount,
		humanize.IBytes(uint64(stats.TotalSizeBytes)))
	return nil
}

func runCacheCleanup(ctx context.Context, a *app, w io.Writer) error {
	removed := a.orchestrator.CleanupStale(ctx)
	temp := a.bytes.CleanTemp(24 * time.Hour)
	fmt.Fprintf(w, "Removed %d stale entries and %d temp files\n", removed, temp)
	return nil
}

func runCacheClear(ctx context.Context, a *app, w io.Writer) error {
	if !a.orchestrator.Clear(ctx) {
		return fmt.Errorf("cache could not be cleared completely")
	}
	fmt.Fprintln(w, "Cache cleared")
	return nil
}
