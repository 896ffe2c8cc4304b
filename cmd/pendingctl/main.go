// Package main provides the pendingctl CLI application entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pendingctl/internal/core"
	httpserver "pendingctl/internal/http"
	"pendingctl/internal/journal"
	"pendingctl/internal/metrics"
	"pendingctl/internal/spotify"
	"pendingctl/internal/store"
)

const (
	defaultServerHost   = "0.0.0.0"
	defaultJournalLimit = 20
)

var version = "dev"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pendingctl",
	Short: "pendingctl - keep a Spotify pending playlist topped up",
	Long: `pendingctl pulls tracks from a playlist or album into a "pending" playlist,
skipping tracks that are already pending or already saved in your library.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var addCmd = &cobra.Command{
	Use:   "add <collection>",
	Short: "Add unsaved tracks of a playlist or album to the pending playlist",
	Long: `Add every track of the collection that is neither in the pending playlist nor
saved in your library. The collection is a Spotify URI, an open.spotify.com URL or
a bare playlist id.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var artistsCmd = &cobra.Command{
	Use:   "artists <collection>",
	Short: "List the unique artists of a playlist or album",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtists,
}

var watchCmd = &cobra.Command{
	Use:   "watch <collection>",
	Short: "Run add on an interval and serve health and metrics endpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent runs and the mutation chunks they failed to apply",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("interrupted")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("pending-playlist", "", "Pending playlist ID")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "Spotify OAuth redirect URL")
	rootCmd.PersistentFlags().String("spotify-token-path", "./spotify_token.json", "Spotify token file")
	rootCmd.PersistentFlags().Float64("requests-per-second", core.DefaultRequestsPerSecond,
		"Maximum Spotify API requests per second (0 disables pacing)")
	rootCmd.PersistentFlags().String("journal-path", "./pendingctl.db", "SQLite journal path (empty disables the journal)")
	rootCmd.PersistentFlags().String("server-host", defaultServerHost, "HTTP server host (watch mode)")
	rootCmd.PersistentFlags().Int("server-port", core.DefaultServerPort, "HTTP server port (watch mode)")

	addCmd.Flags().Bool("remove-saved", false, "Remove already saved tracks from the pending playlist first")

	artistsCmd.Flags().String("genre", "", "Only list artists with a genre matching this regular expression")
	artistsCmd.Flags().String("output", "", "Also write the artist names to this file")

	watchCmd.Flags().Duration("interval", core.DefaultWatchInterval, "Delay between runs")
	watchCmd.Flags().Bool("remove-saved", false, "Remove already saved tracks from the pending playlist first")

	journalCmd.Flags().Int("limit", defaultJournalLimit, "Number of runs and failed chunks to show")
	journalCmd.Flags().Bool("reset", false, "Delete all journaled runs")

	rootCmd.AddCommand(addCmd, artistsCmd, watchCmd, journalCmd)

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("PENDINGCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("pending-playlist", "PENDINGCTL_PENDING_PLAYLIST", "SPOTIFY_PENDING_PLAYLIST"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind pending playlist env: %v\n", err)
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureServer(cfg)
	configureSpotify(cfg)
	configureJournal(cfg)

	return cfg
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.RedirectURL = viper.GetString("spotify-redirect-url")
	cfg.Spotify.PendingPlaylistID = viper.GetString("pending-playlist")
	cfg.Spotify.TokenPath = viper.GetString("spotify-token-path")
	if cfg.Spotify.TokenPath == "" {
		cfg.Spotify.TokenPath = "./spotify_token.json"
	}

	cfg.Spotify.RequestsPerSecond = viper.GetFloat64("requests-per-second")
	if cfg.Spotify.RequestsPerSecond < 0 {
		fmt.Fprintf(os.Stderr, "Warning: Invalid requests per second (%v), using default (%v)\n",
			cfg.Spotify.RequestsPerSecond, core.DefaultRequestsPerSecond)
		cfg.Spotify.RequestsPerSecond = core.DefaultRequestsPerSecond
	}

	if cfg.Spotify.RedirectURL == "" {
		serverHost := cfg.Server.Host
		if serverHost == defaultServerHost {
			serverHost = "127.0.0.1"
		}
		cfg.Spotify.RedirectURL = fmt.Sprintf("http://%s:%d/callback", serverHost, cfg.Server.Port)
	}
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	if cfg.Server.Port == 0 {
		cfg.Server.Port = core.DefaultServerPort
	}
	cfg.Log.Level = viper.GetString("log-level")
}

func configureJournal(cfg *core.Config) {
	cfg.Journal.Path = viper.GetString("journal-path")
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func validateSpotifyConfig(needsPending bool) error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	if needsPending && config.Spotify.PendingPlaylistID == "" {
		return fmt.Errorf("%w: set --pending-playlist or SPOTIFY_PENDING_PLAYLIST", core.ErrNoPendingPlaylist)
	}

	return nil
}

type services struct {
	spotify  *spotify.Client
	dedup    *store.DedupStore
	journal  *journal.Journal
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	syncer   *core.Syncer
}

func initializeServices(ctx context.Context, needsPending bool) (*services, error) {
	if err := validateSpotifyConfig(needsPending); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.Spotify.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.Spotify.RequestsPerSecond), 1)
	}

	spotifyClient := spotify.NewClient(&config.Spotify, limiter, logger.Named("spotify"))
	if err := spotifyClient.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	svcs := &services{
		spotify:  spotifyClient,
		dedup:    store.NewDedupStore(config.App.DedupCapacity, config.App.DedupFalsePositiveRate),
		registry: registry,
		metrics:  recorder,
	}

	var runJournal core.Journal
	if config.Journal.Path != "" {
		j, err := journal.Open(ctx, config.Journal.Path, logger.Named("journal"))
		if err != nil {
			return nil, err
		}
		svcs.journal = j
		runJournal = j
	}

	mutator := core.NewMutator(spotifyClient, limiter, recorder, logger.Named("mutator"))
	svcs.syncer = core.NewSyncer(
		config.Spotify.PendingPlaylistID,
		spotifyClient,
		svcs.dedup,
		mutator,
		runJournal,
		recorder,
		logger.Named("sync"),
	)

	return svcs, nil
}

func (s *services) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			logger.Debug("Failed to close journal", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

func runAdd(cmd *cobra.Command, args []string) error {
	ref, err := core.ParseCollectionRef(args[0])
	if err != nil {
		return err
	}
	removeSaved, _ := cmd.Flags().GetBool("remove-saved")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx, true)
	if err != nil {
		return interrupted(ctx, err)
	}
	defer svcs.Close()

	result, err := svcs.syncer.AddToPending(ctx, ref, removeSaved)
	if err != nil {
		return interrupted(ctx, err)
	}

	printSyncResult(cmd.OutOrStdout(), result)
	return nil
}

func runArtists(cmd *cobra.Command, args []string) error {
	ref, err := core.ParseCollectionRef(args[0])
	if err != nil {
		return err
	}

	genreFlag, _ := cmd.Flags().GetString("genre")
	output, _ := cmd.Flags().GetString("output")

	genre, err := compileGenre(genreFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx, false)
	if err != nil {
		return interrupted(ctx, err)
	}
	defer svcs.Close()

	names, err := svcs.syncer.PlaylistArtists(ctx, ref, genre)
	if err != nil {
		return interrupted(ctx, err)
	}

	return writeArtists(cmd.OutOrStdout(), output, names)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ref, err := core.ParseCollectionRef(args[0])
	if err != nil {
		return err
	}
	removeSaved, _ := cmd.Flags().GetBool("remove-saved")
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval < core.MinWatchInterval {
		return fmt.Errorf("interval %v is below the minimum of %v", interval, core.MinWatchInterval)
	}
	config.App.WatchInterval = interval

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx, true)
	if err != nil {
		return interrupted(ctx, err)
	}
	defer svcs.Close()

	var lastRunOK atomic.Bool
	ready := func() error {
		if !lastRunOK.Load() {
			return errors.New("no successful run yet")
		}
		return nil
	}
	httpServer := httpserver.NewServer(&config.Server, svcs.registry, ready, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return watchLoop(gCtx, svcs.syncer, ref, removeSaved, interval, &lastRunOK)
	})

	logger.Info("Watching collection",
		zap.Stringer("collection", ref),
		zap.Duration("interval", interval),
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Watch stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Watch stopped gracefully")
	return nil
}

// watchLoop runs a sync immediately and then every interval. Runs never
// overlap and a failed run does not stop the loop.
func watchLoop(
	ctx context.Context,
	syncer *core.Syncer,
	ref core.CollectionRef,
	removeSaved bool,
	interval time.Duration,
	lastRunOK *atomic.Bool,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, err := syncer.AddToPending(ctx, ref, removeSaved)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			lastRunOK.Store(false)
			logger.Warn("Sync run failed, retrying next interval", zap.Error(err))
		default:
			lastRunOK.Store(true)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runJournal(cmd *cobra.Command, _ []string) error {
	if config.Journal.Path == "" {
		return errors.New("journal is disabled: set --journal-path")
	}
	limit, _ := cmd.Flags().GetInt("limit")
	reset, _ := cmd.Flags().GetBool("reset")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	j, err := journal.Open(ctx, config.Journal.Path, logger.Named("journal"))
	if err != nil {
		return err
	}
	defer j.Close()

	if reset {
		return j.Reset(ctx)
	}

	runs, err := j.Runs(ctx, limit)
	if err != nil {
		return err
	}
	failed, err := j.FailedChunks(ctx, limit)
	if err != nil {
		return err
	}

	printJournal(cmd.OutOrStdout(), runs, failed)
	return nil
}

// interrupted maps any failure after a user interrupt to context.Canceled.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Canceled
	}
	return err
}

func compileGenre(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	genre, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid genre pattern: %w", err)
	}
	return genre, nil
}

func writeArtists(w io.Writer, output string, names []string) error {
	for _, name := range names {
		fmt.Fprintln(w, name)
	}

	if output == "" {
		return nil
	}

	content := strings.Join(names, "\n")
	if len(names) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(output, []byte(content), 0o644); err != nil { //nolint:gosec // plain text listing
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	return nil
}

func printSyncResult(w io.Writer, result *core.SyncResult) {
	fmt.Fprintf(w, "Run %s from %s\n", result.RunID, result.Source)
	fmt.Fprintf(w, "  pending before:  %d\n", result.PendingBefore)
	if result.Removed != nil {
		fmt.Fprintf(w, "  removed saved:   %d of %d\n", result.Removed.Succeeded(), result.Removed.Total())
	}
	fmt.Fprintf(w, "  candidates:      %d\n", result.Candidates)
	fmt.Fprintf(w, "  already saved:   %d\n", result.AlreadySaved)
	if result.Added != nil {
		fmt.Fprintf(w, "  added:           %d of %d\n", result.Added.Succeeded(), result.Added.Total())
	}

	for _, report := range []*core.MutationReport{result.Removed, result.Added} {
		if report == nil {
			continue
		}
		for _, chunk := range report.FailedChunks() {
			fmt.Fprintf(w, "  failed %s chunk %d (%d tracks): %v\n", report.Op, chunk.Index, len(chunk.IDs), chunk.Err)
		}
	}
}

func printJournal(w io.Writer, runs []journal.Run, failed []journal.FailedChunk) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintln(w, "Recent runs:")
	for _, run := range runs {
		fmt.Fprintf(w, "  %s  %-11s  %s  %s  failed chunks: %d\n",
			run.StartedAt.Local().Format(time.DateTime), run.Status, run.ID, run.Source, run.FailedChunks)
	}

	if len(failed) == 0 {
		fmt.Fprintln(w, "No failed chunks.")
		return
	}

	fmt.Fprintln(w, "Failed chunks:")
	for _, chunk := range failed {
		fmt.Fprintf(w, "  %s  run %s  %s %s chunk %d (%d tracks): %s\n",
			chunk.RecordedAt.Local().Format(time.DateTime), chunk.RunID, chunk.Op, chunk.PlaylistID,
			chunk.Index, len(chunk.TrackIDs), chunk.Error)
	}
}
