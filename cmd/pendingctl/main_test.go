package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"pendingctl/internal/core"
)

func TestBuildConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("server-host", "0.0.0.0")
	viper.Set("server-port", 9000)
	viper.Set("pending-playlist", "37i9dQZF1DXcBWIGoYBM5M")
	viper.Set("spotify-client-id", "id")
	viper.Set("requests-per-second", -1.0)
	viper.Set("journal-path", "")

	cfg := buildConfig()

	if cfg.Spotify.PendingPlaylistID != "37i9dQZF1DXcBWIGoYBM5M" {
		t.Errorf("PendingPlaylistID = %q", cfg.Spotify.PendingPlaylistID)
	}
	if cfg.Spotify.RedirectURL != "http://127.0.0.1:9000/callback" {
		t.Errorf("RedirectURL = %q", cfg.Spotify.RedirectURL)
	}
	if cfg.Spotify.RequestsPerSecond != core.DefaultRequestsPerSecond {
		t.Errorf("negative rate should fall back to default, got %v", cfg.Spotify.RequestsPerSecond)
	}
	if cfg.Spotify.TokenPath != "./spotify_token.json" {
		t.Errorf("TokenPath = %q", cfg.Spotify.TokenPath)
	}
	if cfg.Journal.Path != "" {
		t.Errorf("Journal.Path = %q, expected journal disabled", cfg.Journal.Path)
	}
	if cfg.App.DedupCapacity != core.DefaultDedupCapacity {
		t.Errorf("DedupCapacity = %d", cfg.App.DedupCapacity)
	}
}

func TestBuildLogger(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := buildLogger(tt.level)
			if !l.Core().Enabled(tt.expected) {
				t.Errorf("level %v should be enabled", tt.expected)
			}
			if tt.expected > zapcore.DebugLevel && l.Core().Enabled(tt.expected-1) {
				t.Errorf("level %v should be disabled", tt.expected-1)
			}
		})
	}
}

func TestValidateSpotifyConfig(t *testing.T) {
	config = core.DefaultConfig()
	t.Cleanup(func() { config = nil })

	if err := validateSpotifyConfig(false); err == nil {
		t.Error("expected an error without client ID")
	}

	config.Spotify.ClientID = "id"
	config.Spotify.ClientSecret = "secret"
	if err := validateSpotifyConfig(false); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateSpotifyConfig(true); !errors.Is(err, core.ErrNoPendingPlaylist) {
		t.Errorf("expected ErrNoPendingPlaylist, got %v", err)
	}
}

func TestInterrupted(t *testing.T) {
	remote := errors.New("remote failure")

	if err := interrupted(context.Background(), remote); !errors.Is(err, remote) {
		t.Errorf("expected the remote error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := interrupted(ctx, remote); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCompileGenre(t *testing.T) {
	genre, err := compileGenre("")
	if err != nil || genre != nil {
		t.Errorf("empty pattern should disable filtering, got %v, %v", genre, err)
	}

	genre, err = compileGenre("(?i)techno")
	if err != nil || !genre.MatchString("Minimal Techno") {
		t.Errorf("expected a case-insensitive match, got %v, %v", genre, err)
	}

	if _, err := compileGenre("[unclosed"); err == nil {
		t.Error("expected an error for an invalid pattern")
	}
}

func TestWriteArtists(t *testing.T) {
	output := filepath.Join(t.TempDir(), "artists.txt")
	var stdout bytes.Buffer

	if err := writeArtists(&stdout, output, []string{"Daft Punk", "Björk"}); err != nil {
		t.Fatalf("writeArtists() error = %v", err)
	}

	if stdout.String() != "Daft Punk\nBjörk\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	content, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if string(content) != stdout.String() {
		t.Errorf("file = %q, expected %q", content, stdout.String())
	}
}

func TestPrintSyncResult(t *testing.T) {
	result := &core.SyncResult{
		RunID:         "run-1",
		Source:        core.Album("abc"),
		PendingBefore: 3,
		Candidates:    4,
		AlreadySaved:  1,
		Added: &core.MutationReport{
			Op:         core.OpAdd,
			PlaylistID: "pending",
			Chunks: []core.ChunkOutcome{
				{Index: 0, IDs: []string{"a", "b"}},
				{Index: 1, IDs: []string{"c"}, Err: errors.New("rejected")},
			},
		},
	}

	var out bytes.Buffer
	printSyncResult(&out, result)

	for _, line := range []string{
		"Run run-1 from spotify:album:abc",
		"pending before:  3",
		"candidates:      4",
		"already saved:   1",
		"added:           2 of 3",
		"failed add chunk 1 (1 tracks): rejected",
	} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("output is missing %q:\n%s", line, out.String())
		}
	}
	if strings.Contains(out.String(), "removed saved") {
		t.Errorf("output should not mention removals:\n%s", out.String())
	}
}
