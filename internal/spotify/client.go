// Package spotify adapts the Spotify Web API to the pending-playlist pipeline.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"pendingctl/internal/core"
	"pendingctl/pkg/paginate"
)

const (
	// FilePermission is the permission for token files
	FilePermission = 0600
	// PlaylistPageSize is the largest page the playlist items endpoint serves
	PlaylistPageSize = 100
	// AlbumPageSize is the largest page the album tracks endpoint serves
	AlbumPageSize = 50
)

// Client implements core.SpotifyClient. Reads wait on the shared limiter;
// playlist writes are paced by the caller.
type Client struct {
	config  *core.SpotifyConfig
	logger  *zap.Logger
	client  *spotify.Client
	auth    *spotifyauth.Authenticator
	limiter *rate.Limiter
}

type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

// NewClient creates an unauthenticated client. limiter may be nil.
func NewClient(config *core.SpotifyConfig, limiter *rate.Limiter, logger *zap.Logger) *Client {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Client{
		config:  config,
		logger:  logger,
		auth:    auth,
		limiter: limiter,
	}
}

func (c *Client) Authenticate(ctx context.Context) error {
	token, err := c.loadToken()
	if err != nil {
		c.logger.Info("No saved token found, starting OAuth flow")
		return c.startOAuthFlow(ctx)
	}

	client := spotify.New(c.auth.Client(ctx, token))
	c.client = client

	user, err := client.CurrentUser(ctx)
	if err != nil {
		c.logger.Warn("Saved token invalid, starting OAuth flow", zap.Error(err))
		return c.startOAuthFlow(ctx)
	}

	c.logger.Info("Authenticated successfully", zap.String("user", user.DisplayName))
	return nil
}

// TrackSlots streams the tracks of a playlist or album. Playlist entries that
// are episodes or unavailable come out as nil slots.
func (c *Client) TrackSlots(ctx context.Context, ref core.CollectionRef, mode paginate.Mode) iter.Seq2[*core.Track, error] {
	if c.client == nil {
		return func(yield func(*core.Track, error) bool) {
			yield(nil, core.ErrNotAuthenticated)
		}
	}

	if ref.Kind == core.KindAlbum {
		return paginate.Offset(ctx, c.albumPage(ref.ID), mode)
	}
	return paginate.Cursor(ctx, c.firstPlaylistPage(ref.ID), c.nextPlaylistPage, mode)
}

func (c *Client) firstPlaylistPage(playlistID string) paginate.CursorFirstFunc[*core.Track] {
	return func(ctx context.Context) (*paginate.CursorPage[*core.Track], error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(PlaylistPageSize))
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist items: %w", err)
		}
		return playlistCursorPage(page), nil
	}
}

func (c *Client) nextPlaylistPage(ctx context.Context, prev *paginate.CursorPage[*core.Track]) (*paginate.CursorPage[*core.Track], error) {
	current, ok := prev.Token.(*spotify.PlaylistItemPage)
	if !ok || current == nil {
		return nil, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	page := &spotify.PlaylistItemPage{}
	page.Next = current.Next
	if err := c.client.NextPage(ctx, page); err != nil {
		if errors.Is(err, spotify.ErrNoMorePages) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get next playlist page: %w", err)
	}
	return playlistCursorPage(page), nil
}

func (c *Client) albumPage(albumID string) paginate.OffsetFetchFunc[*core.Track] {
	return func(ctx context.Context, offset int) (*paginate.OffsetPage[*core.Track], error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.client.GetAlbumTracks(ctx, spotify.ID(albumID),
			spotify.Limit(AlbumPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to get album tracks: %w", err)
		}
		if page == nil {
			return nil, nil
		}

		items := make([]*core.Track, 0, len(page.Tracks))
		for i := range page.Tracks {
			items = append(items, convertSimpleTrack(&page.Tracks[i]))
		}
		return &paginate.OffsetPage[*core.Track]{Items: items, Total: int(page.Total)}, nil
	}
}

// CheckSaved reports which ids are saved in the user's library.
func (c *Client) CheckSaved(ctx context.Context, ids []string) ([]bool, error) {
	if c.client == nil {
		return nil, core.ErrNotAuthenticated
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	saved, err := c.client.UserHasTracks(ctx, toIDs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to check saved tracks: %w", err)
	}
	return saved, nil
}

// AddItems appends ids to the playlist.
func (c *Client) AddItems(ctx context.Context, playlistID string, ids []string) error {
	if c.client == nil {
		return core.ErrNotAuthenticated
	}

	snapshot, err := c.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), toIDs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to add tracks to playlist: %w", err)
	}

	c.logger.Debug("Tracks added to playlist",
		zap.String("playlistID", playlistID),
		zap.Int("count", len(ids)),
		zap.String("snapshotID", snapshot))
	return nil
}

// RemoveItems removes every occurrence of ids from the playlist.
func (c *Client) RemoveItems(ctx context.Context, playlistID string, ids []string) error {
	if c.client == nil {
		return core.ErrNotAuthenticated
	}

	snapshot, err := c.client.RemoveTracksFromPlaylist(ctx, spotify.ID(playlistID), toIDs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to remove tracks from playlist: %w", err)
	}

	c.logger.Debug("Tracks removed from playlist",
		zap.String("playlistID", playlistID),
		zap.Int("count", len(ids)),
		zap.String("snapshotID", snapshot))
	return nil
}

// ArtistGenres returns the genres of each found artist keyed by artist id.
func (c *Client) ArtistGenres(ctx context.Context, ids []string) (map[string][]string, error) {
	if c.client == nil {
		return nil, core.ErrNotAuthenticated
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	artists, err := c.client.GetArtists(ctx, toIDs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get artists: %w", err)
	}
	return artistGenres(artists), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func playlistCursorPage(page *spotify.PlaylistItemPage) *paginate.CursorPage[*core.Track] {
	if page == nil {
		return nil
	}

	items := make([]*core.Track, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, convertFullTrack(page.Items[i].Track.Track))
	}

	return &paginate.CursorPage[*core.Track]{
		Items:   items,
		HasNext: page.Next != "",
		Token:   page,
	}
}

func convertFullTrack(track *spotify.FullTrack) *core.Track {
	if track == nil {
		return nil
	}

	converted := convertSimpleTrack(&track.SimpleTrack)
	converted.Album = track.Album.Name
	return converted
}

func convertSimpleTrack(track *spotify.SimpleTrack) *core.Track {
	artists := make([]core.Artist, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, core.Artist{ID: string(artist.ID), Name: artist.Name})
	}

	return &core.Track{
		ID:      string(track.ID),
		Name:    track.Name,
		Artists: artists,
	}
}

func artistGenres(artists []*spotify.FullArtist) map[string][]string {
	genres := make(map[string][]string, len(artists))
	for _, artist := range artists {
		if artist == nil {
			continue
		}
		genres[string(artist.ID)] = artist.Genres
	}
	return genres
}

func toIDs(ids []string) []spotify.ID {
	result := make([]spotify.ID, len(ids))
	for i, id := range ids {
		result[i] = spotify.ID(id)
	}
	return result
}

func (c *Client) startOAuthFlow(ctx context.Context) error {
	state := "pendingctl-auth-state"
	authURL := c.auth.AuthURL(state)

	fmt.Printf("Please visit the following URL to authorize the application:\n%s\n", authURL)
	fmt.Print("Enter the authorization code: ")

	code, err := readAuthCode(ctx, os.Stdin)
	if err != nil {
		return err
	}

	token, err := c.auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if saveErr := c.saveToken(token); saveErr != nil {
		c.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	client := spotify.New(c.auth.Client(ctx, token))
	c.client = client

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	c.logger.Info("OAuth flow completed successfully", zap.String("user", user.DisplayName))
	return nil
}

// readAuthCode reads one line from r. It returns early with the context error
// when ctx is done; the pending read is abandoned.
func readAuthCode(ctx context.Context, r io.Reader) (string, error) {
	type result struct {
		code string
		err  error
	}

	done := make(chan result, 1)
	go func() {
		var code string
		_, err := fmt.Fscanln(r, &code)
		done <- result{code: code, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", res.err)
		}
		return res.code, nil
	}
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	file, err := os.Open(c.config.TokenPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, err
	}
	if tokenData.Token == nil {
		return nil, errors.New("token file holds no token")
	}

	return tokenData.Token, nil
}

func (c *Client) saveToken(token *oauth2.Token) error {
	tokenData := TokenData{Token: token}

	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.config.TokenPath, data, FilePermission)
}
