package core

import (
	"errors"
	"testing"
)

func TestParseCollectionRef(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected CollectionRef
		wantErr  bool
	}{
		{
			name:     "Playlist URI",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			expected: Playlist("37i9dQZF1DXcBWIGoYBM5M"),
		},
		{
			name:     "Album URI",
			input:    "spotify:album:4aawyAB9vmqN3uQ7FjRGTy",
			expected: Album("4aawyAB9vmqN3uQ7FjRGTy"),
		},
		{
			name:     "Playlist URL with query",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			expected: Playlist("37i9dQZF1DXcBWIGoYBM5M"),
		},
		{
			name:     "Localized album URL",
			input:    "https://open.spotify.com/intl-de/album/4aawyAB9vmqN3uQ7FjRGTy",
			expected: Album("4aawyAB9vmqN3uQ7FjRGTy"),
		},
		{
			name:     "URL without scheme",
			input:    "open.spotify.com/album/4aawyAB9vmqN3uQ7FjRGTy",
			expected: Album("4aawyAB9vmqN3uQ7FjRGTy"),
		},
		{
			name:     "Bare id defaults to playlist",
			input:    "  37i9dQZF1DXcBWIGoYBM5M ",
			expected: Playlist("37i9dQZF1DXcBWIGoYBM5M"),
		},
		{
			name:    "Track URI is rejected",
			input:   "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			wantErr: true,
		},
		{
			name:    "Artist URL is rejected",
			input:   "https://open.spotify.com/artist/0OdUWJ0sBjDrqHygGUXeCF",
			wantErr: true,
		},
		{
			name:    "Empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseCollectionRef(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCollectionRef) {
					t.Errorf("Expected ErrInvalidCollectionRef, got %v (%v)", err, result)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCollectionRef() error = %v", err)
			}
			if result != tt.expected {
				t.Errorf("ParseCollectionRef() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestCollectionRef_String(t *testing.T) {
	if got := Playlist("abc").String(); got != "spotify:playlist:abc" {
		t.Errorf("Playlist String() = %q", got)
	}
	if got := Album("xyz").String(); got != "spotify:album:xyz" {
		t.Errorf("Album String() = %q", got)
	}
	if got := CollectionKind(7).String(); got != "CollectionKind(7)" {
		t.Errorf("unknown kind String() = %q", got)
	}
}

func TestIsValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"4uLU6hMCjMI75M1A2tKUQC", true},
		{"a", true},
		{"", false},
		{"spotify:local:abc", false},
		{"has space", false},
		{"dash-ed", false},
	}

	for _, tt := range tests {
		if got := IsValidID(tt.id); got != tt.want {
			t.Errorf("IsValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestIDSet(t *testing.T) {
	set := NewIDSet("a", "b", "a")

	if len(set) != 2 {
		t.Errorf("Expected 2 ids, got %d", len(set))
	}
	if !set.Has("a") || set.Has("c") {
		t.Error("IDSet membership is wrong")
	}

	var nilSet IDSet
	if nilSet.Has("a") {
		t.Error("nil IDSet should be empty")
	}
}
