package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPlaceDownload(t *testing.T) {
	tests := []struct {
		name      string
		suggested string
		existing  []string
		want      string
	}{
		{name: "suggested name", suggested: "overview.wav", want: "overview.wav"},
		{name: "empty name falls back", suggested: "", want: "audio.wav"},
		{name: "dot falls back", suggested: ".", want: "audio.wav"},
		{name: "collision gets guid prefix", suggested: "overview.wav", existing: []string{"overview.wav"}, want: "g-1-overview.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, name := range tt.existing {
				if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
					t.Fatalf("seed %s: %v", name, err)
				}
			}
			if err := os.WriteFile(filepath.Join(dir, "g-1"), []byte("RIFF"), 0o600); err != nil {
				t.Fatalf("seed download: %v", err)
			}

			got, err := placeDownload(dir, "g-1", tt.suggested)
			if err != nil {
				t.Fatalf("place download: %v", err)
			}
			if diff := cmp.Diff(filepath.Join(dir, tt.want), got); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}
			data, err := os.ReadFile(got)
			if err != nil {
				t.Fatalf("read placed file: %v", err)
			}
			if diff := cmp.Diff("RIFF", string(data)); diff != "" {
				t.Errorf("content mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlaceDownloadMissingFile(t *testing.T) {
	if _, err := placeDownload(t.TempDir(), "absent", "x.wav"); err == nil {
		t.Fatal("expected error for missing download")
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := len(Options{}.allocatorOptions())
	full := len(Options{UserDataDir: "/tmp/chrome", Profile: "Default", ExecPath: "/usr/bin/chromium"}.allocatorOptions())
	if diff := cmp.Diff(base+3, full); diff != "" {
		t.Errorf("option count mismatch (-want +got):\n%s", diff)
	}
}
