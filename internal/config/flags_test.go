package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseFlags(t *testing.T) {
	type runFlags struct {
		Files
		Collect bool `long:"collect"`
		DryRun  bool `long:"dry-run"`
	}

	tests := []struct {
		name    string
		args    []string
		want    runFlags
		wantOK  bool
		wantErr bool
	}{
		{
			name:   "defaults",
			want:   runFlags{Files: Files{Config: DefaultConfigPath, Env: DefaultEnvPath}},
			wantOK: true,
		},
		{
			name:   "overrides",
			args:   []string{"--config", "alt.yaml", "--env", "alt.env", "--collect", "--dry-run"},
			want:   runFlags{Files: Files{Config: "alt.yaml", Env: "alt.env"}, Collect: true, DryRun: true},
			wantOK: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"--nope"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got runFlags
			ok, err := ParseFlags(&got, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Errorf("ok mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("flags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
