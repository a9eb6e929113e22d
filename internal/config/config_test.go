package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/astrid-voss/musium/internal/errs"
	"github.com/astrid-voss/musium/internal/prim"
)

const validConfig = `# This is a comment.
listen = localhost:8000
library_path = /home/user/music
covers_path = /home/user/.cache/musium/covers
data_path = /home/user/.local/share/musium

audio_device = UCM404HD 192k
audio_volume_control = UMC404HD 192k Output
exec_pre_playback_path = /usr/local/bin/musium-pre
idle_timeout_seconds = 300
high_pass_cutoff = 120 Hz
volume = -18 dB
`

func TestLoadParsesAllRecognizedKeys(t *testing.T) {
	cfg, err := Load(strings.NewReader(validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "localhost:8000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.LibraryPath != "/home/user/music" {
		t.Errorf("LibraryPath = %q", cfg.LibraryPath)
	}
	if cfg.CoversPath != "/home/user/.cache/musium/covers" {
		t.Errorf("CoversPath = %q", cfg.CoversPath)
	}
	if cfg.DataPath != "/home/user/.local/share/musium" {
		t.Errorf("DataPath = %q", cfg.DataPath)
	}
	if cfg.AudioDevice != "UCM404HD 192k" {
		t.Errorf("AudioDevice = %q", cfg.AudioDevice)
	}
	if cfg.AudioVolumeControl != "UMC404HD 192k Output" {
		t.Errorf("AudioVolumeControl = %q", cfg.AudioVolumeControl)
	}
	if cfg.ExecPrePlaybackPath != "/usr/local/bin/musium-pre" {
		t.Errorf("ExecPrePlaybackPath = %q", cfg.ExecPrePlaybackPath)
	}
	if cfg.ExecPostIdlePath != "" {
		t.Errorf("ExecPostIdlePath = %q, want empty (not set)", cfg.ExecPostIdlePath)
	}
	if cfg.IdleTimeout != 300*time.Second {
		t.Errorf("IdleTimeout = %v, want 300s", cfg.IdleTimeout)
	}
	if cfg.HighPassCutoff != prim.Hertz(120) {
		t.Errorf("HighPassCutoff = %v, want 120", cfg.HighPassCutoff)
	}
	if cfg.Volume != prim.FromDecibels(-18) {
		t.Errorf("Volume = %v, want -18dB", cfg.Volume)
	}
	if got := cfg.DBPath(); got != "/home/user/.local/share/musium/musium.sqlite3" {
		t.Errorf("DBPath = %q", got)
	}
}

func TestLoadDefaultsListenWhenOmitted(t *testing.T) {
	body := strings.Replace(validConfig, "listen = localhost:8000\n", "", 1)
	cfg, err := Load(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != defaultListen {
		t.Errorf("Listen = %q, want default %q", cfg.Listen, defaultListen)
	}
}

func TestLoadRejectsLineWithoutEquals(t *testing.T) {
	_, err := Load(strings.NewReader("library_path /home/user/music\n"))
	if err == nil {
		t.Fatal("expected an error")
	}
	var invalid *errs.InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v (%T), want *errs.InvalidConfigError", err, err)
	}
	if invalid.Line != 1 {
		t.Errorf("Line = %d, want 1", invalid.Line)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(strings.NewReader("bogus_key = 1\n"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*errs.InvalidConfigError); !ok {
		t.Fatalf("err = %v (%T), want *errs.InvalidConfigError", err, err)
	}
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	_, err := Load(strings.NewReader("listen = localhost:8000\n"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*errs.IncompleteConfigError); !ok {
		t.Fatalf("err = %v (%T), want *errs.IncompleteConfigError", err, err)
	}
}

func TestLoadRejectsMalformedHertzAndDecibel(t *testing.T) {
	cases := []string{
		strings.Replace(validConfig, "high_pass_cutoff = 120 Hz", "high_pass_cutoff = 120", 1),
		strings.Replace(validConfig, "volume = -18 dB", "volume = loud", 1),
	}
	for i, body := range cases {
		if _, err := Load(strings.NewReader(body)); err == nil {
			t.Errorf("case %d: expected an error", i)
		}
	}
}
