// Package config loads musium's daemon configuration from a newline
// key=value text file, following the same small-helper idiom as Orb's
// pkg/config (Env/DSN: a thin lookup with a default) scaled up to the
// richer grammar a standalone daemon config file needs.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/astrid-voss/musium/internal/errs"
	"github.com/astrid-voss/musium/internal/prim"
)

// defaultListen is used when the config file omits the listen key.
const defaultListen = "0.0.0.0:8233"

// Config holds everything musiumd needs to start.
type Config struct {
	Listen string

	LibraryPath string
	CoversPath  string
	DataPath    string

	AudioDevice        string
	AudioVolumeControl string

	ExecPrePlaybackPath string // optional, empty if unset
	ExecPostIdlePath    string // optional, empty if unset
	IdleTimeout         time.Duration

	HighPassCutoff prim.Hertz
	Volume         prim.Millibel
}

// DBPath returns the SQLite database path derived from DataPath, mirroring
// config.rs's Config::db_path.
func (c Config) DBPath() string {
	return c.DataPath + "/musium.sqlite3"
}

// String renders the config the way an operator would want to see it
// echoed back at startup, matching config.rs's Display impl.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  listen = %s\n", c.Listen)
	fmt.Fprintf(&b, "  library_path = %s\n", c.LibraryPath)
	fmt.Fprintf(&b, "  covers_path = %s\n", c.CoversPath)
	fmt.Fprintf(&b, "  data_path = %s\n", c.DataPath)
	fmt.Fprintf(&b, "  audio_device = %s\n", c.AudioDevice)
	fmt.Fprintf(&b, "  audio_volume_control = %s\n", c.AudioVolumeControl)
	if c.ExecPrePlaybackPath != "" {
		fmt.Fprintf(&b, "  exec_pre_playback_path = %s\n", c.ExecPrePlaybackPath)
	}
	if c.ExecPostIdlePath != "" {
		fmt.Fprintf(&b, "  exec_post_idle_path = %s\n", c.ExecPostIdlePath)
	}
	fmt.Fprintf(&b, "  idle_timeout_seconds = %d\n", int(c.IdleTimeout.Seconds()))
	fmt.Fprintf(&b, "  high_pass_cutoff = %g Hz\n", float64(c.HighPassCutoff))
	fmt.Fprintf(&b, "  volume = %g dB", c.Volume.Decibels())
	return b.String()
}

// recognized keys, matching spec §6.
const (
	keyListen              = "listen"
	keyLibraryPath         = "library_path"
	keyCoversPath          = "covers_path"
	keyDataPath            = "data_path"
	keyAudioDevice         = "audio_device"
	keyAudioVolumeControl  = "audio_volume_control"
	keyExecPrePlaybackPath = "exec_pre_playback_path"
	keyExecPostIdlePath    = "exec_post_idle_path"
	keyIdleTimeoutSeconds  = "idle_timeout_seconds"
	keyHighPassCutoff      = "high_pass_cutoff"
	keyVolume              = "volume"
)

// Load reads and parses a config file from r.
func Load(r io.Reader) (Config, error) {
	var (
		listen                                *string
		libraryPath, coversPath, dataPath     *string
		audioDevice, audioVolumeControl       *string
		execPrePlaybackPath, execPostIdlePath *string
		idleTimeoutSeconds                    *int
		highPassCutoff                        *prim.Hertz
		volume                                *prim.Millibel
	)

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		n := strings.IndexByte(line, '=')
		if n < 0 {
			return Config{}, &errs.InvalidConfigError{
				Line: lineno,
				Msg:  "line contains no '='. Expected key-value pair like 'audio_device = UCM404HD 192k'.",
			}
		}
		key := strings.TrimSpace(line[:n])
		value := strings.TrimSpace(line[n+1:])

		switch key {
		case keyListen:
			listen = &value
		case keyLibraryPath:
			libraryPath = &value
		case keyCoversPath:
			coversPath = &value
		case keyDataPath:
			dataPath = &value
		case keyAudioDevice:
			audioDevice = &value
		case keyAudioVolumeControl:
			audioVolumeControl = &value
		case keyExecPrePlaybackPath:
			execPrePlaybackPath = &value
		case keyExecPostIdlePath:
			execPostIdlePath = &value
		case keyIdleTimeoutSeconds:
			secs, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, &errs.InvalidConfigError{Line: lineno, Msg: "idle_timeout_seconds must be an integer"}
			}
			idleTimeoutSeconds = &secs
		case keyHighPassCutoff:
			hz, err := parseHertz(value)
			if err != nil {
				return Config{}, &errs.InvalidConfigError{Line: lineno, Msg: err.Error()}
			}
			highPassCutoff = &hz
		case keyVolume:
			db, err := parseDecibel(value)
			if err != nil {
				return Config{}, &errs.InvalidConfigError{Line: lineno, Msg: err.Error()}
			}
			volume = &db
		default:
			return Config{}, &errs.InvalidConfigError{
				Line: lineno,
				Msg:  fmt.Sprintf("unknown key %q", key),
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, &errs.IOError{Err: err}
	}

	cfg := Config{}
	if listen != nil {
		cfg.Listen = *listen
	} else {
		cfg.Listen = defaultListen
	}

	var missing string
	switch {
	case libraryPath == nil:
		missing = "library_path"
	case coversPath == nil:
		missing = "covers_path"
	case dataPath == nil:
		missing = "data_path"
	case audioDevice == nil:
		missing = "audio_device"
	case audioVolumeControl == nil:
		missing = "audio_volume_control"
	case idleTimeoutSeconds == nil:
		missing = "idle_timeout_seconds"
	case highPassCutoff == nil:
		missing = "high_pass_cutoff"
	case volume == nil:
		missing = "volume"
	}
	if missing != "" {
		return Config{}, &errs.IncompleteConfigError{
			Msg: fmt.Sprintf("%s not set. Expected '%s ='-line.", missing, missing),
		}
	}

	cfg.LibraryPath = *libraryPath
	cfg.CoversPath = *coversPath
	cfg.DataPath = *dataPath
	cfg.AudioDevice = *audioDevice
	cfg.AudioVolumeControl = *audioVolumeControl
	if execPrePlaybackPath != nil {
		cfg.ExecPrePlaybackPath = *execPrePlaybackPath
	}
	if execPostIdlePath != nil {
		cfg.ExecPostIdlePath = *execPostIdlePath
	}
	cfg.IdleTimeout = time.Duration(*idleTimeoutSeconds) * time.Second
	cfg.HighPassCutoff = *highPassCutoff
	cfg.Volume = *volume

	return cfg, nil
}

// parseHertz parses values of the form "N Hz", per spec §6.
func parseHertz(s string) (prim.Hertz, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 || !strings.EqualFold(fields[1], "Hz") {
		return 0, fmt.Errorf("high_pass_cutoff must look like '120 Hz', got %q", s)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("high_pass_cutoff must look like '120 Hz', got %q", s)
	}
	return prim.Hertz(v), nil
}

// parseDecibel parses values of the form "N dB", negative typical.
func parseDecibel(s string) (prim.Millibel, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 || !strings.EqualFold(fields[1], "dB") {
		return 0, fmt.Errorf("volume must look like '-18 dB', got %q", s)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("volume must look like '-18 dB', got %q", s)
	}
	return prim.FromDecibels(v), nil
}
