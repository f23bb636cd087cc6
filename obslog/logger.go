package obslog

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation policy for every log file this package writes (spec §6
// filesystem layout: "rotating: 10 MB, 3 backups").
const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
)

// RepoLogFilename is the rotating log file a repo-mode process writes
// under its state root.
const RepoLogFilename = "codex-autorunner.log"

// HubLogFilename is the rotating log file a hub-mode process writes under
// its state root.
const HubLogFilename = "codex-autorunner-hub.log"

// New builds a logger for component (e.g. "engine", "hub", "orchestrator")
// writing structured JSON to w plus a human-readable console stream to
// os.Stderr. Callers pass the returned value down explicitly; nothing here
// is stored in a global.
func New(component string, w io.Writer) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	multi := zerolog.MultiLevelWriter(w, console)
	return zerolog.New(multi).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// RotatingWriter returns a lumberjack-backed io.Writer that rotates path
// at 10 MB keeping 3 backups, creating its directory if needed.
func RotatingWriter(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
	}, nil
}

// NewRepoLogger builds the component logger for a repo-mode process,
// rotating into <stateRoot>/codex-autorunner.log.
func NewRepoLogger(component, stateRoot string) (zerolog.Logger, error) {
	w, err := RotatingWriter(filepath.Join(stateRoot, RepoLogFilename))
	if err != nil {
		return zerolog.Logger{}, err
	}
	return New(component, w), nil
}

// NewHubLogger builds the component logger for a hub-mode process,
// rotating into <stateRoot>/codex-autorunner-hub.log.
func NewHubLogger(component, stateRoot string) (zerolog.Logger, error) {
	w, err := RotatingWriter(filepath.Join(stateRoot, HubLogFilename))
	if err != nil {
		return zerolog.Logger{}, err
	}
	return New(component, w), nil
}
