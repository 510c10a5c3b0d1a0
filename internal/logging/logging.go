package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the rotating log file inside the log directory.
const LogFileName = "pulse-mcp.log"

// SetLevel applies the global level: debug when verbose, info otherwise.
func SetLevel(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// Init configures the global logger with two sinks: stderr (stdout carries
// the MCP protocol) and a rotating file in logDir. An empty logDir falls back
// to logs/ next to the binary.
func Init(verbose bool, logDir string) error {
	SetLevel(verbose)

	exeDir := ""
	if exePath, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exePath)
	}
	logDir = resolveLogDir(logDir, exeDir)
	if err := ensureWritable(logDir); err != nil {
		return err
	}

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	log.Logger = newLogger(console, fileSink(logDir))
	return nil
}

func newLogger(console io.Writer, file io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.MultiLevelWriter(console, file)).
		With().
		Timestamp().
		Logger()
}

func fileSink(logDir string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    16, // megabytes
		MaxBackups: 32,
		MaxAge:     365, // days
		Compress:   true,
	}
}

func resolveLogDir(configured, exeDir string) string {
	switch {
	case configured != "":
		return configured
	case exeDir != "":
		return filepath.Join(exeDir, "logs")
	default:
		return "logs"
	}
}

// ensureWritable creates dir and proves a file can be written into it.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	probe := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return fmt.Errorf("log directory %q is not writable: %w", dir, err)
	}
	_ = os.Remove(probe)
	return nil
}
