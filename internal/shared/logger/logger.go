package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"proxyfeed/internal/shared/settings"
	"proxyfeed/internal/shared/types"
)

// Init initializes the global zerolog logger from the [log] section.
func Init(cfg types.LogConf) error {
	return InitWithWriter(cfg, os.Stderr)
}

// InitWithWriter is Init with an explicit destination. The CLI uses it to keep
// stdout clean for subscription bodies.
func InitWithWriter(cfg types.LogConf, out io.Writer) error {
	levelStr := strings.ToLower(cfg.Level)
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
		if levelStr != "" {
			fmt.Printf("Unknown log level '%s', defaulting to 'info'\n", levelStr)
		}
	}

	// Force all timestamps to be in UTC.
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	var w io.Writer = out
	if !cfg.JSON {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	// logger 本身保持 trace，实际级别由全局级别控制，运行时调整只改全局级别
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(w).
		Level(zerolog.TraceLevel).
		With().
		Timestamp().
		Logger()

	Debug().Msgf("Logger initialized with level: %s", level.String())
	return nil
}

// SetLevel changes the global level at runtime. It is safe to call while
// other goroutines are logging.
func SetLevel(levelStr string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	if level == zerolog.NoLevel {
		return fmt.Errorf("invalid log level %q", levelStr)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Level returns the current global level.
func Level() zerolog.Level {
	return zerolog.GlobalLevel()
}

// 这对于在日志中区分不同模块或组件的输出非常有用。
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// LevelSubscriber applies the "logging" runtime settings module.
type LevelSubscriber struct{}

// OnSettingsUpdate implements settings.ConfigurableModule.
func (LevelSubscriber) OnSettingsUpdate(moduleKey string, newSettings interface{}) error {
	ls, ok := newSettings.(*settings.LoggingSettings)
	if !ok {
		return fmt.Errorf("unexpected settings type %T for module %s", newSettings, moduleKey)
	}
	if ls.Level == "" {
		return nil
	}
	if err := SetLevel(ls.Level); err != nil {
		return err
	}
	Info().Str("level", ls.Level).Msg("Log level updated from runtime settings.")
	return nil
}

// Event is a wrapper for a zerolog event.
type Event struct {
	*zerolog.Event
}

// Debug starts a new message with debug level.
func Debug() *Event {
	return &Event{log.Debug()}
}

// Info starts a new message with info level.
func Info() *Event {
	return &Event{log.Info()}
}

// Warn starts a new message with warning level.
func Warn() *Event {
	return &Event{log.Warn()}
}

// Error starts a new message with error level.
func Error() *Event {
	return &Event{log.Error()}
}

// Fatal starts a new message with fatal level. The program will exit.
func Fatal() *Event {
	return &Event{log.Fatal()}
}

// Str adds a string field to the event.
func (e *Event) Str(key, value string) *Event {
	e.Event = e.Event.Str(key, value)
	return e
}

// Int adds an integer field to the event.
func (e *Event) Int(key string, value int) *Event {
	e.Event = e.Event.Int(key, value)
	return e
}

func (e *Event) Bool(key string, value bool) *Event {
	e.Event = e.Event.Bool(key, value)
	return e
}

// Err adds an error field to the event.
func (e *Event) Err(err error) *Event {
	e.Event = e.Event.Err(err)
	return e
}

// Msgf sends the event with a formatted message.
// This is a convenience method and is less performant than using structured fields.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Event.Msgf(format, v...)
}
