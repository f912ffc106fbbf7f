package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	sqldblogger "github.com/simukti/sqldb-logger"
)

// sqlLoggerOptions keeps sqldb-logger fields from colliding with the ones
// zerolog adds itself.
var sqlLoggerOptions = []sqldblogger.Option{
	sqldblogger.WithTimeFieldname("db_time"),
}

// sqlLogger routes sqldb-logger statement logs through zerolog. Individual
// statements are only interesting when tracing.
type sqlLogger struct {
	logger zerolog.Logger
}

func (l *sqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	var event *zerolog.Event
	switch level {
	case sqldblogger.LevelError:
		event = l.logger.Error()
	default:
		event = l.logger.Trace()
	}

	event.Fields(data).Msg(msg)
}

// gooseLogger adapts zerolog to goose.Logger.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Fatal(v ...interface{}) {
	l.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprint(v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Print(v ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprint(v...)))
}

func (l gooseLogger) Println(v ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
