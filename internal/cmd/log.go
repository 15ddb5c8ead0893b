package cmd

import (
	"cmp"
	"io"
	"log/slog"
	"os"

	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Special values of the log file path.
const (
	logFileStdout = "stdout"
	logFileStderr = "stderr"
)

// newBaseLogger returns the base logger configured from the command-line
// options and the configuration file.  The command-line options take
// precedence.  conf must be valid.
func newBaseLogger(opts *options, conf *configmgr.LogConfig) (l *slog.Logger) {
	lvl := slog.LevelInfo
	if opts.verbose || conf.Verbose {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Output:       newLogOutput(cmp.Or(opts.logFile, conf.File), conf),
		Format:       slogutil.Format(conf.Format),
		Level:        lvl,
		AddTimestamp: true,
	})
}

// newLogOutput returns the writer for the log entries for the given file path.
// An empty path means stdout.
func newLogOutput(file string, conf *configmgr.LogConfig) (w io.Writer) {
	switch file {
	case "", logFileStdout:
		return os.Stdout
	case logFileStderr:
		return os.Stderr
	default:
		return &lumberjack.Logger{
			Filename:   file,
			MaxSize:    conf.MaxSizeMB(),
			MaxAge:     conf.MaxAgeDays(),
			MaxBackups: conf.MaxBackups,
			Compress:   conf.Compress,
			LocalTime:  conf.LocalTime,
		}
	}
}
