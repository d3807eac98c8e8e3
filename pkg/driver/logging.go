package driver

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nxshell/nxshell/pkg/util"
)

// reservationLogs tees command logs into <dir>/<reservation>/<resource>.log
// so each sandbox keeps its own record of what the driver did.
type reservationLogs struct {
	dir string

	mu    sync.Mutex
	files map[string]*reservationLog
}

type reservationLog struct {
	file   *lumberjack.Logger
	logger *logrus.Logger
}

func newReservationLogs(dir string) *reservationLogs {
	return &reservationLogs{dir: dir, files: map[string]*reservationLog{}}
}

// entry returns the log entry for a command. Without a log directory or a
// reservation it logs through util.Logger only.
func (r *reservationLogs) entry(reservation, resourceName, command string) *logrus.Entry {
	fields := logrus.Fields{"resource": resourceName, "command": command}
	if reservation != "" {
		fields["reservation"] = reservation
	}
	if r.dir == "" || reservation == "" || resourceName == "" {
		return util.WithCommand(command).WithFields(fields)
	}

	path := filepath.Join(r.dir, util.SanitizeName(reservation), util.SanitizeName(resourceName)+".log")
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.files[path]
	if !ok {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
		}
		logger := logrus.New()
		logger.SetOutput(io.MultiWriter(util.Logger.Out, file))
		logger.SetFormatter(util.Logger.Formatter)
		l = &reservationLog{file: file, logger: logger}
		r.files[path] = l
	}
	l.logger.SetLevel(util.Logger.GetLevel())
	return l.logger.WithFields(fields)
}

// Close closes every open log file.
func (r *reservationLogs) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs error
	for path, l := range r.files {
		errs = multierr.Append(errs, l.file.Close())
		delete(r.files, path)
	}
	return errs
}
