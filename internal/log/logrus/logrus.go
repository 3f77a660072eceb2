package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/taskward/taskward/internal/log"
)

type logger struct {
	*logrus.Entry
}

// NewLogrus returns a log.Logger implemented with logrus.
func NewLogrus(l *logrus.Entry) log.Logger {
	return logger{Entry: l}
}

func (l logger) Infof(format string, args ...any)    { l.Entry.Infof(format, args...) }
func (l logger) Warningf(format string, args ...any) { l.Entry.Warningf(format, args...) }
func (l logger) Errorf(format string, args ...any)   { l.Entry.Errorf(format, args...) }
func (l logger) Debugf(format string, args ...any)   { l.Entry.Debugf(format, args...) }

func (l logger) WithValues(values log.Kv) log.Logger {
	return logger{Entry: l.Entry.WithFields(logrus.Fields(values))}
}
