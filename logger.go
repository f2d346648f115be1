package httpcore

import (
	"io"

	"github.com/RackSec/srslog"
	"github.com/sirupsen/logrus"
)

// Log is the package-level logger, same pattern as the teacher's package
// variable of the same name: callers replace it (or call SetLevel/SetOutput
// on it) before using the library.
var Log = logrus.New()

// logger returns an entry scoped to a component id, mirroring the teacher's
// logger(id, q, ci) helper which attaches per-request fields to every line
// a resolver/group/router emits.
func logger(component string, fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = component
	return Log.WithFields(fields)
}

// AddSyslogHook sends every log line, at every level, to a syslog server,
// in addition to Log's normal output. Grounded on the teacher's syslog.go
// listener, repurposed here as a logging sink rather than a DNS listener.
func AddSyslogHook(network, raddr, tag string, priority srslog.Priority) error {
	w, err := srslog.Dial(network, raddr, priority, tag)
	if err != nil {
		return err
	}
	Log.AddHook(&syslogHook{writer: w})
	return nil
}

type syslogHook struct {
	writer io.Writer
}

func (h *syslogHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *syslogHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	_, err = io.WriteString(h.writer, line)
	return err
}
