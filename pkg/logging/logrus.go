package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// ComponentField names the emitting component of a log line.
const ComponentField = "component"

// SubComponentField may be set by components to further qualify the emitter.
const SubComponentField = "subcomponent"

type Setter func(*logrus.Logger) error

var root = struct {
	logger *logrus.Logger
	mutex  *sync.Mutex
}{
	logger: func() *logrus.Logger {
		l := logrus.New()

		l.SetFormatter(&SyslogFormatter{})
		if Debuggable {
			l.SetLevel(logrus.DebugLevel)
		}

		return l
	}(),
	mutex: &sync.Mutex{},
}

type Logger interface {
	logrus.FieldLogger

	Writer() *io.PipeWriter
	WriterLevel(logrus.Level) *io.PipeWriter
}

func New(component string, setters ...Setter) Logger {
	for _, setter := range setters {
		// no errors handling for now
		_ = Set(setter)
	}
	return root.logger.WithField(ComponentField, component)
}

func Set(setter Setter) error {
	root.mutex.Lock()
	err := setter(root.logger)
	root.mutex.Unlock()
	return err
}

func Level(lvl string) Setter {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		root.logger.WithError(err).Errorf("unable to parse provided level %q", lvl)
		l = logrus.DebugLevel
	}
	return func(r *logrus.Logger) error {
		r.SetLevel(l)
		return nil
	}
}

// Journal configures the root logger for a systemd managed process: errors
// are written to stderr, all other levels to stdout. Lines carry the syslog
// priority prefix so that journald assigns the matching priority.
func Journal(stdout, stderr io.Writer) Setter {
	return func(r *logrus.Logger) error {
		r.SetFormatter(&SyslogFormatter{})
		r.SetOutput(io.Discard)
		hooks := make(logrus.LevelHooks)
		hooks.Add(&SplitHook{output: stdout, levels: []logrus.Level{
			logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel}})
		hooks.Add(&SplitHook{output: stderr, levels: []logrus.Level{
			logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}})
		r.ReplaceHooks(hooks)
		return nil
	}
}
