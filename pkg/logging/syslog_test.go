package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

func TestSyslogFormatterPriorities(t *testing.T) {
	cases := []struct {
		level  logrus.Level
		prefix string
	}{
		{logrus.ErrorLevel, "<3>"},
		{logrus.WarnLevel, "<4>"},
		{logrus.InfoLevel, "<6>"},
		{logrus.DebugLevel, "<7>"},
		{logrus.TraceLevel, "<7>"},
	}
	for _, tc := range cases {
		t.Run(tc.level.String(), func(t *testing.T) {
			entry := &logrus.Entry{
				Level:   tc.level,
				Message: "hello",
				Data:    logrus.Fields{ComponentField: "twin"},
			}
			out, err := (&SyslogFormatter{}).Format(entry)
			assert.NilError(t, err)
			assert.Equal(t, string(out), tc.prefix+"twin: hello\n")
		})
	}
}

func TestSyslogFormatterFields(t *testing.T) {
	entry := &logrus.Entry{
		Level:   logrus.InfoLevel,
		Message: "sent",
		Data: logrus.Fields{
			ComponentField:  "twin",
			"b":             2,
			"a":             "x",
			logrus.ErrorKey: errors.New("boom"),
		},
	}
	out, err := (&SyslogFormatter{}).Format(entry)
	assert.NilError(t, err)
	assert.Equal(t, string(out), `<6>twin: sent a="x" b="2" error="boom"`+"\n")
}

func TestJournalSplitsLevels(t *testing.T) {
	var stdout, stderr bytes.Buffer

	l := logrus.New()
	assert.NilError(t, Journal(&stdout, &stderr)(l))
	l.SetLevel(logrus.DebugLevel)

	log := l.WithField(ComponentField, "main")
	log.Info("informational")
	log.Debug("chatter")
	log.Error("broken")

	assert.Check(t, is.Contains(stdout.String(), "<6>main: informational"))
	assert.Check(t, is.Contains(stdout.String(), "<7>main: chatter"))
	assert.Check(t, !strings.Contains(stdout.String(), "broken"))
	assert.Equal(t, stderr.String(), "<3>main: broken\n")
}
