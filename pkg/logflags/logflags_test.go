package logflags

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestMakeLogger_usingLoggerFactory(t *testing.T) {
	if loggerFactory != nil {
		t.Fatalf("expected loggerFactory to be nil; but was <%v>", loggerFactory)
	}
	defer func() {
		loggerFactory = nil
	}()
	if logOut != nil {
		t.Fatalf("expected logOut to be nil; but was <%v>", logOut)
	}
	logOut = &bufferWriter{}
	defer func() {
		logOut = nil
	}()

	expectedLogger := &logrusLogger{}
	SetLoggerFactory(func(level logrus.Level, fields Fields, out io.Writer) Logger {
		if level != logrus.TraceLevel {
			t.Fatalf("expected level to be <%v>; but was <%v>", logrus.TraceLevel, level)
		}
		if len(fields) != 1 || fields["foo"] != "bar" {
			t.Fatalf("expected fields to be {'foo':'bar'}; but was <%v>", fields)
		}
		if out != logOut {
			t.Fatalf("expected out to be <%v>; but was <%v>", logOut, out)
		}
		return expectedLogger
	})

	actual := makeLogger(logrus.TraceLevel, Fields{"foo": "bar"})
	if actual != expectedLogger {
		t.Fatalf("expected actual to <%v>; but was <%v>", expectedLogger, actual)
	}
}

func TestMakeFlaggableLogger(t *testing.T) {
	for _, tc := range []struct {
		flag  bool
		level logrus.Level
	}{
		{false, logrus.ErrorLevel},
		{true, logrus.DebugLevel},
	} {
		actual := makeFlaggableLogger(tc.flag, Fields{"foo": "bar"})
		actualEntry, expectedType := actual.(*logrusLogger)
		if !expectedType {
			t.Fatalf("expected actual to be of type <%v>; but was <%v>", reflect.TypeOf((*logrusLogger)(nil)), reflect.TypeOf(actual))
		}
		if actualEntry.Entry.Logger.Level != tc.level {
			t.Fatalf("flag %v: expected level <%v>; but was <%v>", tc.flag, tc.level, actualEntry.Logger.Level)
		}
		if len(actualEntry.Entry.Data) != 1 || actualEntry.Data["foo"] != "bar" {
			t.Fatalf("expected actualEntry.Entry.Data to be {'foo':'bar'}; but was <%v>", actualEntry.Data)
		}
	}
}

func TestMakeLogger_usingDefaultBehavior(t *testing.T) {
	if logOut != nil {
		t.Fatalf("expected logOut to be nil; but was <%v>", logOut)
	}
	logOut = &bufferWriter{}
	defer func() {
		logOut = nil
	}()

	actual := makeLogger(logrus.TraceLevel, Fields{"foo": "bar"})

	actualEntry, expectedType := actual.(*logrusLogger)
	if !expectedType {
		t.Fatalf("expected actual to be of type <%v>; but was <%v>", reflect.TypeOf((*logrusLogger)(nil)), reflect.TypeOf(actual))
	}
	if actualEntry.Entry.Logger.Out != logOut {
		t.Fatalf("expected actualEntry.Entry.Logger.Out to be <%v>; but was <%v>", logOut, actualEntry.Logger.Out)
	}
	if actualEntry.Entry.Logger.Formatter != textFormatterInstance {
		t.Fatalf("expected actualEntry.Entry.Logger.Formatter to be <%v>; but was <%v>", textFormatterInstance, actualEntry.Logger.Formatter)
	}
}

func TestSetupComponents(t *testing.T) {
	defer func() {
		bootstrap, gdbMI, host, terminal, gdbOutput = false, false, false, false, false
	}()

	if err := Setup(false, "gdbmi", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected %v; got %v", errLogstrWithoutLog, err)
	}
	if err := Setup(true, "gdbmi,host", ""); err != nil {
		t.Fatal(err)
	}
	if !GdbMI() || !Host() {
		t.Fatalf("expected gdbmi and host to be enabled")
	}
	if Bootstrap() || Terminal() || GdbOutput() {
		t.Fatalf("unexpected component enabled")
	}
}

func TestSetupDefaultComponent(t *testing.T) {
	defer func() {
		bootstrap = false
	}()
	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Bootstrap() {
		t.Fatalf("expected bootstrap logging to be enabled by default")
	}
}

func TestTextFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.DebugLevel,
		Message: "-> ^done",
		Data:    logrus.Fields{"layer": "gdbmi"},
	}
	out, err := textFormatterInstance.Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	expected := "2024-01-02T03:04:05Z debug layer=gdbmi,-> ^done\n"
	if string(out) != expected {
		t.Fatalf("expected %q; got %q", expected, string(out))
	}
	if !strings.HasSuffix(string(out), "\n") {
		t.Fatalf("missing newline")
	}
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw bufferWriter) Close() error {
	return nil
}
