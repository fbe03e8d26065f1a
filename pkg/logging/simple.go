package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
)

// newColorFunc forces fatih/color to emit escape codes regardless of its
// own terminal/NO_COLOR autodetection, so SimpleLogSink.useColor - set
// explicitly by the caller of NewSimpleLogSink/NewSimpleLogger - is the
// sole switch colorize consults, not whichever stream happens to back it.
func newColorFunc(attr color.Attribute) func(a ...interface{}) string {
	c := color.New(attr)
	c.EnableColor()
	return c.SprintFunc()
}

// Define colored labels using fatih/color
var (
	infoColor  = newColorFunc(color.FgGreen)
	debugColor = newColorFunc(color.FgCyan)
	traceColor = newColorFunc(color.FgYellow) // Yellow is closest to brown
	errorColor = newColorFunc(color.FgRed)
	// volumeColor highlights a physical- or logical-volume identifier among
	// a trace line's key/value pairs, so a checksum or address-mapping
	// trace reads back to the PV/LV it concerns at a glance.
	volumeColor = newColorFunc(color.FgMagenta)
)

// isVolumeIdentifierKey reports whether key names a physical- or
// logical-volume identifier worth visually distinguishing from ordinary
// trace data in checksum-verification and address-mapping output.
func isVolumeIdentifierKey(key string) bool {
	switch key {
	case "pv", "pvs", "lv", "uuid":
		return true
	default:
		return false
	}
}

// SimpleLogSink implements the logr.LogSink interface for human-readable output with colors.
type SimpleLogSink struct {
	writer       io.Writer
	minVerbosity int
	name         string
	keyValues    []interface{}
	mutex        sync.Mutex
	callDepth    int
	useColor     bool
}

// NewSimpleLogSink creates a new SimpleLogSink.
// If writer is nil, it defaults to os.Stdout.
// minVerbosity sets the minimum verbosity level to log.
func NewSimpleLogSink(writer io.Writer, minVerbosity int, useColor bool) *SimpleLogSink {
	if writer == nil {
		writer = os.Stdout
	}
	return &SimpleLogSink{
		writer:       writer,
		minVerbosity: minVerbosity,
		name:         "",
		keyValues:    []interface{}{},
		useColor:     useColor,
	}
}

// Init initializes the logger with runtime information.
func (s *SimpleLogSink) Init(info logr.RuntimeInfo) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callDepth = info.CallDepth
}

// Enabled determines if the logger is enabled for the given verbosity level.
func (s *SimpleLogSink) Enabled(level int) bool {
	return level <= s.minVerbosity
}

// Info logs a non-error message with key-value pairs.
func (s *SimpleLogSink) Info(level int, msg string, keysAndValues ...interface{}) {
	if !s.Enabled(level) {
		return
	}
	s.log(false, level, msg, keysAndValues...)
}

// Error logs an error message with key-value pairs.
func (s *SimpleLogSink) Error(err error, msg string, keysAndValues ...interface{}) {
	allKeysAndValues := append(keysAndValues, "error", err)
	s.log(true, 0, msg, allKeysAndValues...) // Level is irrelevant for errors
}

// WithValues adds key-value pairs to the logger.
func (s *SimpleLogSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	newKeyValues := append(append([]interface{}{}, s.keyValues...), keysAndValues...)
	return &SimpleLogSink{
		writer:       s.writer,
		minVerbosity: s.minVerbosity,
		name:         s.name,
		keyValues:    newKeyValues,
		useColor:     s.useColor,
	}
}

// WithName adds a name to the logger.
func (s *SimpleLogSink) WithName(name string) logr.LogSink {
	newName := name
	if s.name != "" {
		newName = fmt.Sprintf("%s.%s", s.name, name)
	}
	return &SimpleLogSink{
		writer:       s.writer,
		minVerbosity: s.minVerbosity,
		name:         newName,
		keyValues:    append([]interface{}{}, s.keyValues...),
		useColor:     s.useColor,
	}
}

// V returns a copy of this SimpleLogSink. level is not used: the copy keeps
// this sink's minimum verbosity.
func (s *SimpleLogSink) V(level int) logr.LogSink {
	return &SimpleLogSink{
		writer:       s.writer,
		minVerbosity: s.minVerbosity,
		name:         s.name,
		keyValues:    append([]interface{}{}, s.keyValues...),
		useColor:     s.useColor,
	}
}

// log handles the formatting and writing of log messages with colors.
func (s *SimpleLogSink) log(isError bool, level int, msg string, keysAndValues ...interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var label string
	if isError {
		label = s.colorize(errorColor, "[ERROR]") + " "
	} else {
		switch level {
		case LEVEL_INFO:
			label = s.colorize(infoColor, "[INFO]") + " "
		case LEVEL_DEBUG:
			label = s.colorize(debugColor, "[DEBUG]") + " "
		case LEVEL_TRACE:
			label = s.colorize(traceColor, "[TRACE]") + " "
		default:
			label = fmt.Sprintf("[LEVEL %d] ", level)
		}
	}

	// Construct the full message with optional name
	fullMsg := msg
	if s.name != "" {
		fullMsg = fmt.Sprintf("[%s] %s", s.name, msg)
	}

	// Combine label and message
	fullMsg = label + fullMsg

	// Write the message
	fmt.Fprintln(s.writer, fullMsg)

	// Write key-value pairs indented by two spaces, highlighting PV/LV
	// identifiers so a reader can pick a volume's trail out of a busy trace.
	// s.keyValues carries context attached via WithValues (e.g. Logger.WithPV/
	// WithLV) and is printed ahead of this call's own pairs.
	allKeysAndValues := append(append([]interface{}{}, s.keyValues...), keysAndValues...)
	for i := 0; i < len(allKeysAndValues)-1; i += 2 {
		key, ok := allKeysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("key%d", i/2)
		}
		value := fmt.Sprintf("%v", allKeysAndValues[i+1])
		if isVolumeIdentifierKey(key) {
			value = s.colorize(volumeColor, value)
		}
		fmt.Fprintf(s.writer, "  %s: %s\n", key, value)
	}
}

// colorize applies c to text when the sink was constructed with useColor,
// and passes text through unchanged otherwise.
func (s *SimpleLogSink) colorize(c func(a ...interface{}) string, text string) string {
	if !s.useColor {
		return text
	}
	return c(text)
}

// NewSimpleLogger creates a new logr.Logger using SimpleLogSink.
// If writer is nil, it defaults to os.Stdout.
// minVerbosity sets the minimum verbosity level to log.
func NewSimpleLogger(writer io.Writer, minVerbosity int, useColor bool) logr.Logger {
	sink := NewSimpleLogSink(writer, minVerbosity, useColor)
	return logr.New(sink)
}
