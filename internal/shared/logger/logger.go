package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrObj for error logs
type ErrObj struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// Entry — одна запись лога. Service, hostname и timestamp заполняются логгером.
type Entry struct {
	Action           string         // event name, e.g. request_accepted
	Message          string         // human-readable
	CorrelationID    string         // http correlation id
	ServiceRequestID string         // when applicable
	Error            *ErrObj        // only for ERROR
	Additional       map[string]any // optional extras
}

type Logger struct {
	service string
	base    *logrus.Logger
	errOut  *logrus.Logger

	mu      sync.Mutex
	closers []io.Closer
}

func newFormatter(pretty bool) logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		PrettyPrint:     pretty,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyLevel: "level",
		},
	}
}

// NewLogger stdout-only (recommended for prod)
func NewLogger(service string) *Logger {
	l, _ := NewLoggerWithOptions(service, os.Getenv("LOG_LEVEL"), "")
	return l
}

// NewLoggerWithOptions supports minLevel and optional fileDir (dev).
// If fileDir != "", logs are also duplicated into info.log and error.log.
func NewLoggerWithOptions(service, minLevelStr, fileDir string) (*Logger, error) {
	pretty := strings.ToLower(os.Getenv("LOG_PRETTY")) == "true"

	var outWriter io.Writer = os.Stdout
	var errWriter io.Writer = os.Stderr
	var closers []io.Closer

	if fileDir != "" {
		if err := os.MkdirAll(fileDir, 0o755); err != nil {
			return nil, fmt.Errorf("create logs dir: %w", err)
		}
		infoF, err := os.OpenFile(filepath.Join(fileDir, "info.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return nil, fmt.Errorf("open info log: %w", err)
		}
		errF, err := os.OpenFile(filepath.Join(fileDir, "error.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			_ = infoF.Close()
			return nil, fmt.Errorf("open error log: %w", err)
		}
		outWriter = io.MultiWriter(os.Stdout, infoF)
		errWriter = io.MultiWriter(os.Stderr, errF)
		closers = append(closers, infoF, errF)
	}

	return newWithWriters(service, ParseLevel(minLevelStr), pretty, outWriter, errWriter, closers), nil
}

// NewWithWriter пишет все уровни в один writer (тесты, утилиты)
func NewWithWriter(service string, level logrus.Level, w io.Writer) *Logger {
	return newWithWriters(service, level, false, w, w, nil)
}

func newWithWriters(service string, level logrus.Level, pretty bool, out, errOut io.Writer, closers []io.Closer) *Logger {
	mk := func(w io.Writer) *logrus.Logger {
		lg := logrus.New()
		lg.SetOutput(w)
		lg.SetFormatter(newFormatter(pretty))
		lg.SetLevel(level)
		return lg
	}
	return &Logger{
		service: service,
		base:    mk(out),
		errOut:  mk(errOut),
		closers: closers,
	}
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR onto logrus levels; INFO by default.
func ParseLevel(s string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.closers {
		_ = c.Close()
	}
	l.closers = nil
}

func (l *Logger) Debug(e Entry) { l.log(logrus.DebugLevel, e, nil) }
func (l *Logger) Info(e Entry)  { l.log(logrus.InfoLevel, e, nil) }
func (l *Logger) Warn(e Entry)  { l.log(logrus.WarnLevel, e, nil) }
func (l *Logger) Error(e Entry) { l.log(logrus.ErrorLevel, e, nil) }
func (l *Logger) Fatal(e Entry) {
	// include stack automatically for fatal
	if e.Error == nil {
		e.Error = &ErrObj{Msg: e.Message, Stack: string(debug.Stack())}
	} else if e.Error.Stack == "" {
		e.Error.Stack = string(debug.Stack())
	}
	l.log(logrus.ErrorLevel, e, nil)
	os.Exit(1)
}

// WithFields returns a shallow "context" logger that auto-merges Additional fields.
func (l *Logger) WithFields(base map[string]any) *ContextLogger {
	return &ContextLogger{parent: l, base: base}
}

// WithContext attaches correlation_id and service_request_id.
func (l *Logger) WithContext(correlationID, serviceRequestID string) *ContextLogger {
	base := map[string]any{}
	if correlationID != "" {
		base["correlation_id"] = correlationID
	}
	if serviceRequestID != "" {
		base["service_request_id"] = serviceRequestID
	}
	return &ContextLogger{parent: l, base: base}
}

type ContextLogger struct {
	parent *Logger
	base   map[string]any
}

func (c *ContextLogger) Debug(e Entry) { c.parent.log(logrus.DebugLevel, e, c.base) }
func (c *ContextLogger) Info(e Entry)  { c.parent.log(logrus.InfoLevel, e, c.base) }
func (c *ContextLogger) Warn(e Entry)  { c.parent.log(logrus.WarnLevel, e, c.base) }
func (c *ContextLogger) Error(e Entry) { c.parent.log(logrus.ErrorLevel, e, c.base) }
func (c *ContextLogger) Fatal(e Entry) { c.parent.Fatal(mergeEntry(e, c.base)) }

var reserved = map[string]struct{}{
	"timestamp": {}, "level": {}, "service": {}, "action": {}, "message": {},
	"hostname": {}, "correlation_id": {}, "service_request_id": {}, "error": {},
}

var hostname = func() string {
	h, _ := os.Hostname()
	return h
}()

func (l *Logger) log(level logrus.Level, e Entry, base map[string]any) {
	target := l.base
	if level <= logrus.ErrorLevel {
		target = l.errOut
	}
	if !target.IsLevelEnabled(level) {
		return
	}

	e = mergeEntry(e, base)

	fields := logrus.Fields{
		"service":  l.service,
		"hostname": hostname,
		"action":   e.Action,
	}
	if e.CorrelationID != "" {
		fields["correlation_id"] = e.CorrelationID
	}
	if e.ServiceRequestID != "" {
		fields["service_request_id"] = e.ServiceRequestID
	}
	if e.Error != nil {
		fields["error"] = e.Error
	}

	additional := map[string]any{}
	for k, v := range e.Additional {
		additional[k] = v
	}
	if _, ok := additional["caller"]; !ok {
		if pc, file, line, ok := runtime.Caller(2); ok {
			additional["caller"] = fmt.Sprintf("%s:%d (%s)", file, line, funcName(runtime.FuncForPC(pc)))
		}
	}
	fields["additional"] = additional

	target.WithFields(fields).Log(level, e.Message)
}

func funcName(fn *runtime.Func) string {
	if fn == nil {
		return "unknown"
	}
	return fn.Name()
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func mergeEntry(e Entry, base map[string]any) Entry {
	if base == nil {
		return e
	}
	if e.Additional == nil {
		e.Additional = map[string]any{}
	}
	for k, v := range base {
		if _, skip := reserved[k]; skip {
			continue
		}
		if _, exists := e.Additional[k]; !exists {
			e.Additional[k] = v
		}
	}
	if e.CorrelationID == "" {
		e.CorrelationID = toString(base["correlation_id"])
	}
	if e.ServiceRequestID == "" {
		e.ServiceRequestID = toString(base["service_request_id"])
	}
	return e
}
