//
//
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/rfcontrol/internal/device"
)

// FileName is the audit log file created inside the configured directory.
const FileName = "audit.jsonl"

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	Actor     string                 `json:"actor"`
	DeviceID  string                 `json:"deviceId"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs int64                  `json:"latencyMs"`
}

// Options controls where the audit log goes and how it rotates.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *lumberjack.Logger
}

type actorKey struct{}

// WithActor records who is calling, typically the remote address.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor, or "unknown".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "unknown"
}

// NewLogger creates a new audit logger writing to <dir>/audit.jsonl.
func NewLogger(opts Options) (*Logger, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("audit directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(opts.Dir, FileName)
	return &Logger{
		filePath: filePath,
		file: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}, nil
}

// Coder is implemented by errors that carry a stable outcome code.
type Coder interface {
	ErrorCode() string
}

// LogAction logs an audit record for an action. A nil err records SUCCESS;
// otherwise the outcome is the error's code, or ERROR when it has none.
func (l *Logger) LogAction(ctx context.Context, action, deviceID string, params map[string]interface{}, err error, latency time.Duration) {
	code := "SUCCESS"
	if err != nil {
		code = codeFromError(err)
	}
	params = finiteParams(params)

	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		Actor:     ActorFromContext(ctx),
		DeviceID:  deviceID,
		Action:    action,
		Params:    params,
		Outcome:   code,
		Code:      code,
		LatencyMs: latency.Milliseconds(),
	})
}

func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	if _, err := l.file.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

func codeFromError(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return "ERROR"
}

// finiteParams copies params, rendering non-finite floats as text.
func finiteParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if f, ok := v.(float64); ok {
			out[k] = device.JSONNumber(f)
			continue
		}
		out[k] = v
	}
	return out
}

// Rotate closes the current file, renames it with a timestamp and opens a new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit logger closed")
	}
	return l.file.Rotate()
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// FilePath returns the path to the active audit log file.
func (l *Logger) FilePath() string {
	return l.filePath
}
