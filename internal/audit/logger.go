package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wallet-adapter/connector/internal/adapter"
	"github.com/wallet-adapter/connector/internal/auth"
	"github.com/wallet-adapter/connector/internal/config"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CodeSuccess is recorded for actions that did not fail.
const CodeSuccess = "SUCCESS"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Network   string                 `json:"network"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	Reason    string                 `json:"reason,omitempty"`
}

// Logger writes audit entries to a rotating JSON-lines file.
type Logger struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	now    func() time.Time
}

var _ adapter.AuditLogger = (*Logger)(nil)

// NewLogger creates an audit logger writing to cfg.Path.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Logger{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		now: time.Now,
	}, nil
}

// LogAction records one connector action. A nil err is a success.
func (l *Logger) LogAction(ctx context.Context, action, network string, params map[string]interface{}, err error) {
	entry := AuditEntry{
		Timestamp: l.now().UTC(),
		User:      UserFromContext(ctx),
		Network:   network,
		Action:    action,
		Params:    params,
		Outcome:   OutcomeSuccess,
		Code:      CodeSuccess,
	}

	if err != nil {
		entry.Outcome = OutcomeFailure
		entry.Code, entry.Reason = codeFromError(err)
	}

	l.writeEntry(entry)
}

// writeEntry writes an audit entry to the log file.
func (l *Logger) writeEntry(entry AuditEntry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		log.Printf("audit: failed to marshal entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return
	}
	if _, err := l.writer.Write(append(jsonData, '\n')); err != nil {
		log.Printf("audit: failed to write entry: %v", err)
	}
}

// codeFromError maps err to its operation code and provider reason.
func codeFromError(err error) (string, string) {
	var ce *adapter.ConnectorError
	if errors.As(err, &ce) {
		return ce.Code.Error(), ce.Reason
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED", ""
	}
	return "ERROR", ""
}

// Rotate closes the current file and starts a new one, keeping the old as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return fmt.Errorf("audit logger closed")
	}
	if err := l.writer.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}

// Close closes the audit logger. Later entries are discarded.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}
	err := l.writer.Close()
	l.writer = nil
	return err
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return ""
	}
	return l.writer.Filename
}

type userKey struct{}

// WithUser returns a copy of ctx attributing actions to user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user set by WithUser, then the subject of
// verified bridge claims, then "unknown".
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
		return user
	}
	if claims := auth.ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return "unknown"
}
