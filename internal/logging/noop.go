package logging

import "context"

// NoopLogger discards everything. Useful in tests that assert on
// behavior rather than log output.
type NoopLogger struct{}

func NewNoopLogger() Logger { return &NoopLogger{} }

func (n *NoopLogger) Info(msg string, fields ...interface{})  {}
func (n *NoopLogger) Warn(msg string, fields ...interface{})  {}
func (n *NoopLogger) Error(msg string, fields ...interface{}) {}
func (n *NoopLogger) Debug(msg string, fields ...interface{}) {}
func (n *NoopLogger) Fatal(msg string, fields ...interface{}) {}

func (n *NoopLogger) InfoContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoopLogger) WarnContext(ctx context.Context, msg string, fields ...interface{})  {}
func (n *NoopLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {}
func (n *NoopLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {}

func (n *NoopLogger) WithTraceID(traceID string) Logger     { return n }
func (n *NoopLogger) WithComponent(component string) Logger { return n }
