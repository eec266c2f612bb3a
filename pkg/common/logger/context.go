package logger

import "context"

// LoggerContext accumulates attributes across the lifetime of an operation
// so later log lines carry context discovered earlier in the flow.
type LoggerContext struct {
	logger *Logger
	args   []any
}

// NewLoggerContext constructs a LoggerContext around an existing logger.
func NewLoggerContext(logger *Logger) *LoggerContext {
	return &LoggerContext{logger: logger}
}

// Add appends attributes that will be included on every subsequent record.
func (lc *LoggerContext) Add(args ...any) { lc.args = append(lc.args, args...) }

// Debug logs at LevelDebug with the accumulated attributes.
func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.logger.Debugc(ctx, 3, msg, lc.merged(args)...)
}

// Info logs at LevelInfo with the accumulated attributes.
func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.logger.Infoc(ctx, 3, msg, lc.merged(args)...)
}

// Warn logs at LevelWarn with the accumulated attributes.
func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.logger.Warnc(ctx, 3, msg, lc.merged(args)...)
}

// Error logs at LevelError with the accumulated attributes.
func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.logger.Errorc(ctx, 3, msg, lc.merged(args)...)
}

func (lc *LoggerContext) merged(args []any) []any {
	if len(lc.args) == 0 {
		return args
	}
	merged := make([]any, 0, len(lc.args)+len(args))
	merged = append(merged, lc.args...)
	return append(merged, args...)
}
