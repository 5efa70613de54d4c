package observability

import "go.uber.org/zap"

// CronLogger adapts zap to the robfig/cron logger interface.
type CronLogger struct {
	logger *zap.SugaredLogger
}

// NewCronLogger wraps logger for the scheduler.
func NewCronLogger(logger *zap.Logger) CronLogger {
	return CronLogger{logger: logger.Named("cron").Sugar()}
}

// Info logs scheduler bookkeeping at debug level; it fires on every tick.
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

// Error logs scheduler failures, including recovered job panics.
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
