package berth

import (
	"context"

	"github.com/xraph/go-utils/log"
)

// LoggingMiddleware writes one log line per registry event. The registry's
// own logger only reports failures and lifecycle milestones; use this for a
// full trace.
type LoggingMiddleware struct {
	logger log.Logger
}

// NewLoggingMiddleware creates middleware logging to logger.
func NewLoggingMiddleware(logger log.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &LoggingMiddleware{logger: logger}
}

// BeforeActivate implements Middleware.
func (l *LoggingMiddleware) BeforeActivate(_ context.Context, id ScopeID, key TypeKey) error {
	l.logger.Debug("activating scoped service",
		log.String("scope", id.String()),
		log.String("service", key.String()))
	return nil
}

// AfterActivate implements Middleware.
func (l *LoggingMiddleware) AfterActivate(_ context.Context, id ScopeID, key TypeKey, _ any, err error) {
	if err != nil {
		l.logger.Info("scoped service unavailable",
			log.String("scope", id.String()),
			log.String("service", key.String()),
			log.Error(err))
		return
	}
	l.logger.Info("scoped service activated",
		log.String("scope", id.String()),
		log.String("service", key.String()))
}

// AfterRelease implements Middleware.
func (l *LoggingMiddleware) AfterRelease(_ context.Context, id ScopeID, key TypeKey, err error) {
	if err != nil {
		l.logger.Error("scoped service release failed",
			log.String("scope", id.String()),
			log.String("service", key.String()),
			log.Error(err))
		return
	}
	l.logger.Info("scoped service released",
		log.String("scope", id.String()),
		log.String("service", key.String()))
}

// AfterDispose implements Middleware.
func (l *LoggingMiddleware) AfterDispose(_ context.Context, released int, err error) {
	if err != nil {
		l.logger.Error("registry disposal finished with errors",
			log.Int("released", released),
			log.Error(err))
		return
	}
	l.logger.Info("registry disposal finished", log.Int("released", released))
}
