package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	operatorOnce sync.Once
	operator     *zap.SugaredLogger
)

// Operator returns the process-wide structured logger used for
// operator-facing session events (iteration boundaries, budget warnings,
// conflict arbitration outcomes). Unlike the category file loggers, this
// always writes (to stderr) regardless of DebugMode, since it's the
// surface a human driving the CLI actually watches.
func Operator() *zap.SugaredLogger {
	operatorOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		operator = l.Sugar()
	})
	return operator
}
