package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/pkg/constants"
)

func WithLogger(ctx context.Context, log *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, log)
}

// UseLogger returns the logger in ctx, or a silent one.
func UseLogger(ctx context.Context) *logrus.Entry {
	if log, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && log != nil {
		return log
	}
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
