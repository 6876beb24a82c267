package workqueue

import (
	"io"

	"github.com/sirupsen/logrus"
)

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func logFields(it Item, group, consumer string) logrus.Fields {
	return logrus.Fields{
		"kind":      it.Kind,
		"entity_id": it.EntityID,
		"trace_id":  it.TraceID,
		"attempts":  it.Attempts,
		"group":     group,
		"consumer":  consumer,
	}
}
