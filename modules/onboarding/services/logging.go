package services

import "github.com/sirupsen/logrus"

func componentLogger(log *logrus.Entry, component string) *logrus.Entry {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	return log.WithField("component", component)
}
