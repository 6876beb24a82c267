package workqueue

import (
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DeadReasonMaxAttempts = "max_attempts"
	DeadReasonTerminal    = "terminal"
)

type ConsumerOptions struct {
	Group    string
	Consumer string

	// MaxAttempts is the ceiling at which a read item is dropped unprocessed.
	MaxAttempts int
	IdleBackoff time.Duration
	MaxBackoff  time.Duration
	JitterMax   time.Duration

	// RetryTerminal republishes terminal failures like any other failure.
	RetryTerminal bool

	HandleTimeout   time.Duration
	LastErrorMaxLen int

	DeadLetters DeadLetterSink
	// ErrorLogger is the single place handler failures get logged.
	ErrorLogger func(log *logrus.Entry, err error)

	Logger *logrus.Entry
	Rand   *rand.Rand
	Clock  clockwork.Clock
}

func (o *ConsumerOptions) setDefaults() {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.IdleBackoff == 0 {
		o.IdleBackoff = 1 * time.Second
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 60 * time.Second
	}
	if o.LastErrorMaxLen == 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
	if o.ErrorLogger == nil {
		o.ErrorLogger = func(log *logrus.Entry, err error) { log.WithError(err).Error("workqueue: handler failed") }
	}
}

type ReaperOptions struct {
	Group    string
	Consumer string

	Interval     time.Duration
	ClaimTimeout time.Duration

	Logger *logrus.Entry
	Clock  clockwork.Clock
}

func (o *ReaperOptions) setDefaults() {
	if o.Interval == 0 {
		o.Interval = 1 * time.Minute
	}
	if o.ClaimTimeout == 0 {
		o.ClaimTimeout = 5 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
}
