package workqueue

import (
	"time"
	"unicode/utf8"
)

// retryDelay doubles from one second per attempt up to MaxBackoff, then adds
// up to JitterMax drawn from the consumer's random source.
func (c *Consumer) retryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := c.opts.MaxBackoff
	if attempts <= 32 {
		if exp := time.Second << (attempts - 1); exp < d {
			d = exp
		}
	}
	if c.opts.JitterMax > 0 && c.opts.Rand != nil {
		d += time.Duration(c.opts.Rand.Int63n(int64(c.opts.JitterMax) + 1)) //nolint:gosec
	}
	return d
}

// lastError renders err for a dead letter, cut to LastErrorMaxLen bytes
// without splitting a rune.
func (c *Consumer) lastError(err error) string {
	if err == nil || c.opts.LastErrorMaxLen <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= c.opts.LastErrorMaxLen {
		return s
	}
	cut := c.opts.LastErrorMaxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
