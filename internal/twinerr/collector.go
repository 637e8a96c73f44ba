package twinerr

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Collector accumulates non-fatal errors raised during best-effort work such
// as disposal, temp-file cleanup or skipped environments. Each error is
// logged at Warn as it is added; the caller decides whether to inspect the
// collection afterwards. A nil *Collector discards everything.
type Collector struct {
	logger *logrus.Logger
	op     string
	errs   []error
}

// NewCollector returns a collector that tags log entries with op.
func NewCollector(op string, logger *logrus.Logger) *Collector {
	return &Collector{op: op, logger: logger}
}

// Add records err if it is non-nil.
func (c *Collector) Add(err error) {
	if c == nil || err == nil {
		return
	}
	c.errs = append(c.errs, err)
	if c.logger != nil {
		c.logger.WithError(err).WithField("op", c.op).Warn("non-fatal error")
	}
}

// Merge appends everything collected by other.
func (c *Collector) Merge(other *Collector) {
	if c == nil || other == nil {
		return
	}
	c.errs = append(c.errs, other.errs...)
}

// Errors returns the recorded errors in insertion order.
func (c *Collector) Errors() []error {
	if c == nil {
		return nil
	}
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Len reports how many errors were recorded.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.errs)
}

// Err joins the recorded errors, or returns nil when there are none.
func (c *Collector) Err() error {
	if c == nil || len(c.errs) == 0 {
		return nil
	}
	return errors.Join(c.errs...)
}
