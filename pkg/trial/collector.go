package trial

import (
	"sync"

	"github.com/pkg/errors"
)

// Exporter provides the current experiment data as flat text.
type Exporter interface {
	// CSV returns the comma delimited export of all data recorded so far.
	CSV() (string, error)
}

// Collector accumulates the trials of an experiment run.
//
// It is safe for concurrent use.
type Collector struct {
	sync.RWMutex
	trials []Trial
}

// NewCollector returns a Collector seeded with the provided trials.
func NewCollector(trials ...Trial) *Collector {
	c := &Collector{}
	for _, t := range trials {
		c.Add(t)
	}
	return c
}

// Add records a trial. The trial is copied, so later changes by the
// caller are not reflected in the collector.
func (c *Collector) Add(t Trial) {
	c.Lock()
	c.trials = append(c.trials, t.clone())
	c.Unlock()
}

// Trials returns a copy of the recorded trials.
func (c *Collector) Trials() []Trial {
	c.RLock()
	defer c.RUnlock()

	trials := make([]Trial, len(c.trials))
	for i, t := range c.trials {
		trials[i] = t.clone()
	}
	return trials
}

// Len returns the number of recorded trials.
func (c *Collector) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.trials)
}

// Reset discards all recorded trials.
func (c *Collector) Reset() {
	c.Lock()
	c.trials = nil
	c.Unlock()
}

// CSV implements Exporter.CSV.
func (c *Collector) CSV() (string, error) {
	c.RLock()
	defer c.RUnlock()
	return ToCSV(c.trials)
}

// JSON returns the recorded trials as a JSON array of objects, with
// each object's keys in insertion order.
func (c *Collector) JSON() (string, error) {
	c.RLock()
	defer c.RUnlock()

	buf := []byte{'['}
	for i, t := range c.trials {
		if i > 0 {
			buf = append(buf, ',')
		}
		b, err := t.MarshalJSON()
		if err != nil {
			return "", errors.Wrapf(err, "failed to marshal trial %d", i)
		}
		buf = append(buf, b...)
	}
	buf = append(buf, ']')

	return string(buf), nil
}
