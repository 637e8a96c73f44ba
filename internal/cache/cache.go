package cache

import (
	"reflect"
	"sort"
	"sync"

	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/sirupsen/logrus"
)

// Latest keeps the most recent reading per device and the set of device ids
// seen since the last Reset. It is concurrency-safe.
//
// Behaviour:
//   - The first reading of a device always counts as a change.
//   - The ts field is ignored when comparing, so a device re-sending the same
//     value is not reported again.
//   - Readings without a device id are not cached.
type Latest struct {
	mu       sync.RWMutex
	byDevice map[string]sensors.Reading
	logger   *logrus.Logger
}

func NewLatest(logger *logrus.Logger) *Latest {
	return &Latest{byDevice: make(map[string]sensors.Reading), logger: logger}
}

// Changed stores r as the latest reading of its device and reports whether
// it differs from the previous one.
func (l *Latest) Changed(r *sensors.Reading) bool {
	if r == nil || r.DeviceID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, seen := l.byDevice[r.DeviceID]
	l.byDevice[r.DeviceID] = *r
	if !seen {
		if l.logger != nil {
			l.logger.WithField("device", r.DeviceID).Info("Discovered telemetry device")
		}
		return true
	}
	return !equalNoTimestamp(&prev, r)
}

func equalNoTimestamp(a, b *sensors.Reading) bool {
	aa, bb := *a, *b
	aa.TS, bb.TS = 0, 0
	return reflect.DeepEqual(aa, bb)
}

// Get returns the latest reading of a device.
func (l *Latest) Get(deviceID string) (sensors.Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byDevice[deviceID]
	return r, ok
}

// Devices returns the discovered device ids, sorted.
func (l *Latest) Devices() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.byDevice))
	for id := range l.byDevice {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset forgets everything, as on a broker reconnect.
func (l *Latest) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byDevice = make(map[string]sensors.Reading)
}
