package ports

import "time"

// Metrics receives engine observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ActiveSessions(n int)
	PendingTimeouts(n int)
	StateEntries(n int)
	TimeoutFired()
	CacheHit()
	CacheMiss()
	CacheBuild(took time.Duration, err error)
	CacheEviction()
	Delivery(err error)
	Swept(n int)
}

type NopMetrics struct{}

func (NopMetrics) ActiveSessions(int) {}
func (NopMetrics) PendingTimeouts(int) {}
func (NopMetrics) StateEntries(int) {}
func (NopMetrics) TimeoutFired() {}
func (NopMetrics) CacheHit() {}
func (NopMetrics) CacheMiss() {}
func (NopMetrics) CacheBuild(time.Duration, error) {}
func (NopMetrics) CacheEviction() {}
func (NopMetrics) Delivery(error) {}
func (NopMetrics) Swept(int) {}
