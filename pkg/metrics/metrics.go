// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package metrics collects request/reply/error/cache counters for the
// server's request processor and its diagnostic HTTP surface.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jontk/batchsched/pkg/errors"
)

// Collector is the interface for metrics collection
type Collector interface {
	// RecordRequest records an incoming batch request
	RecordRequest(op, target string)

	// RecordResponse records the reply sent for a batch request
	RecordResponse(op string, code int, duration time.Duration)

	// RecordError records a request that failed before a reply was formed
	RecordError(op, target string, err error)

	// RecordCacheHit records a status-cache hit
	RecordCacheHit(key string)

	// RecordCacheMiss records a status-cache miss
	RecordCacheMiss(key string)

	// GetStats returns current metrics statistics
	GetStats() *Stats

	// Reset resets all metrics
	Reset()
}

// Stats contains aggregated metrics statistics
type Stats struct {
	// Request metrics
	TotalRequests  int64
	ActiveRequests int64
	RequestsByOp   map[string]int64

	// Reply metrics
	TotalReplies   int64
	RepliesByCode  map[int]int64
	ReplyTimeStats DurationStats
	ReplyTimeByOp  map[string]DurationStats

	// Error metrics
	TotalErrors  int64
	ErrorsByKind map[string]int64
	ErrorsByOp   map[string]int64

	// Cache metrics
	CacheHits   int64
	CacheMisses int64
	CacheRatio  float64

	// Timing
	StartTime time.Time
	Duration  time.Duration
}

// DurationStats contains statistics for duration measurements
type DurationStats struct {
	Count   int64
	Total   time.Duration
	Min     time.Duration
	Max     time.Duration
	Average time.Duration
}

// InMemoryCollector is an in-memory implementation of Collector
type InMemoryCollector struct {
	mu sync.RWMutex

	// Request counters
	totalRequests  int64
	activeRequests int64
	requestsByOp   map[string]*int64

	// Reply counters
	totalReplies  int64
	repliesByCode map[int]*int64
	replyTimes    *durationAggregator
	replyTimeByOp map[string]*durationAggregator

	// Error counters
	totalErrors  int64
	errorsByKind map[string]*int64
	errorsByOp   map[string]*int64

	// Cache counters
	cacheHits   int64
	cacheMisses int64

	// Timing
	startTime time.Time
}

// NewInMemoryCollector creates a new in-memory metrics collector
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		requestsByOp:  make(map[string]*int64),
		repliesByCode: make(map[int]*int64),
		replyTimes:    newDurationAggregator(),
		replyTimeByOp: make(map[string]*durationAggregator),
		errorsByKind:  make(map[string]*int64),
		errorsByOp:    make(map[string]*int64),
		startTime:     time.Now(),
	}
}

// RecordRequest records an incoming batch request
func (c *InMemoryCollector) RecordRequest(op, target string) {
	atomic.AddInt64(&c.totalRequests, 1)
	atomic.AddInt64(&c.activeRequests, 1)

	incrementMapCounter(&c.mu, c.requestsByOp, op)
}

// RecordResponse records the reply sent for a batch request
func (c *InMemoryCollector) RecordResponse(op string, code int, duration time.Duration) {
	atomic.AddInt64(&c.totalReplies, 1)
	atomic.AddInt64(&c.activeRequests, -1)

	incrementMapCounterInt(&c.mu, c.repliesByCode, code)

	c.replyTimes.add(duration)

	c.mu.Lock()
	agg, exists := c.replyTimeByOp[op]
	if !exists {
		agg = newDurationAggregator()
		c.replyTimeByOp[op] = agg
	}
	c.mu.Unlock()
	agg.add(duration)
}

// RecordError records a request that failed before a reply was formed.
// Structured errors are bucketed by kind; anything else lands in a
// single "system" bucket rather than exploding the map with messages.
func (c *InMemoryCollector) RecordError(op, target string, err error) {
	kind := string(errors.KindSystem)
	if ce, ok := errors.AsCoreError(err); ok {
		kind = string(ce.Kind)
	}
	atomic.AddInt64(&c.totalErrors, 1)
	atomic.AddInt64(&c.activeRequests, -1)

	incrementMapCounter(&c.mu, c.errorsByKind, kind)
	incrementMapCounter(&c.mu, c.errorsByOp, op)
}

// RecordCacheHit records a status-cache hit
func (c *InMemoryCollector) RecordCacheHit(key string) {
	atomic.AddInt64(&c.cacheHits, 1)
}

// RecordCacheMiss records a status-cache miss
func (c *InMemoryCollector) RecordCacheMiss(key string) {
	atomic.AddInt64(&c.cacheMisses, 1)
}

// GetStats returns current metrics statistics
func (c *InMemoryCollector) GetStats() *Stats {
	stats := &Stats{
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		ActiveRequests: atomic.LoadInt64(&c.activeRequests),
		TotalReplies:   atomic.LoadInt64(&c.totalReplies),
		TotalErrors:    atomic.LoadInt64(&c.totalErrors),
		CacheHits:      atomic.LoadInt64(&c.cacheHits),
		CacheMisses:    atomic.LoadInt64(&c.cacheMisses),
		RequestsByOp:   c.copyMapCounters(c.requestsByOp),
		RepliesByCode:  c.copyIntMapCounters(c.repliesByCode),
		ErrorsByKind:   c.copyMapCounters(c.errorsByKind),
		ErrorsByOp:     c.copyMapCounters(c.errorsByOp),
		ReplyTimeStats: c.replyTimes.stats(),
		ReplyTimeByOp:  c.copyDurationStats(c.replyTimeByOp),
		StartTime:      c.startTime,
		Duration:       time.Since(c.startTime),
	}

	// Calculate cache ratio
	totalCache := stats.CacheHits + stats.CacheMisses
	if totalCache > 0 {
		stats.CacheRatio = float64(stats.CacheHits) / float64(totalCache)
	}

	return stats
}

// Reset resets all metrics
func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Reset atomic counters
	atomic.StoreInt64(&c.totalRequests, 0)
	atomic.StoreInt64(&c.activeRequests, 0)
	atomic.StoreInt64(&c.totalReplies, 0)
	atomic.StoreInt64(&c.totalErrors, 0)
	atomic.StoreInt64(&c.cacheHits, 0)
	atomic.StoreInt64(&c.cacheMisses, 0)

	// Reset maps
	c.requestsByOp = make(map[string]*int64)
	c.repliesByCode = make(map[int]*int64)
	c.replyTimes = newDurationAggregator()
	c.replyTimeByOp = make(map[string]*durationAggregator)
	c.errorsByKind = make(map[string]*int64)
	c.errorsByOp = make(map[string]*int64)

	c.startTime = time.Now()
}

// incrementMapCounter safely increments a counter in a map
func incrementMapCounter(mu *sync.RWMutex, m map[string]*int64, key string) {
	mu.Lock()
	counter, exists := m[key]
	if !exists {
		var v int64
		counter = &v
		m[key] = counter
	}
	mu.Unlock()

	atomic.AddInt64(counter, 1)
}

// incrementMapCounterInt safely increments a counter in a map with int keys
func incrementMapCounterInt(mu *sync.RWMutex, m map[int]*int64, key int) {
	mu.Lock()
	counter, exists := m[key]
	if !exists {
		var v int64
		counter = &v
		m[key] = counter
	}
	mu.Unlock()

	atomic.AddInt64(counter, 1)
}

// copyMapCounters creates a copy of string map counters
func (c *InMemoryCollector) copyMapCounters(m map[string]*int64) map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = atomic.LoadInt64(v)
	}
	return result
}

// copyIntMapCounters creates a copy of int map counters
func (c *InMemoryCollector) copyIntMapCounters(m map[int]*int64) map[int]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[int]int64, len(m))
	for k, v := range m {
		result[k] = atomic.LoadInt64(v)
	}
	return result
}

// copyDurationStats creates a copy of duration statistics
func (c *InMemoryCollector) copyDurationStats(m map[string]*durationAggregator) map[string]DurationStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]DurationStats, len(m))
	for k, v := range m {
		result[k] = v.stats()
	}
	return result
}

// durationAggregator aggregates duration statistics
type durationAggregator struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func newDurationAggregator() *durationAggregator {
	return &durationAggregator{
		min: time.Duration(1<<63 - 1), // MaxInt64
	}
}

func (d *durationAggregator) add(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.total += duration

	if duration < d.min {
		d.min = duration
	}
	if duration > d.max {
		d.max = duration
	}
}

func (d *durationAggregator) stats() DurationStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := DurationStats{
		Count: d.count,
		Total: d.total,
		Min:   d.min,
		Max:   d.max,
	}

	if d.count > 0 {
		stats.Average = time.Duration(int64(d.total) / d.count)
	}

	// Reset min if no data
	if d.count == 0 {
		stats.Min = 0
	}

	return stats
}

// NoOpCollector is a no-op implementation of Collector
type NoOpCollector struct{}

func (NoOpCollector) RecordRequest(op, target string)                            {}
func (NoOpCollector) RecordResponse(op string, code int, duration time.Duration) {}
func (NoOpCollector) RecordError(op, target string, err error)                   {}
func (NoOpCollector) RecordCacheHit(key string)                                  {}
func (NoOpCollector) RecordCacheMiss(key string)                                 {}
func (NoOpCollector) GetStats() *Stats                                           { return &Stats{} }
func (NoOpCollector) Reset()                                                     {}

// Global default collector
var defaultCollector Collector = &NoOpCollector{}

// SetDefaultCollector sets the default metrics collector
func SetDefaultCollector(collector Collector) {
	if collector == nil {
		collector = &NoOpCollector{}
	}
	defaultCollector = collector
}

// GetDefaultCollector returns the default metrics collector
func GetDefaultCollector() Collector {
	return defaultCollector
}
