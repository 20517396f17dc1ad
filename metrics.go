package seqdb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    fetches prometheus.CounterVec
//	    mapped  prometheus.Gauge
//	}
//
//	func (p *PrometheusCollector) RecordSequenceFetch(hit bool, d time.Duration) {
//	    p.fetches.WithLabelValues(strconv.FormatBool(hit)).Inc()
//	}
type MetricsCollector interface {
	// RecordSequenceFetch is called after each Worker.GetSequence.
	// hit reports whether the worker buffer already held the sequence.
	RecordSequenceFetch(hit bool, duration time.Duration)

	// RecordBufferRefill is called when a worker buffer is refilled with n
	// sequences spanning the given number of bytes.
	RecordBufferRefill(n int, bytes int64)

	// RecordLookup is called after each identifier lookup. kind is one of
	// "gi", "pig", "ti", "accession" or "taxid".
	RecordLookup(kind string, found bool, duration time.Duration)

	// RecordScan is called after a totals scan over the given number of OIDs.
	RecordScan(oids int, duration time.Duration)

	// RecordMap and RecordUnmap are called when file regions are mapped
	// into and released from memory.
	RecordMap(bytes int64)
	RecordUnmap(bytes int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSequenceFetch(bool, time.Duration)  {}
func (NoopMetricsCollector) RecordBufferRefill(int, int64)            {}
func (NoopMetricsCollector) RecordLookup(string, bool, time.Duration) {}
func (NoopMetricsCollector) RecordScan(int, time.Duration)            {}
func (NoopMetricsCollector) RecordMap(int64)                          {}
func (NoopMetricsCollector) RecordUnmap(int64)                        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FetchCount       atomic.Int64
	FetchHits        atomic.Int64
	FetchTotalNanos  atomic.Int64
	RefillCount      atomic.Int64
	RefillSequences  atomic.Int64
	RefillBytes      atomic.Int64
	LookupCount      atomic.Int64
	LookupMisses     atomic.Int64
	LookupTotalNanos atomic.Int64
	ScanCount        atomic.Int64
	ScanOIDs         atomic.Int64
	ScanTotalNanos   atomic.Int64
	MapCount         atomic.Int64
	UnmapCount       atomic.Int64
	MappedBytes      atomic.Int64
}

// RecordSequenceFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSequenceFetch(hit bool, duration time.Duration) {
	b.FetchCount.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.FetchHits.Add(1)
	}
}

// RecordBufferRefill implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBufferRefill(n int, bytes int64) {
	b.RefillCount.Add(1)
	b.RefillSequences.Add(int64(n))
	b.RefillBytes.Add(bytes)
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(kind string, found bool, duration time.Duration) {
	b.LookupCount.Add(1)
	b.LookupTotalNanos.Add(duration.Nanoseconds())
	if !found {
		b.LookupMisses.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(oids int, duration time.Duration) {
	b.ScanCount.Add(1)
	b.ScanOIDs.Add(int64(oids))
	b.ScanTotalNanos.Add(duration.Nanoseconds())
}

// RecordMap implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMap(bytes int64) {
	b.MapCount.Add(1)
	b.MappedBytes.Add(bytes)
}

// RecordUnmap implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnmap(bytes int64) {
	b.UnmapCount.Add(1)
	b.MappedBytes.Add(-bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FetchCount:      b.FetchCount.Load(),
		FetchHits:       b.FetchHits.Load(),
		FetchAvgNanos:   avg(b.FetchTotalNanos.Load(), b.FetchCount.Load()),
		RefillCount:     b.RefillCount.Load(),
		RefillSequences: b.RefillSequences.Load(),
		RefillBytes:     b.RefillBytes.Load(),
		LookupCount:     b.LookupCount.Load(),
		LookupMisses:    b.LookupMisses.Load(),
		LookupAvgNanos:  avg(b.LookupTotalNanos.Load(), b.LookupCount.Load()),
		ScanCount:       b.ScanCount.Load(),
		ScanOIDs:        b.ScanOIDs.Load(),
		ScanAvgNanos:    avg(b.ScanTotalNanos.Load(), b.ScanCount.Load()),
		MapCount:        b.MapCount.Load(),
		UnmapCount:      b.UnmapCount.Load(),
		MappedBytes:     b.MappedBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of metrics from BasicMetricsCollector.
type BasicMetricsStats struct {
	FetchCount      int64
	FetchHits       int64
	FetchAvgNanos   int64
	RefillCount     int64
	RefillSequences int64
	RefillBytes     int64
	LookupCount     int64
	LookupMisses    int64
	LookupAvgNanos  int64
	ScanCount       int64
	ScanOIDs        int64
	ScanAvgNanos    int64
	MapCount        int64
	UnmapCount      int64
	MappedBytes     int64
}

// HitRate returns the fraction of fetches served from worker buffers.
func (s BasicMetricsStats) HitRate() float64 {
	if s.FetchCount == 0 {
		return 0
	}
	return float64(s.FetchHits) / float64(s.FetchCount)
}
