package db

import (
	"context"
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latency is tracked in milliseconds from 1ms to one hour, 3 significant digits.
const (
	minLatencyMs = 1
	maxLatencyMs = 3_600_000
)

// Stats summarizes the latency of stored history entries.
type Stats struct {
	Total   int64
	Success int64
	Errors  int64

	P50  time.Duration
	P90  time.Duration
	P95  time.Duration
	P99  time.Duration
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration

	// Keyed by "METHOD url".
	Endpoints map[string]*EndpointStats
}

// EndpointStats holds the breakdown for one method and URL pair.
type EndpointStats struct {
	Name   string
	Total  int64
	Errors int64
	P50    time.Duration
	P95    time.Duration
	Mean   time.Duration
}

type latencyRecorder struct {
	total, errors int64
	histogram     *hdrhistogram.Histogram
}

func newLatencyRecorder() *latencyRecorder {
	return &latencyRecorder{histogram: hdrhistogram.New(minLatencyMs, maxLatencyMs, 3)}
}

// record counts a transport failure (status 0) as an error and keeps its
// latency out of the histogram.
func (l *latencyRecorder) record(status int, ms int64) {
	l.total++
	if status == 0 {
		l.errors++
		return
	}
	if ms < minLatencyMs {
		ms = minLatencyMs
	}
	if ms > maxLatencyMs {
		ms = maxLatencyMs
	}
	_ = l.histogram.RecordValue(ms)
}

func (l *latencyRecorder) quantile(q float64) time.Duration {
	return time.Duration(l.histogram.ValueAtQuantile(q)) * time.Millisecond
}

// Stats computes latency percentiles over every stored history entry.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT method, url, status, time_ms FROM history`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	overall := newLatencyRecorder()
	endpoints := make(map[string]*latencyRecorder)
	for rows.Next() {
		var (
			method, url string
			status      int
			ms          int64
		)
		if err := rows.Scan(&method, &url, &status, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		overall.record(status, ms)

		key := method + " " + url
		ep, ok := endpoints[key]
		if !ok {
			ep = newLatencyRecorder()
			endpoints[key] = ep
		}
		ep.record(status, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	stats := &Stats{
		Total:     overall.total,
		Success:   overall.total - overall.errors,
		Errors:    overall.errors,
		P50:       overall.quantile(50),
		P90:       overall.quantile(90),
		P95:       overall.quantile(95),
		P99:       overall.quantile(99),
		Min:       time.Duration(overall.histogram.Min()) * time.Millisecond,
		Max:       time.Duration(overall.histogram.Max()) * time.Millisecond,
		Mean:      time.Duration(overall.histogram.Mean() * float64(time.Millisecond)),
		Endpoints: make(map[string]*EndpointStats, len(endpoints)),
	}
	for name, ep := range endpoints {
		stats.Endpoints[name] = &EndpointStats{
			Name:   name,
			Total:  ep.total,
			Errors: ep.errors,
			P50:    ep.quantile(50),
			P95:    ep.quantile(95),
			Mean:   time.Duration(ep.histogram.Mean() * float64(time.Millisecond)),
		}
	}
	return stats, nil
}
