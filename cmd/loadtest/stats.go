package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats accumulates outcomes from concurrent workers.
type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	matched   atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
	reasons   map[string]int64
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
		reasons:   make(map[string]int64),
	}
}

// queryOutcome is the subset of the query response the load test reads.
type queryOutcome struct {
	Matched  bool   `json:"matched"`
	Reason   string `json:"reason"`
	CacheHit bool   `json:"cache_hit"`
}

// Record adds one request. Transport errors carry no status or latency.
func (s *Stats) Record(d time.Duration, status int, out *queryOutcome, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if out != nil {
		if out.Matched {
			s.matched.Add(1)
		}
		if out.CacheHit {
			s.cacheHits.Add(1)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	if out != nil && out.Reason != "" {
		s.reasons[out.Reason]++
	}
}

// Report prints the summary to w.
func (s *Stats) Report(w io.Writer, elapsed time.Duration) {
	total := s.total.Load()
	success := s.success.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/elapsed.Seconds())
	}
	if success > 0 {
		fmt.Fprintf(w, "Matched:         %.2f%%\n", float64(s.matched.Load())/float64(success)*100)
		fmt.Fprintf(w, "Cache Hits:      %.2f%%\n", float64(s.cacheHits.Load())/float64(success)*100)
	}

	s.mu.Lock()
	latencies := append([]time.Duration(nil), s.latencies...)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	reasons := make([]string, 0, len(s.reasons))
	for r := range s.reasons {
		reasons = append(reasons, r)
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", stddev(latencies, avg))
	}

	sort.Ints(codes)
	sort.Strings(reasons)
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.codes[code])
	}
	if len(reasons) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Unmatched Reasons ===")
		for _, r := range reasons {
			fmt.Fprintf(w, "  %s: %d\n", r, s.reasons[r])
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func stddev(latencies []time.Duration, avg time.Duration) time.Duration {
	var sq float64
	for _, l := range latencies {
		diff := float64(l - avg)
		sq += diff * diff
	}
	return time.Duration(math.Sqrt(sq / float64(len(latencies))))
}
