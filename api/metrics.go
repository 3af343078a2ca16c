package api

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/citizenvoice/citizenvoice-api/databases"
)

// RequestTrace tracks timing for a single request
type RequestTrace struct {
	RequestID     string         `json:"requestId"`
	Method        string         `json:"method"`
	Path          string         `json:"path"`
	Status        int            `json:"status"`
	StartTime     time.Time      `json:"startTime"`
	TotalDuration time.Duration  `json:"totalDuration"`
	DBQueries     []DBQueryTrace `json:"dbQueries"`
	DBTotalTime   time.Duration  `json:"dbTotalTime"`
	Error         string         `json:"error,omitempty"`
}

// DBQueryTrace tracks a single store call
type DBQueryTrace struct {
	Operation  string        `json:"operation"`
	Collection string        `json:"collection"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// RouteMetrics aggregates metrics for one method and normalized path
type RouteMetrics struct {
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"errorCount"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	MinTime     time.Duration `json:"minTime"`
	MaxTime     time.Duration `json:"maxTime"`
	P50Time     time.Duration `json:"p50Time"`
	P95Time     time.Duration `json:"p95Time"`
	P99Time     time.Duration `json:"p99Time"`
	DBTotalTime time.Duration `json:"dbTotalTime"`
	DBAvgTime   time.Duration `json:"dbAvgTime"`
	LastRequest time.Time     `json:"lastRequest"`
}

// Summary is the collector wide view
type Summary struct {
	TotalRequests  int64     `json:"totalRequests"`
	TotalErrors    int64     `json:"totalErrors"`
	ErrorRate      float64   `json:"errorRate"`
	TPS            float64   `json:"tps"`
	TotalDBQueries int64     `json:"totalDBQueries"`
	TotalDBTime    string    `json:"totalDBTime"`
	AvgDBTime      string    `json:"avgDBTime"`
	WindowStart    time.Time `json:"windowStart"`
	WindowEnd      time.Time `json:"windowEnd"`
	RouteCount     int       `json:"routeCount"`
	TraceCount     int       `json:"traceCount"`
}

// percentileEvery is how many requests a route sees between percentile refreshes
const percentileEvery = 100

// MetricsCollector aggregates request traces in a background goroutine.
// RecordTrace never blocks; traces are dropped when the queue is full.
type MetricsCollector struct {
	mu             sync.RWMutex
	traces         []RequestTrace
	maxTraces      int
	routeMetrics   map[string]*RouteMetrics
	windowStart    time.Time
	windowDuration time.Duration
	totalRequests  int64
	totalErrors    int64
	totalDBQueries int64
	totalDBTime    time.Duration
	traceChan      chan RequestTrace
	stopOnce       sync.Once
	stopChan       chan struct{}
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector starts a collector keeping at most maxTraces traces
// from the last window
func NewMetricsCollector(maxTraces int, window time.Duration) *MetricsCollector {
	mc := &MetricsCollector{
		traces:         make([]RequestTrace, 0, maxTraces),
		maxTraces:      maxTraces,
		routeMetrics:   make(map[string]*RouteMetrics),
		windowStart:    time.Now(),
		windowDuration: window,
		traceChan:      make(chan RequestTrace, 1000),
		stopChan:       make(chan struct{}),
	}
	go mc.processTraces()
	go mc.cleanup()
	return mc
}

// GetMetrics returns the process wide collector
func GetMetrics() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector(10000, time.Hour)
	})
	return globalMetrics
}

// Stop ends the background goroutines
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopChan) })
}

// RecordTrace queues trace for aggregation
func (mc *MetricsCollector) RecordTrace(trace RequestTrace) {
	select {
	case mc.traceChan <- trace:
	default:
	}
}

func (mc *MetricsCollector) processTraces() {
	for {
		select {
		case trace := <-mc.traceChan:
			mc.processTrace(trace)
		case <-mc.stopChan:
			return
		}
	}
}

func routeKey(method, path string) string {
	return method + " " + normalizeRoutePath(path)
}

func (mc *MetricsCollector) processTrace(trace RequestTrace) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.traces) >= mc.maxTraces {
		mc.traces = mc.traces[1:]
	}
	mc.traces = append(mc.traces, trace)

	key := routeKey(trace.Method, trace.Path)
	metrics, exists := mc.routeMetrics[key]
	if !exists {
		metrics = &RouteMetrics{
			Method:  trace.Method,
			Path:    normalizeRoutePath(trace.Path),
			MinTime: trace.TotalDuration,
		}
		mc.routeMetrics[key] = metrics
	}

	metrics.Count++
	metrics.TotalTime += trace.TotalDuration
	metrics.AvgTime = metrics.TotalTime / time.Duration(metrics.Count)
	metrics.LastRequest = trace.StartTime
	if trace.TotalDuration < metrics.MinTime {
		metrics.MinTime = trace.TotalDuration
	}
	if trace.TotalDuration > metrics.MaxTime {
		metrics.MaxTime = trace.TotalDuration
	}
	if trace.Status >= 400 {
		metrics.ErrorCount++
		mc.totalErrors++
	}
	metrics.DBTotalTime += trace.DBTotalTime
	metrics.DBAvgTime = metrics.DBTotalTime / time.Duration(metrics.Count)

	mc.totalRequests++
	mc.totalDBQueries += int64(len(trace.DBQueries))
	mc.totalDBTime += trace.DBTotalTime

	if metrics.Count == 1 || metrics.Count%percentileEvery == 0 {
		mc.calculatePercentiles(key)
	}
}

// GetTraces returns up to limit traces started after since, oldest first
func (mc *MetricsCollector) GetTraces(limit int, since time.Time) []RequestTrace {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var filtered []RequestTrace
	for i := len(mc.traces) - 1; i >= 0 && len(filtered) < limit; i-- {
		if mc.traces[i].StartTime.After(since) {
			filtered = append(filtered, mc.traces[i])
		}
	}
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}
	return filtered
}

// GetSummary returns overall summary metrics
func (mc *MetricsCollector) GetSummary() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	elapsed := time.Since(mc.windowStart)
	if elapsed > mc.windowDuration {
		elapsed = mc.windowDuration
	}
	s := Summary{
		TotalRequests:  mc.totalRequests,
		TotalErrors:    mc.totalErrors,
		TotalDBQueries: mc.totalDBQueries,
		TotalDBTime:    mc.totalDBTime.String(),
		AvgDBTime:      time.Duration(0).String(),
		WindowStart:    mc.windowStart,
		WindowEnd:      mc.windowStart.Add(mc.windowDuration),
		RouteCount:     len(mc.routeMetrics),
		TraceCount:     len(mc.traces),
	}
	if elapsed.Seconds() > 0 {
		s.TPS = float64(mc.totalRequests) / elapsed.Seconds()
	}
	if mc.totalRequests > 0 {
		s.ErrorRate = float64(mc.totalErrors) / float64(mc.totalRequests)
	}
	if mc.totalDBQueries > 0 {
		s.AvgDBTime = (mc.totalDBTime / time.Duration(mc.totalDBQueries)).String()
	}
	return s
}

var (
	objectIDSegment = regexp.MustCompile(`/[0-9a-fA-F]{24}(/|$)`)
	uuidSegment     = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(/|$)`)
	districtSegment = regexp.MustCompile(`/[A-Z]{1,3}-[A-Z]{1,5}(/|$)`)
)

// normalizeRoutePath groups paths that only differ by ids, for example
// /api/v1/issues/507f1f77bcf86cd799439011/upvote -> /api/v1/issues/{id}/upvote
func normalizeRoutePath(path string) string {
	for _, re := range []*regexp.Regexp{objectIDSegment, uuidSegment} {
		// twice so that adjacent ids sharing a slash are both replaced
		path = re.ReplaceAllString(path, "/{id}$1")
		path = re.ReplaceAllString(path, "/{id}$1")
	}
	path = districtSegment.ReplaceAllString(path, "/{code}$1")
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

func (mc *MetricsCollector) sortedRoutes(less func(a, b *RouteMetrics) bool, limit, offset int) []*RouteMetrics {
	mc.mu.RLock()
	routes := make([]*RouteMetrics, 0, len(mc.routeMetrics))
	for _, m := range mc.routeMetrics {
		cp := *m
		routes = append(routes, &cp)
	}
	mc.mu.RUnlock()

	sort.Slice(routes, func(i, j int) bool {
		if less(routes[i], routes[j]) {
			return true
		}
		if less(routes[j], routes[i]) {
			return false
		}
		return routes[i].Method+routes[i].Path < routes[j].Method+routes[j].Path
	})
	if offset >= len(routes) {
		return []*RouteMetrics{}
	}
	end := offset + limit
	if end > len(routes) {
		end = len(routes)
	}
	return routes[offset:end]
}

// GetSlowestRoutes returns routes by average time, slowest first
func (mc *MetricsCollector) GetSlowestRoutes(limit, offset int) []*RouteMetrics {
	return mc.sortedRoutes(func(a, b *RouteMetrics) bool { return a.AvgTime > b.AvgTime }, limit, offset)
}

// GetMostFrequentRoutes returns routes by request count, busiest first
func (mc *MetricsCollector) GetMostFrequentRoutes(limit, offset int) []*RouteMetrics {
	return mc.sortedRoutes(func(a, b *RouteMetrics) bool { return a.Count > b.Count }, limit, offset)
}

// RouteCount is the number of distinct routes seen
func (mc *MetricsCollector) RouteCount() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.routeMetrics)
}

// calculatePercentiles refreshes P50, P95 and P99 for a route. Caller holds mu.
func (mc *MetricsCollector) calculatePercentiles(key string) {
	metrics := mc.routeMetrics[key]
	if metrics == nil {
		return
	}
	var durations []time.Duration
	for _, trace := range mc.traces {
		if routeKey(trace.Method, trace.Path) == key {
			durations = append(durations, trace.TotalDuration)
		}
	}
	if len(durations) == 0 {
		return
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	at := func(q float64) time.Duration {
		idx := int(float64(len(durations)) * q)
		if idx >= len(durations) {
			idx = len(durations) - 1
		}
		return durations[idx]
	}
	metrics.P50Time = at(0.50)
	metrics.P95Time = at(0.95)
	metrics.P99Time = at(0.99)
}

// cleanup drops traces older than the window and rolls the window over
func (mc *MetricsCollector) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-mc.stopChan:
			return
		case now := <-ticker.C:
			mc.mu.Lock()
			cutoff := now.Add(-mc.windowDuration)
			kept := mc.traces[:0]
			for _, trace := range mc.traces {
				if trace.StartTime.After(cutoff) {
					kept = append(kept, trace)
				}
			}
			mc.traces = kept
			if now.Sub(mc.windowStart) > mc.windowDuration {
				mc.windowStart = now
			}
			mc.mu.Unlock()
		}
	}
}

// queryRecorder collects store calls for the request it belongs to
type queryRecorder struct {
	mu    sync.Mutex
	trace *RequestTrace
}

func (q *queryRecorder) record(operation, collection string, took time.Duration, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	dq := DBQueryTrace{Operation: operation, Collection: collection, Duration: took}
	if err != nil {
		dq.Error = err.Error()
	}
	q.trace.DBQueries = append(q.trace.DBQueries, dq)
	q.trace.DBTotalTime += took
}

// withQueryRecording makes store calls made with ctx land on trace
func withQueryRecording(ctx context.Context, trace *RequestTrace) (context.Context, *queryRecorder) {
	q := &queryRecorder{trace: trace}
	return databases.WithQueryObserver(ctx, q.record), q
}
