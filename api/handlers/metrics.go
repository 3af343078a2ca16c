package handlers

import (
	"net/http"
	"time"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/apierrors"
)

// formatRouteMetrics converts duration fields to milliseconds for JSON serialization
func formatRouteMetrics(routes []*api.RouteMetrics) []map[string]interface{} {
	result := make([]map[string]interface{}, len(routes))
	for i, route := range routes {
		result[i] = map[string]interface{}{
			"method":      route.Method,
			"path":        route.Path,
			"count":       route.Count,
			"errorCount":  route.ErrorCount,
			"avgTime":     route.AvgTime.Milliseconds(),
			"minTime":     route.MinTime.Milliseconds(),
			"maxTime":     route.MaxTime.Milliseconds(),
			"p50Time":     route.P50Time.Milliseconds(),
			"p95Time":     route.P95Time.Milliseconds(),
			"p99Time":     route.P99Time.Milliseconds(),
			"dbAvgTime":   route.DBAvgTime.Milliseconds(),
			"lastRequest": route.LastRequest,
		}
	}
	return result
}

// formatTraces converts trace durations to milliseconds
func formatTraces(traces []api.RequestTrace) []map[string]interface{} {
	result := make([]map[string]interface{}, len(traces))
	for i, trace := range traces {
		dbQueries := make([]map[string]interface{}, len(trace.DBQueries))
		for j, q := range trace.DBQueries {
			dbQueries[j] = map[string]interface{}{
				"operation":  q.Operation,
				"collection": q.Collection,
				"duration":   q.Duration.Milliseconds(),
				"error":      q.Error,
			}
		}
		result[i] = map[string]interface{}{
			"requestId":     trace.RequestID,
			"method":        trace.Method,
			"path":          trace.Path,
			"status":        trace.Status,
			"startTime":     trace.StartTime,
			"totalDuration": trace.TotalDuration.Milliseconds(),
			"dbQueries":     dbQueries,
			"dbTotalTime":   trace.DBTotalTime.Milliseconds(),
			"error":         trace.Error,
		}
	}
	return result
}

// Metrics serves the request metrics dashboard
type Metrics struct {
	Collector func() *api.MetricsCollector
}

// DashboardHandler returns the summary, route rankings and recent traces.
// limit and offset page the route rankings, since is a duration like 15m.
func (m Metrics) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, "invalid limit", err)
		return
	}
	if limit == 0 {
		limit = 20
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, "invalid offset", err)
		return
	}

	since := time.Now().Add(-time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeError(w, "invalid since", apierrors.Validation("since", "must be a positive duration"))
			return
		}
		since = time.Now().Add(-d)
	}

	mc := m.Collector()
	total := mc.RouteCount()
	response := map[string]interface{}{
		"summary": mc.GetSummary(),
		"routes": map[string]interface{}{
			"slowest":      formatRouteMetrics(mc.GetSlowestRoutes(limit, offset)),
			"mostFrequent": formatRouteMetrics(mc.GetMostFrequentRoutes(limit, offset)),
			"totalCount":   total,
		},
		"recentTraces": formatTraces(mc.GetTraces(limit, since)),
		"pagination": map[string]interface{}{
			"limit":   limit,
			"offset":  offset,
			"total":   total,
			"hasMore": offset+limit < total,
		},
		"filters": map[string]interface{}{
			"since": since,
		},
	}
	writeJSON(w, http.StatusOK, response)
}
