// Package logs exposes IBM Cloud Logs tools: instance discovery, log
// search, severity filtering, and error-rate health summaries.
package logs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/watsonhub/ibmcloudkit/ibmcloud"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// ModuleName is the catalog group name for Cloud Logs tools.
const ModuleName = "Cloud Logs"

// Severities accepted by the query API, lowest to highest.
var validSeverities = []string{"debug", "info", "warning", "error", "critical"}

const (
	maxQueryLimit = 500
	// Error totals above this tip the health summary from degraded to
	// critical even without critical-severity events.
	criticalErrorThreshold = 50
)

// Config locates the Cloud Logs APIs.
type Config struct {
	Region string
	// ResourceControllerURL overrides the global resource controller
	// endpoint used for instance discovery.
	ResourceControllerURL string
	// InstanceURLTemplate overrides the per-instance API URL. It is
	// expanded with fmt.Sprintf(template, guid, region).
	InstanceURLTemplate string

	// now is injectable so query windows are stable in tests.
	now func() time.Time
}

type service struct {
	client *ibmcloud.Client
	cfg    Config
}

func (s *service) instanceURL(guid string) string {
	tmpl := s.cfg.InstanceURLTemplate
	if tmpl == "" {
		tmpl = "https://%s.api.%s.logs.cloud.ibm.com/v1"
	}
	return fmt.Sprintf(tmpl, guid, s.cfg.Region)
}

func (s *service) nowUTC() time.Time {
	if s.cfg.now != nil {
		return s.cfg.now().UTC()
	}
	return time.Now().UTC()
}

// Module declares the Cloud Logs tool set.
func Module(client *ibmcloud.Client, cfg Config) tool.Module {
	s := &service{client: client, cfg: cfg}
	guidParam := tool.ParamSpec{
		Name: "instance_guid", Type: tool.TypeString, Required: true,
		Description: "Cloud Logs instance GUID, from list_log_instances.",
	}

	return tool.Module{
		Name: ModuleName,
		Tools: []tool.Definition{
			{
				Name:        "list_log_instances",
				Description: "List all IBM Cloud Logs instances in the account.",
				Handler:     s.listInstances,
			},
			{
				Name:        "search_logs",
				Description: "Search log entries using a text query.",
				Params: []tool.ParamSpec{
					guidParam,
					{Name: "query", Type: tool.TypeString, Required: true, Description: "Search text (e.g. 'error', 'timeout')."},
					{Name: "start_time_minutes_ago", Type: tool.TypeInteger, Default: 60, Description: "How far back to search in minutes. Default 60."},
					{Name: "limit", Type: tool.TypeInteger, Default: 50, Description: "Max results. Default 50, max 500."},
					{Name: "severity", Type: tool.TypeString, Description: "Optional filter: debug, info, warning, error, critical."},
				},
				Handler: s.searchLogs,
			},
			{
				Name:        "get_recent_logs",
				Description: "Get the most recent log lines from a Cloud Logs instance.",
				Params: []tool.ParamSpec{
					guidParam,
					{Name: "minutes_ago", Type: tool.TypeInteger, Default: 15, Description: "How far back to look. Default 15."},
					{Name: "limit", Type: tool.TypeInteger, Default: 100, Description: "Number of lines. Default 100."},
				},
				Handler: s.recentLogs,
			},
			{
				Name:        "get_logs_by_severity",
				Description: "Get logs filtered by severity level (error, critical, warning, etc.).",
				Params: []tool.ParamSpec{
					guidParam,
					{Name: "severity", Type: tool.TypeString, Required: true, Description: "Severity: debug, info, warning, error, critical."},
					{Name: "start_time_minutes_ago", Type: tool.TypeInteger, Default: 60, Description: "Time window. Default 60."},
					{Name: "limit", Type: tool.TypeInteger, Default: 100, Description: "Max results. Default 100."},
				},
				Handler: s.logsBySeverity,
			},
			{
				Name:        "count_errors",
				Description: "Count error and critical log events and get a health summary.",
				Params: []tool.ParamSpec{
					guidParam,
					{Name: "start_time_minutes_ago", Type: tool.TypeInteger, Default: 60, Description: "Time window. Default 60."},
				},
				Handler: s.countErrors,
			},
			{
				Name:        "get_log_alerts",
				Description: "List all configured alerting rules for a Cloud Logs instance.",
				Params:      []tool.ParamSpec{guidParam},
				Handler:     s.logAlerts,
			},
		},
	}
}

func (s *service) listInstances(ctx context.Context, _ map[string]any) (map[string]any, error) {
	resources, err := s.client.ListResourceInstances(ctx, s.cfg.ResourceControllerURL, "logs", 50)
	if err != nil {
		return nil, err
	}

	instances := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		instances = append(instances, map[string]any{
			"guid":       r.GUID,
			"name":       r.Name,
			"id":         r.ID,
			"region":     r.RegionID,
			"state":      r.State,
			"created_at": r.CreatedAt,
		})
	}
	return map[string]any{"instances": instances, "count": len(instances)}, nil
}

type logEntry struct {
	Timestamp       string `json:"timestamp"`
	Severity        string `json:"severity"`
	Text            string `json:"text"`
	LogLine         string `json:"log_line"`
	ApplicationName string `json:"applicationName"`
	SubsystemName   string `json:"subsystemName"`
}

type queryResponse struct {
	Results []logEntry `json:"results"`
}

// query issues one POST /logs/query. severity may be empty.
func (s *service) query(ctx context.Context, guid, queryText string, minutesAgo, limit int, severity string) ([]logEntry, error) {
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	end := s.nowUTC()
	start := end.Add(-time.Duration(minutesAgo) * time.Minute)

	payload := map[string]any{
		"query": queryText,
		"metadata": map[string]any{
			"start_date": start.Format("2006-01-02T15:04:05Z"),
			"end_date":   end.Format("2006-01-02T15:04:05Z"),
		},
		"limit": limit,
	}
	if severity != "" {
		payload["severity"] = severity
	}

	var resp queryResponse
	url := s.instanceURL(guid) + "/logs/query"
	if err := s.client.PostJSON(ctx, url, payload, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func formatEntries(entries []logEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		text := e.Text
		if text == "" {
			text = e.LogLine
		}
		out = append(out, map[string]any{
			"timestamp":   e.Timestamp,
			"severity":    e.Severity,
			"text":        text,
			"application": e.ApplicationName,
			"subsystem":   e.SubsystemName,
		})
	}
	return out
}

func (s *service) searchLogs(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)
	queryText := args["query"].(string)
	minutesAgo := args["start_time_minutes_ago"].(int)
	limit := args["limit"].(int)

	severity := ""
	if v, ok := args["severity"].(string); ok && v != "" {
		sev, err := normalizeSeverity(v)
		if err != nil {
			return nil, err
		}
		severity = sev
	}

	entries, err := s.query(ctx, guid, queryText, minutesAgo, limit, severity)
	if err != nil {
		return nil, err
	}
	logs := formatEntries(entries)
	return map[string]any{
		"logs":               logs,
		"count":              len(logs),
		"query":              queryText,
		"time_range_minutes": minutesAgo,
	}, nil
}

func (s *service) recentLogs(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)
	minutesAgo := args["minutes_ago"].(int)
	limit := args["limit"].(int)

	entries, err := s.query(ctx, guid, "*", minutesAgo, limit, "")
	if err != nil {
		return nil, err
	}
	logs := formatEntries(entries)
	return map[string]any{
		"logs":               logs,
		"count":              len(logs),
		"query":              "*",
		"time_range_minutes": minutesAgo,
	}, nil
}

func normalizeSeverity(raw string) (string, error) {
	sev := strings.ToLower(raw)
	for _, valid := range validSeverities {
		if sev == valid {
			return sev, nil
		}
	}
	return "", tool.Errorf(tool.KindValidation,
		"invalid severity %q: must be one of %s", raw, strings.Join(validSeverities, ", "))
}

func (s *service) logsBySeverity(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)
	severity, err := normalizeSeverity(args["severity"].(string))
	if err != nil {
		return nil, err
	}
	minutesAgo := args["start_time_minutes_ago"].(int)
	limit := args["limit"].(int)

	entries, qerr := s.query(ctx, guid, "*", minutesAgo, limit, severity)
	if qerr != nil {
		return nil, qerr
	}
	logs := formatEntries(entries)
	return map[string]any{
		"logs":               logs,
		"count":              len(logs),
		"severity":           severity,
		"time_range_minutes": minutesAgo,
	}, nil
}

func (s *service) countErrors(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)
	minutesAgo := args["start_time_minutes_ago"].(int)

	errorEntries, err := s.query(ctx, guid, "*", minutesAgo, maxQueryLimit, "error")
	if err != nil {
		return nil, err
	}
	criticalEntries, err := s.query(ctx, guid, "*", minutesAgo, maxQueryLimit, "critical")
	if err != nil {
		return nil, err
	}

	errorCount := len(errorEntries)
	criticalCount := len(criticalEntries)
	total := errorCount + criticalCount

	var health, recommendation string
	switch {
	case total == 0:
		health = "healthy"
		recommendation = "No issues detected."
	case criticalCount > 0 || errorCount > criticalErrorThreshold:
		health = "critical"
		recommendation = fmt.Sprintf("URGENT: %d critical events! Immediate attention needed.", criticalCount)
	default:
		health = "degraded"
		recommendation = fmt.Sprintf("Found %d errors. Review logs for root cause.", errorCount)
	}

	return map[string]any{
		"time_window_minutes": minutesAgo,
		"error_count":         errorCount,
		"critical_count":      criticalCount,
		"total_issues":        total,
		"health_status":       health,
		"recommendation":      recommendation,
	}, nil
}

type logAlert struct {
	Name      string `json:"name"`
	IsActive  *bool  `json:"is_active"`
	Severity  string `json:"severity"`
	Condition struct {
		Type string `json:"type"`
	} `json:"condition"`
	NotificationGroups []map[string]any `json:"notification_groups"`
}

func (s *service) logAlerts(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)

	var resp struct {
		Alerts []logAlert `json:"alerts"`
	}
	url := s.instanceURL(guid) + "/alerts"
	if err := s.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}

	alerts := make([]map[string]any, 0, len(resp.Alerts))
	for _, a := range resp.Alerts {
		enabled := true
		if a.IsActive != nil {
			enabled = *a.IsActive
		}
		alerts = append(alerts, map[string]any{
			"name":                a.Name,
			"enabled":             enabled,
			"severity":            a.Severity,
			"condition_type":      a.Condition.Type,
			"notification_groups": len(a.NotificationGroups),
		})
	}
	return map[string]any{"alerts": alerts, "count": len(alerts)}, nil
}
