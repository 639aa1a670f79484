// Package monitoring exposes IBM Cloud Monitoring (Sysdig) tools: metric
// queries, platform metrics, alert rules, alert events, and dashboards.
package monitoring

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/watsonhub/ibmcloudkit/ibmcloud"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// ModuleName is the catalog group name for Cloud Monitoring tools.
const ModuleName = "Cloud Monitoring"

var validAggregations = []string{"avg", "max", "min", "sum", "rate"}

// Config locates the regional monitoring API.
type Config struct {
	Region string
	// BaseURL overrides the derived regional endpoint.
	BaseURL string
	// ResourceControllerURL overrides instance discovery.
	ResourceControllerURL string

	// now is injectable so query windows are stable in tests.
	now func() time.Time
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s.monitoring.cloud.ibm.com", c.Region)
}

type service struct {
	client *ibmcloud.Client
	cfg    Config
	base   string
}

func (s *service) now() time.Time {
	if s.cfg.now != nil {
		return s.cfg.now()
	}
	return time.Now()
}

// instanceHeader scopes a request to one monitoring instance. The regional
// endpoint is shared, so the API multiplexes on this header. Header matching
// is case-insensitive, so canonicalization of the key is harmless.
func instanceHeader(guid string) http.Header {
	h := http.Header{}
	h.Set("IBMInstanceID", guid)
	return h
}

// Module declares the Cloud Monitoring tool set.
func Module(client *ibmcloud.Client, cfg Config) tool.Module {
	s := &service{client: client, cfg: cfg, base: cfg.baseURL()}
	guidParam := tool.ParamSpec{
		Name: "instance_guid", Type: tool.TypeString, Required: true,
		Description: "Monitoring instance GUID, from list_monitoring_instances.",
	}

	return tool.Module{
		Name: ModuleName,
		Tools: []tool.Definition{
			{
				Name:        "list_monitoring_instances",
				Description: "List all IBM Cloud Monitoring instances in the account.",
				Handler:     s.listInstances,
			},
			{
				Name:        "query_metric",
				Description: "Query a specific metric (CPU, memory, network, etc.) from IBM Cloud Monitoring.",
				Params: []tool.ParamSpec{
					guidParam,
					{Name: "metric_name", Type: tool.TypeString, Required: true, Description: "Metric ID (e.g. 'cpu.used.percent')."},
					{Name: "aggregation", Type: tool.TypeString, Default: "avg", Description: "avg, max, min, sum, or rate. Default avg."},
					{Name: "start_time_minutes_ago", Type: tool.TypeInteger, Default: 60, Description: "Time window in minutes. Default 60."},
					{Name: "segment_by", Type: tool.TypeString, Description: "Optional dimension (e.g. 'host.hostName')."},
				},
				Handler: s.queryMetric,
			},
			{
				Name:        "get_platform_metrics",
				Description: "Get metrics emitted by IBM Cloud platform services like Code Engine or Databases.",
				Params: []tool.ParamSpec{
					guidParam,
					{Name: "service_name", Type: tool.TypeString, Required: true, Description: "IBM service name (e.g. 'codeengine')."},
					{Name: "metric_name", Type: tool.TypeString, Required: true, Description: "Metric name."},
					{Name: "start_time_minutes_ago", Type: tool.TypeInteger, Default: 30, Description: "Time window. Default 30."},
				},
				Handler: s.platformMetrics,
			},
			{
				Name:        "list_alerts",
				Description: "List all configured monitoring alert rules.",
				Params:      []tool.ParamSpec{guidParam},
				Handler:     s.listAlerts,
			},
			{
				Name:        "get_alert_events",
				Description: "Get recent alert firing events from Cloud Monitoring.",
				Params: []tool.ParamSpec{
					guidParam,
					{Name: "start_time_minutes_ago", Type: tool.TypeInteger, Default: 60, Description: "Time window. Default 60."},
					{Name: "status", Type: tool.TypeString, Default: "triggered", Description: "triggered, resolved, or acknowledged. Default triggered."},
				},
				Handler: s.alertEvents,
			},
			{
				Name:        "get_team_dashboards",
				Description: "List all monitoring dashboards in a Cloud Monitoring instance.",
				Params:      []tool.ParamSpec{guidParam},
				Handler:     s.teamDashboards,
			},
		},
	}
}

func (s *service) listInstances(ctx context.Context, _ map[string]any) (map[string]any, error) {
	resources, err := s.client.ListResourceInstances(ctx, s.cfg.ResourceControllerURL, "sysdig-monitor", 50)
	if err != nil {
		return nil, err
	}

	instances := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		region := r.RegionID
		if region == "" {
			region = s.cfg.Region
		}
		instances = append(instances, map[string]any{
			"guid":          r.GUID,
			"name":          r.Name,
			"region":        r.RegionID,
			"state":         r.State,
			"id":            r.ID,
			"dashboard_url": fmt.Sprintf("https://%s.monitoring.cloud.ibm.com", region),
		})
	}
	return map[string]any{"instances": instances, "count": len(instances)}, nil
}

type metricSample struct {
	T int64  `json:"t"`
	D []*f64 `json:"d"`
}

// f64 distinguishes null samples from zero values.
type f64 float64

type metricsResponse struct {
	Data []metricSample `json:"data"`
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// runMetricQuery issues one POST /api/data/metrics and summarizes the series.
func (s *service) runMetricQuery(ctx context.Context, guid, metricName, aggregation string, minutesAgo int, segmentBy string) (map[string]any, error) {
	windowSec := minutesAgo * 60
	end := s.now().Unix()
	start := end - int64(windowSec)

	sampling := windowSec / 100
	if sampling < 60 {
		sampling = 60
	}

	metrics := []map[string]any{{
		"id":           metricName,
		"aggregations": map[string]any{"time": aggregation, "group": aggregation},
	}}
	if segmentBy != "" {
		metrics = append(metrics, map[string]any{"id": segmentBy})
	}

	payload := map[string]any{
		"start":    start,
		"end":      end,
		"last":     windowSec,
		"sampling": sampling,
		"metrics":  metrics,
	}

	var resp metricsResponse
	err := s.client.DoJSON(ctx, ibmcloud.Request{
		Method: "POST",
		URL:    s.base + "/api/data/metrics",
		Body:   payload,
		Header: instanceHeader(guid),
	}, &resp)
	if err != nil {
		return nil, err
	}

	dataPoints := make([]map[string]any, 0, len(resp.Data))
	var values []float64
	for _, sample := range resp.Data {
		ts := time.Unix(sample.T, 0).UTC().Format("2006-01-02T15:04:05Z")
		point := map[string]any{"timestamp": ts, "value": nil}
		if len(sample.D) > 0 && sample.D[0] != nil {
			v := float64(*sample.D[0])
			point["value"] = v
			values = append(values, v)
		}
		dataPoints = append(dataPoints, point)
	}

	summary := map[string]any{}
	if len(values) > 0 {
		sum, minV, maxV := 0.0, values[0], values[0]
		for _, v := range values {
			sum += v
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		summary = map[string]any{
			"current": round4(values[len(values)-1]),
			"average": round4(sum / float64(len(values))),
			"max":     round4(maxV),
			"min":     round4(minV),
		}
	}

	return map[string]any{
		"metric":             metricName,
		"aggregation":        aggregation,
		"time_range_minutes": minutesAgo,
		"data_points":        dataPoints,
		"summary":            summary,
	}, nil
}

func (s *service) queryMetric(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)
	metricName := args["metric_name"].(string)
	aggregation := strings.ToLower(args["aggregation"].(string))
	minutesAgo := args["start_time_minutes_ago"].(int)

	valid := false
	for _, a := range validAggregations {
		if aggregation == a {
			valid = true
			break
		}
	}
	if !valid {
		return nil, tool.Errorf(tool.KindValidation,
			"invalid aggregation %q: must be one of %s", aggregation, strings.Join(validAggregations, ", "))
	}

	segmentBy, _ := args["segment_by"].(string)
	return s.runMetricQuery(ctx, guid, metricName, aggregation, minutesAgo, segmentBy)
}

func (s *service) platformMetrics(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)
	serviceName := args["service_name"].(string)
	metricName := args["metric_name"].(string)
	minutesAgo := args["start_time_minutes_ago"].(int)

	// Platform metrics follow the ibm_<service>_<metric> naming pattern.
	fullMetric := metricName
	if !strings.HasPrefix(metricName, "ibm_") {
		fullMetric = fmt.Sprintf("ibm_%s_%s", serviceName, metricName)
	}

	return s.runMetricQuery(ctx, guid, fullMetric, "avg", minutesAgo, "ibm_service_name")
}

type alertRule struct {
	ID                   int64            `json:"id"`
	Name                 string           `json:"name"`
	Enabled              *bool            `json:"enabled"`
	Severity             any              `json:"severity"`
	Type                 string           `json:"type"`
	Condition            string           `json:"condition"`
	NotificationChannels []map[string]any `json:"notificationChannels"`
}

func (s *service) listAlerts(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)

	var resp struct {
		Alerts []alertRule `json:"alerts"`
	}
	err := s.client.DoJSON(ctx, ibmcloud.Request{
		Method: "GET",
		URL:    s.base + "/api/alerts",
		Header: instanceHeader(guid),
	}, &resp)
	if err != nil {
		return nil, err
	}

	alerts := make([]map[string]any, 0, len(resp.Alerts))
	for _, a := range resp.Alerts {
		enabled := true
		if a.Enabled != nil {
			enabled = *a.Enabled
		}
		channels := make([]any, 0, len(a.NotificationChannels))
		for _, nc := range a.NotificationChannels {
			channels = append(channels, nc["type"])
		}
		alerts = append(alerts, map[string]any{
			"id":                    a.ID,
			"name":                  a.Name,
			"enabled":               enabled,
			"severity":              a.Severity,
			"type":                  a.Type,
			"condition":             a.Condition,
			"notification_channels": channels,
		})
	}
	return map[string]any{"alerts": alerts, "count": len(alerts)}, nil
}

type alertEvent struct {
	Timestamp   int64  `json:"timestamp"`
	Name        string `json:"name"`
	Severity    any    `json:"severity"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

func (s *service) alertEvents(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)
	minutesAgo := args["start_time_minutes_ago"].(int)
	status := args["status"].(string)

	end := s.now().Unix()
	start := end - int64(minutesAgo*60)

	// The events API takes microsecond timestamps.
	query := url.Values{
		"from":   {strconv.FormatInt(start*1_000_000, 10)},
		"to":     {strconv.FormatInt(end*1_000_000, 10)},
		"status": {status},
		"limit":  {"100"},
	}

	var resp struct {
		Events []alertEvent `json:"events"`
	}
	err := s.client.DoJSON(ctx, ibmcloud.Request{
		Method: "GET",
		URL:    s.base + "/api/v2/events",
		Query:  query,
		Header: instanceHeader(guid),
	}, &resp)
	if err != nil {
		return nil, err
	}

	events := make([]map[string]any, 0, len(resp.Events))
	for _, e := range resp.Events {
		ts := time.Unix(e.Timestamp/1_000_000, 0).UTC().Format("2006-01-02T15:04:05Z")
		events = append(events, map[string]any{
			"timestamp":   ts,
			"name":        e.Name,
			"severity":    e.Severity,
			"status":      e.Status,
			"description": e.Description,
		})
	}
	return map[string]any{
		"events":              events,
		"count":               len(events),
		"status_filter":       status,
		"time_window_minutes": minutesAgo,
	}, nil
}

type dashboard struct {
	ID            any              `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	CreatedByName string           `json:"createdByName"`
	Panels        []map[string]any `json:"panels"`
}

func (s *service) teamDashboards(ctx context.Context, args map[string]any) (map[string]any, error) {
	guid := args["instance_guid"].(string)

	var resp struct {
		Dashboards []dashboard `json:"dashboards"`
	}
	err := s.client.DoJSON(ctx, ibmcloud.Request{
		Method: "GET",
		URL:    s.base + "/api/v3/dashboards",
		Header: instanceHeader(guid),
	}, &resp)
	if err != nil {
		return nil, err
	}

	dashboards := make([]map[string]any, 0, len(resp.Dashboards))
	for _, d := range resp.Dashboards {
		dashboards = append(dashboards, map[string]any{
			"id":          d.ID,
			"name":        d.Name,
			"description": d.Description,
			"created_by":  d.CreatedByName,
			"panel_count": len(d.Panels),
			"url":         fmt.Sprintf("%s/#/dashboard/%v", s.base, d.ID),
		})
	}
	return map[string]any{"dashboards": dashboards, "count": len(dashboards)}, nil
}
