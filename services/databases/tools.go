// Package databases exposes IBM Cloud Databases (ICD) tools: instance
// discovery across all managed database types, backups, connection info,
// scaling, task tracking, and IP allowlists.
package databases

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/watsonhub/ibmcloudkit/ibmcloud"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// ModuleName is the catalog group name for Cloud Databases tools.
const ModuleName = "Cloud Databases"

// dbResourceIDs maps friendly database types to their resource controller
// resource IDs. Listing fans out over all of them when no filter is given.
var dbResourceIDs = []struct {
	Type       string
	ResourceID string
}{
	{"postgresql", "databases-for-postgresql"},
	{"mysql", "databases-for-mysql"},
	{"redis", "databases-for-redis"},
	{"mongodb", "databases-for-mongodb"},
	{"elasticsearch", "databases-for-elasticsearch"},
	{"etcd", "databases-for-etcd"},
	{"rabbitmq", "messages-for-rabbitmq"},
	{"enterprisedb", "edb-se"},
}

// Config locates the regional ICD API.
type Config struct {
	Region string
	// BaseURL overrides the derived regional endpoint.
	BaseURL string
	// ResourceControllerURL overrides instance discovery.
	ResourceControllerURL string
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://api.%s.databases.cloud.ibm.com/v5/ibm", c.Region)
}

type service struct {
	client *ibmcloud.Client
	cfg    Config
	base   string
}

// deploymentURL builds an ICD path for one instance. Instance IDs are CRNs
// containing colons and slashes, so the ID segment must be escaped.
func (s *service) deploymentURL(instanceID, suffix string) string {
	return s.base + "/deployments/" + url.PathEscape(instanceID) + suffix
}

// Module declares the Cloud Databases tool set.
func Module(client *ibmcloud.Client, cfg Config) tool.Module {
	s := &service{client: client, cfg: cfg, base: cfg.baseURL()}
	crnParam := tool.ParamSpec{
		Name: "instance_id", Type: tool.TypeString, Required: true,
		Description: "Database instance CRN, from list_database_instances.",
	}

	return tool.Module{
		Name: ModuleName,
		Tools: []tool.Definition{
			{
				Name:        "list_database_instances",
				Description: "List all IBM Cloud Database instances (PostgreSQL, MySQL, Redis, MongoDB, etc.).",
				Params: []tool.ParamSpec{
					{Name: "database_type", Type: tool.TypeString, Description: "Optional filter: postgresql, mysql, redis, mongodb, elasticsearch, etcd, rabbitmq, enterprisedb."},
				},
				Handler: s.listInstances,
			},
			{
				Name:        "get_database_details",
				Description: "Get detailed info about an IBM Cloud Database instance.",
				Params:      []tool.ParamSpec{crnParam},
				Handler:     s.getDetails,
			},
			{
				Name:        "list_database_backups",
				Description: "List available backups for a database instance.",
				Params:      []tool.ParamSpec{crnParam},
				Handler:     s.listBackups,
			},
			{
				Name:        "create_manual_backup",
				Description: "Trigger an immediate manual backup of a database instance.",
				Params:      []tool.ParamSpec{crnParam},
				Handler:     s.createBackup,
			},
			{
				Name:        "get_connection_strings",
				Description: "Get connection details (hostname, port, TLS info) for a database instance. Does NOT return passwords.",
				Params: []tool.ParamSpec{
					crnParam,
					{Name: "user_type", Type: tool.TypeString, Default: "admin", Description: "User type. Default admin."},
					{Name: "endpoint_type", Type: tool.TypeString, Default: "public", Description: "public or private. Default public."},
				},
				Handler: s.connectionStrings,
			},
			{
				Name:        "scale_database",
				Description: "Scale a database instance's memory, disk, or CPU allocation.",
				Params: []tool.ParamSpec{
					crnParam,
					{Name: "group_id", Type: tool.TypeString, Default: "member", Description: "Group to scale. Default member."},
					{Name: "memory_mb", Type: tool.TypeInteger, Description: "New memory in MB (multiple of 128)."},
					{Name: "disk_mb", Type: tool.TypeInteger, Description: "New disk in MB (multiple of 1024, can only increase)."},
					{Name: "cpu_count", Type: tool.TypeInteger, Description: "Number of dedicated CPUs. 0 means shared."},
				},
				Handler: s.scale,
			},
			{
				Name:        "list_database_tasks",
				Description: "List ongoing or recent database operations (backup, scale, restore).",
				Params:      []tool.ParamSpec{crnParam},
				Handler:     s.listTasks,
			},
			{
				Name:        "get_database_whitelist",
				Description: "Get the IP allowlist configured for a database instance.",
				Params:      []tool.ParamSpec{crnParam},
				Handler:     s.whitelist,
			},
		},
	}
}

func typeForResourceID(resourceCRN string) string {
	for _, e := range dbResourceIDs {
		if strings.Contains(resourceCRN, e.ResourceID) {
			return e.Type
		}
	}
	return "unknown"
}

func (s *service) listInstances(ctx context.Context, args map[string]any) (map[string]any, error) {
	filter := ""
	if v, ok := args["database_type"].(string); ok {
		filter = strings.ToLower(v)
	}

	resourceIDs := make([]string, 0, len(dbResourceIDs))
	for _, e := range dbResourceIDs {
		if filter == "" || filter == e.Type {
			resourceIDs = append(resourceIDs, e.ResourceID)
		}
	}
	if len(resourceIDs) == 0 {
		// Unrecognized filter falls back to listing everything, mirroring
		// the permissive behavior of the resource controller itself.
		for _, e := range dbResourceIDs {
			resourceIDs = append(resourceIDs, e.ResourceID)
		}
		filter = ""
	}

	var all []map[string]any
	for _, resourceID := range resourceIDs {
		resources, err := s.client.ListResourceInstances(ctx, s.cfg.ResourceControllerURL, resourceID, 100)
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			plan := r.ResourcePlanID
			if i := strings.LastIndex(plan, ":"); i >= 0 {
				plan = plan[i+1:]
			}
			all = append(all, map[string]any{
				"id":            r.ID,
				"guid":          r.GUID,
				"name":          r.Name,
				"type":          typeForResourceID(r.ResourceID),
				"region":        r.RegionID,
				"state":         r.State,
				"plan":          plan,
				"created_at":    r.CreatedAt,
				"dashboard_url": r.DashboardURL,
			})
		}
	}

	filterLabel := filter
	if filterLabel == "" {
		filterLabel = "all"
	}
	if all == nil {
		all = []map[string]any{}
	}
	return map[string]any{
		"databases": all,
		"count":     len(all),
		"filter":    filterLabel,
	}, nil
}

type deploymentGroup struct {
	Role               string `json:"role"`
	Count              int    `json:"count"`
	MemoryAllocationMB int    `json:"memory_allocation_mb"`
	DiskAllocationMB   int    `json:"disk_allocation_mb"`
	CPUAllocationCount int    `json:"cpu_allocation_count"`
}

type deployment struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Type               string            `json:"type"`
	Version            string            `json:"version"`
	PlatformOptions    map[string]any    `json:"platform_options"`
	Location           string            `json:"location"`
	Tags               []string          `json:"tags"`
	Groups             []deploymentGroup `json:"groups"`
	ConnectionDraining bool              `json:"connection_draining"`
	AutoScaling        map[string]any    `json:"auto_scaling"`
}

func (s *service) getDetails(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceID := args["instance_id"].(string)

	var resp struct {
		Deployment deployment `json:"deployment"`
	}
	if err := s.client.GetJSON(ctx, s.deploymentURL(instanceID, ""), nil, &resp); err != nil {
		return nil, err
	}

	d := resp.Deployment
	members := make([]map[string]any, 0, len(d.Groups))
	for _, g := range d.Groups {
		members = append(members, map[string]any{
			"role":      g.Role,
			"count":     g.Count,
			"memory_mb": g.MemoryAllocationMB,
			"disk_mb":   g.DiskAllocationMB,
			"cpu":       g.CPUAllocationCount,
		})
	}

	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	platformOptions := d.PlatformOptions
	if platformOptions == nil {
		platformOptions = map[string]any{}
	}
	autoScaling := d.AutoScaling
	if autoScaling == nil {
		autoScaling = map[string]any{}
	}
	return map[string]any{
		"id":                  d.ID,
		"name":                d.Name,
		"type":                d.Type,
		"version":             d.Version,
		"platform_options":    platformOptions,
		"location":            d.Location,
		"tags":                tags,
		"members":             members,
		"connection_draining": d.ConnectionDraining,
		"auto_scaling":        autoScaling,
	}, nil
}

type backup struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	IsRestorable bool   `json:"is_restorable"`
	DownloadLink string `json:"download_link"`
}

func (s *service) listBackups(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceID := args["instance_id"].(string)

	var resp struct {
		Backups []backup `json:"backups"`
	}
	if err := s.client.GetJSON(ctx, s.deploymentURL(instanceID, "/backups"), nil, &resp); err != nil {
		return nil, err
	}

	backups := make([]map[string]any, 0, len(resp.Backups))
	for _, b := range resp.Backups {
		backups = append(backups, map[string]any{
			"id":            b.ID,
			"type":          b.Type,
			"status":        b.Status,
			"created_at":    b.CreatedAt,
			"is_restorable": b.IsRestorable,
			"download_link": b.DownloadLink,
		})
	}
	return map[string]any{
		"backups":     backups,
		"count":       len(backups),
		"instance_id": instanceID,
	}, nil
}

type icdTask struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	CreatedAt       string `json:"created_at"`
}

func (s *service) createBackup(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceID := args["instance_id"].(string)

	var resp struct {
		Task icdTask `json:"task"`
	}
	url := s.deploymentURL(instanceID, "/backups")
	if err := s.client.PostJSON(ctx, url, map[string]any{}, &resp); err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"task_id": resp.Task.ID,
		"status":  resp.Task.Status,
		"message": "Manual backup initiated. Use list_database_tasks to check progress.",
	}, nil
}

type connectionHost struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

type connectionInfo struct {
	Hosts       []connectionHost `json:"hosts"`
	Composed    []string         `json:"composed"`
	Database    string           `json:"database"`
	SSL         bool             `json:"ssl"`
	Certificate struct {
		Name string `json:"name"`
	} `json:"certificate"`
}

// connectionKeys are probed in order; the first protocol present in the
// response describes the deployment's native client connection.
var connectionKeys = []string{"postgres", "mysql", "redis", "mongodb", "https", "amqps", "cli"}

func (s *service) connectionStrings(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceID := args["instance_id"].(string)
	userType := args["user_type"].(string)
	endpointType := args["endpoint_type"].(string)

	var resp struct {
		Connection map[string]connectionInfo `json:"connection"`
	}
	path := fmt.Sprintf("/users/%s/connections/%s", url.PathEscape(userType), url.PathEscape(endpointType))
	if err := s.client.GetJSON(ctx, s.deploymentURL(instanceID, path), nil, &resp); err != nil {
		return nil, err
	}

	result := map[string]any{
		"instance_id":   instanceID,
		"user_type":     userType,
		"endpoint_type": endpointType,
	}

	for _, key := range connectionKeys {
		conn, ok := resp.Connection[key]
		if !ok {
			continue
		}
		if len(conn.Composed) > 0 {
			tmpl := strings.ReplaceAll(conn.Composed[0], "{username}", userType)
			tmpl = strings.ReplaceAll(tmpl, "{password}", "YOUR_PASSWORD_HERE")
			result["connection_string_template"] = tmpl
		}
		if len(conn.Hosts) > 0 {
			hosts := make([]map[string]any, 0, len(conn.Hosts))
			for _, h := range conn.Hosts {
				hosts = append(hosts, map[string]any{"hostname": h.Hostname, "port": h.Port})
			}
			result["hosts"] = hosts
			result["hostname"] = conn.Hosts[0].Hostname
			result["port"] = conn.Hosts[0].Port
		}
		if key != "cli" {
			result["database"] = conn.Database
			result["tls_enabled"] = conn.SSL
			result["certificate"] = map[string]any{
				"name": conn.Certificate.Name,
				"note": "Download cert from IBM Cloud console > your database > Overview > TLS Certificate",
			}
			break
		}
	}

	result["security_note"] = "Password not included for security. Use IBM Secrets Manager or reset via IBM Cloud console."
	return result, nil
}

func (s *service) scale(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceID := args["instance_id"].(string)
	groupID := args["group_id"].(string)

	memoryMB, hasMemory := args["memory_mb"].(int)
	diskMB, hasDisk := args["disk_mb"].(int)
	cpuCount, hasCPU := args["cpu_count"].(int)

	if !hasMemory && !hasDisk && !hasCPU {
		return nil, tool.Errorf(tool.KindValidation,
			"at least one of memory_mb, disk_mb, or cpu_count must be specified")
	}

	group := map[string]any{}
	changes := map[string]any{"memory_mb": nil, "disk_mb": nil, "cpu_count": nil}
	if hasMemory {
		group["memory"] = map[string]any{"allocation_mb": memoryMB}
		changes["memory_mb"] = memoryMB
	}
	if hasDisk {
		group["disk"] = map[string]any{"allocation_mb": diskMB}
		changes["disk_mb"] = diskMB
	}
	if hasCPU {
		group["cpu"] = map[string]any{"allocation_count": cpuCount}
		changes["cpu_count"] = cpuCount
	}

	var resp struct {
		Task icdTask `json:"task"`
	}
	url := s.deploymentURL(instanceID, "/groups/"+groupID)
	if err := s.client.PatchJSON(ctx, url, map[string]any{"group": group}, &resp); err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"task_id": resp.Task.ID,
		"message": "Scaling operation started. This may take 5-15 minutes. Use list_database_tasks to monitor.",
		"changes": changes,
	}, nil
}

func (s *service) listTasks(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceID := args["instance_id"].(string)

	var resp struct {
		Tasks []icdTask `json:"tasks"`
	}
	if err := s.client.GetJSON(ctx, s.deploymentURL(instanceID, "/tasks"), nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]map[string]any, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		tasks = append(tasks, map[string]any{
			"id":               t.ID,
			"description":      t.Description,
			"status":           t.Status,
			"progress_percent": t.ProgressPercent,
			"created_at":       t.CreatedAt,
		})
	}
	return map[string]any{"tasks": tasks, "count": len(tasks)}, nil
}

func (s *service) whitelist(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceID := args["instance_id"].(string)

	var resp struct {
		IPAddresses []struct {
			Address     string `json:"address"`
			Description string `json:"description"`
		} `json:"ip_addresses"`
	}
	url := s.deploymentURL(instanceID, "/whitelists/ip_addresses")
	if err := s.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]map[string]any, 0, len(resp.IPAddresses))
	for _, e := range resp.IPAddresses {
		description := e.Description
		if description == "" {
			description = "No description"
		}
		entries = append(entries, map[string]any{
			"address":     e.Address,
			"description": description,
		})
	}
	return map[string]any{
		"whitelist": entries,
		"count":     len(entries),
		"note":      "Empty whitelist means ALL IP addresses are allowed (less secure).",
	}, nil
}
