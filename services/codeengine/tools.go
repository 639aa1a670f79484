// Package codeengine exposes IBM Cloud Code Engine management tools:
// projects, apps, batch jobs, and job runs.
package codeengine

import (
	"context"
	"fmt"
	"time"

	"github.com/watsonhub/ibmcloudkit/ibmcloud"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// ModuleName is the catalog group name for Code Engine tools.
const ModuleName = "Code Engine"

// Config locates the regional Code Engine API.
type Config struct {
	Region string
	// BaseURL overrides the derived regional endpoint.
	BaseURL string
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://api.%s.codeengine.cloud.ibm.com/v2", c.Region)
}

type service struct {
	client *ibmcloud.Client
	base   string
}

// Module declares the Code Engine tool set.
func Module(client *ibmcloud.Client, cfg Config) tool.Module {
	s := &service{client: client, base: cfg.baseURL()}
	projectParam := tool.ParamSpec{
		Name: "project_id", Type: tool.TypeString, Required: true,
		Description: "The Code Engine project ID.",
	}

	return tool.Module{
		Name: ModuleName,
		Tools: []tool.Definition{
			{
				Name:        "list_code_engine_projects",
				Description: "List all IBM Cloud Code Engine projects in the account.",
				Handler:     s.listProjects,
			},
			{
				Name:        "list_code_engine_apps",
				Description: "List all applications in a Code Engine project.",
				Params:      []tool.ParamSpec{projectParam},
				Handler:     s.listApps,
			},
			{
				Name:        "get_app_details",
				Description: "Get detailed info about a Code Engine application.",
				Params: []tool.ParamSpec{
					projectParam,
					{Name: "app_name", Type: tool.TypeString, Required: true, Description: "The application name."},
				},
				Handler: s.getApp,
			},
			{
				Name:        "create_app",
				Description: "Deploy a new containerized application to Code Engine.",
				Params: []tool.ParamSpec{
					projectParam,
					{Name: "app_name", Type: tool.TypeString, Required: true, Description: "Name for the new app."},
					{Name: "image", Type: tool.TypeString, Required: true, Description: "Container image (e.g. icr.io/ns/app:latest)."},
					{Name: "port", Type: tool.TypeInteger, Default: 8080, Description: "Port the container listens on. Default 8080."},
					{Name: "min_instances", Type: tool.TypeInteger, Default: 0, Description: "Min running instances. Default 0."},
					{Name: "max_instances", Type: tool.TypeInteger, Default: 10, Description: "Max instances. Default 10."},
					{Name: "cpu", Type: tool.TypeString, Default: "0.25", Description: "CPU limit (e.g. '0.25'). Default '0.25'."},
					{Name: "memory", Type: tool.TypeString, Default: "0.5G", Description: "Memory limit (e.g. '0.5G'). Default '0.5G'."},
					{Name: "env_vars", Type: tool.TypeArray, Description: "Environment variables as [{name, value}] objects."},
				},
				Handler: s.createApp,
			},
			{
				Name:        "delete_app",
				Description: "Delete a Code Engine application.",
				Params: []tool.ParamSpec{
					projectParam,
					{Name: "app_name", Type: tool.TypeString, Required: true, Description: "The app to delete."},
				},
				Handler: s.deleteApp,
			},
			{
				Name:        "list_jobs",
				Description: "List all batch jobs defined in a Code Engine project.",
				Params:      []tool.ParamSpec{projectParam},
				Handler:     s.listJobs,
			},
			{
				Name:        "create_job_run",
				Description: "Trigger a Code Engine batch job run.",
				Params: []tool.ParamSpec{
					projectParam,
					{Name: "job_name", Type: tool.TypeString, Required: true, Description: "Job definition to run."},
					{Name: "array_indices", Type: tool.TypeString, Default: "0", Description: "Indices to run, e.g. '0' or '0-4'. Default '0'."},
				},
				Handler: s.createJobRun,
			},
			{
				Name:        "get_job_run_status",
				Description: "Check the status of a Code Engine job run.",
				Params: []tool.ParamSpec{
					projectParam,
					{Name: "job_run_name", Type: tool.TypeString, Required: true, Description: "Job run name from create_job_run."},
				},
				Handler: s.getJobRun,
			},
		},
	}
}

type project struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Region          string `json:"region"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	ResourceGroupID string `json:"resource_group_id"`
}

func (s *service) listProjects(ctx context.Context, _ map[string]any) (map[string]any, error) {
	var page struct {
		Projects []project `json:"projects"`
	}
	if err := s.client.GetJSON(ctx, s.base+"/projects", nil, &page); err != nil {
		return nil, err
	}

	projects := make([]map[string]any, 0, len(page.Projects))
	for _, p := range page.Projects {
		projects = append(projects, map[string]any{
			"id":                p.ID,
			"name":              p.Name,
			"region":            p.Region,
			"status":            p.Status,
			"created_at":        p.CreatedAt,
			"resource_group_id": p.ResourceGroupID,
		})
	}
	return map[string]any{"projects": projects, "count": len(projects)}, nil
}

type app struct {
	Name              string           `json:"name"`
	Status            string           `json:"status"`
	ImageReference    string           `json:"image_reference"`
	Endpoint          string           `json:"endpoint"`
	ImagePort         int              `json:"image_port"`
	ScaleMinInstances int              `json:"scale_min_instances"`
	ScaleMaxInstances int              `json:"scale_max_instances"`
	ScaleConcurrency  int              `json:"scale_concurrency"`
	ScaleCPULimit     string           `json:"scale_cpu_limit"`
	ScaleMemoryLimit  string           `json:"scale_memory_limit"`
	RunEnvVariables   []map[string]any `json:"run_env_variables"`
	CreatedAt         string           `json:"created_at"`
	UpdatedAt         string           `json:"updated_at"`
}

func (s *service) listApps(ctx context.Context, args map[string]any) (map[string]any, error) {
	projectID := args["project_id"].(string)

	var page struct {
		Apps []app `json:"apps"`
	}
	url := fmt.Sprintf("%s/projects/%s/apps", s.base, projectID)
	if err := s.client.GetJSON(ctx, url, nil, &page); err != nil {
		return nil, err
	}

	apps := make([]map[string]any, 0, len(page.Apps))
	for _, a := range page.Apps {
		apps = append(apps, map[string]any{
			"name":   a.Name,
			"status": a.Status,
			"image":  a.ImageReference,
			"url":    a.Endpoint,
			"instances": map[string]any{
				"min": a.ScaleMinInstances,
				"max": a.ScaleMaxInstances,
			},
			"cpu":        a.ScaleCPULimit,
			"memory":     a.ScaleMemoryLimit,
			"created_at": a.CreatedAt,
		})
	}
	return map[string]any{"apps": apps, "count": len(apps)}, nil
}

func (s *service) getApp(ctx context.Context, args map[string]any) (map[string]any, error) {
	projectID := args["project_id"].(string)
	appName := args["app_name"].(string)

	var a app
	url := fmt.Sprintf("%s/projects/%s/apps/%s", s.base, projectID, appName)
	if err := s.client.GetJSON(ctx, url, nil, &a); err != nil {
		return nil, err
	}

	port := a.ImagePort
	if port == 0 {
		port = 8080
	}
	return map[string]any{
		"name":     a.Name,
		"status":   a.Status,
		"image":    a.ImageReference,
		"url":      a.Endpoint,
		"port":     port,
		"env_vars": a.RunEnvVariables,
		"scaling": map[string]any{
			"min_instances": a.ScaleMinInstances,
			"max_instances": a.ScaleMaxInstances,
			"concurrency":   a.ScaleConcurrency,
			"cpu":           a.ScaleCPULimit,
			"memory":        a.ScaleMemoryLimit,
		},
		"created_at": a.CreatedAt,
		"updated_at": a.UpdatedAt,
	}, nil
}

func (s *service) createApp(ctx context.Context, args map[string]any) (map[string]any, error) {
	projectID := args["project_id"].(string)
	appName := args["app_name"].(string)

	payload := map[string]any{
		"name":                appName,
		"image_reference":     args["image"],
		"image_port":          args["port"],
		"scale_min_instances": args["min_instances"],
		"scale_max_instances": args["max_instances"],
		"scale_cpu_limit":     args["cpu"],
		"scale_memory_limit":  args["memory"],
	}
	if envVars, ok := args["env_vars"].([]any); ok && len(envVars) > 0 {
		payload["run_env_variables"] = envVars
	}

	var created app
	url := fmt.Sprintf("%s/projects/%s/apps", s.base, projectID)
	// App rollout can be slow to accept; give it a longer budget than the
	// default read calls.
	err := s.client.DoJSON(ctx, ibmcloud.Request{
		Method:  "POST",
		URL:     url,
		Body:    payload,
		Timeout: 60 * time.Second,
	}, &created)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("App %q is being deployed.", appName),
		"name":    created.Name,
		"status":  created.Status,
		"url":     created.Endpoint,
		"note":    "It may take 1-2 minutes to become fully ready.",
	}, nil
}

func (s *service) deleteApp(ctx context.Context, args map[string]any) (map[string]any, error) {
	projectID := args["project_id"].(string)
	appName := args["app_name"].(string)

	url := fmt.Sprintf("%s/projects/%s/apps/%s", s.base, projectID, appName)
	if err := s.client.Delete(ctx, url); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("App %q is being deleted.", appName),
	}, nil
}

type job struct {
	Name             string `json:"name"`
	ImageReference   string `json:"image_reference"`
	ScaleCPULimit    string `json:"scale_cpu_limit"`
	ScaleMemoryLimit string `json:"scale_memory_limit"`
	CreatedAt        string `json:"created_at"`
}

func (s *service) listJobs(ctx context.Context, args map[string]any) (map[string]any, error) {
	projectID := args["project_id"].(string)

	var page struct {
		Jobs []job `json:"jobs"`
	}
	url := fmt.Sprintf("%s/projects/%s/jobs", s.base, projectID)
	if err := s.client.GetJSON(ctx, url, nil, &page); err != nil {
		return nil, err
	}

	jobs := make([]map[string]any, 0, len(page.Jobs))
	for _, j := range page.Jobs {
		jobs = append(jobs, map[string]any{
			"name":       j.Name,
			"image":      j.ImageReference,
			"cpu":        j.ScaleCPULimit,
			"memory":     j.ScaleMemoryLimit,
			"created_at": j.CreatedAt,
		})
	}
	return map[string]any{"jobs": jobs, "count": len(jobs)}, nil
}

type jobRun struct {
	Name          string `json:"name"`
	JobName       string `json:"job_name"`
	Status        string `json:"status"`
	StatusDetails struct {
		Succeeded      int    `json:"succeeded"`
		Failed         int    `json:"failed"`
		Pending        int    `json:"pending"`
		Running        int    `json:"running"`
		StartTime      string `json:"start_time"`
		CompletionTime string `json:"completion_time"`
	} `json:"status_details"`
}

func (s *service) createJobRun(ctx context.Context, args map[string]any) (map[string]any, error) {
	projectID := args["project_id"].(string)
	jobName := args["job_name"].(string)

	payload := map[string]any{
		"job_name":         jobName,
		"scale_array_spec": args["array_indices"],
	}

	var run jobRun
	url := fmt.Sprintf("%s/projects/%s/job_runs", s.base, projectID)
	if err := s.client.PostJSON(ctx, url, payload, &run); err != nil {
		return nil, err
	}

	return map[string]any{
		"success":      true,
		"job_run_name": run.Name,
		"status":       run.Status,
		"message":      fmt.Sprintf("Job %q has been triggered. Use get_job_run_status to check progress.", jobName),
	}, nil
}

func (s *service) getJobRun(ctx context.Context, args map[string]any) (map[string]any, error) {
	projectID := args["project_id"].(string)
	runName := args["job_run_name"].(string)

	var run jobRun
	url := fmt.Sprintf("%s/projects/%s/job_runs/%s", s.base, projectID, runName)
	if err := s.client.GetJSON(ctx, url, nil, &run); err != nil {
		return nil, err
	}

	return map[string]any{
		"job_run_name": run.Name,
		"job_name":     run.JobName,
		"status":       run.Status,
		"instances": map[string]any{
			"succeeded": run.StatusDetails.Succeeded,
			"failed":    run.StatusDetails.Failed,
			"pending":   run.StatusDetails.Pending,
			"running":   run.StatusDetails.Running,
		},
		"started_at":   run.StatusDetails.StartTime,
		"completed_at": run.StatusDetails.CompletionTime,
	}, nil
}
