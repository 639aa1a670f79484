package ibmcloud

import (
	"context"
	"net/url"
	"strconv"
)

// DefaultResourceControllerURL is the global (region-less) IBM Cloud
// resource controller endpoint used to enumerate provisioned service
// instances.
const DefaultResourceControllerURL = "https://resource-controller.cloud.ibm.com/v2"

// ResourceInstance is the subset of a resource controller instance record
// the toolkit cares about.
type ResourceInstance struct {
	ID             string `json:"id"`
	GUID           string `json:"guid"`
	Name           string `json:"name"`
	RegionID       string `json:"region_id"`
	State          string `json:"state"`
	ResourceID     string `json:"resource_id"`
	ResourcePlanID string `json:"resource_plan_id"`
	CreatedAt      string `json:"created_at"`
	DashboardURL   string `json:"dashboard_url"`
}

type resourceInstancesPage struct {
	Resources []ResourceInstance `json:"resources"`
}

// ListResourceInstances returns provisioned instances of one resource kind
// (e.g. "logs", "sysdig-monitor", "databases-for-postgresql").
func (c *Client) ListResourceInstances(ctx context.Context, baseURL, resourceID string, limit int) ([]ResourceInstance, error) {
	if baseURL == "" {
		baseURL = DefaultResourceControllerURL
	}
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{
		"resource_id": {resourceID},
		"limit":       {strconv.Itoa(limit)},
	}
	var page resourceInstancesPage
	if err := c.GetJSON(ctx, baseURL+"/resource_instances", query, &page); err != nil {
		return nil, err
	}
	return page.Resources, nil
}
