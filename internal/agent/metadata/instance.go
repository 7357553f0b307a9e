package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cloud provider names as they appear in registration payloads.
const (
	ProviderAWS          = "AWS"
	ProviderAzure        = "Azure"
	ProviderGCP          = "GCP"
	ProviderDigitalOcean = "DigitalOcean"
)

// InstanceMetadata describes the cloud instance the agent runs on. All
// fields stay nil outside a recognized cloud environment.
type InstanceMetadata struct {
	InstanceID    *string `json:"instance_id"`
	CloudProvider *string `json:"cloud_provider"`
	Region        *string `json:"region"`
	InstanceType  *string `json:"instance_type"`
}

const probeTimeout = 500 * time.Millisecond

// detector probes the link-local metadata services. The base URLs are
// fields so tests can point them at local servers.
type detector struct {
	client   *http.Client
	imdsBase string // AWS, Azure and DigitalOcean share the link-local IP
	gcpBase  string
}

func newDetector() *detector {
	return &detector{
		client:   &http.Client{Timeout: probeTimeout},
		imdsBase: "http://169.254.169.254",
		gcpBase:  "http://metadata.google.internal",
	}
}

// Detect probes AWS, Azure, GCP and DigitalOcean in that order. Every
// probe times out after 500ms so a bare-metal start stays fast.
func Detect(ctx context.Context) InstanceMetadata {
	return newDetector().detect(ctx)
}

func (d *detector) detect(ctx context.Context) InstanceMetadata {
	if meta, ok := d.fetchAWS(ctx); ok {
		return meta
	}
	if meta, ok := d.fetchAzure(ctx); ok {
		return meta
	}
	if meta, ok := d.fetchGCP(ctx); ok {
		return meta
	}
	if meta, ok := d.fetchDigitalOcean(ctx); ok {
		return meta
	}

	// not in a recognized cloud environment
	return InstanceMetadata{}
}

// IMDSv2 first: a PUT for the session token, then token-authenticated
// reads. A reachable endpoing that refuses the token falls back to v1.
func (d *detector) fetchAWS(ctx context.Context) (InstanceMetadata, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.imdsBase+"/latest/api/token", nil)
	if err != nil {
		return InstanceMetadata{}, false
	}
	req.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", "21600")

	resp, err := d.client.Do(req)
	if err != nil {
		return InstanceMetadata{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return d.fetchAWSv1(ctx)
	}

	tokenBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return InstanceMetadata{}, false
	}
	headers := map[string]string{"X-aws-ec2-metadata-token": string(tokenBytes)}

	instanceID, ok := d.getText(ctx, d.imdsBase+"/latest/meta-data/instance-id", headers)
	if !ok {
		return InstanceMetadata{}, false
	}

	meta := InstanceMetadata{
		InstanceID:    &instanceID,
		CloudProvider: strPtr(ProviderAWS),
	}
	if instanceType, ok := d.getText(ctx, d.imdsBase+"/latest/meta-data/instance-type", headers); ok {
		meta.InstanceType = &instanceType
	}
	if region, ok := d.getText(ctx, d.imdsBase+"/latest/meta-data/placement/region", headers); ok {
		meta.Region = &region
	}

	return meta, true
}

func (d *detector) fetchAWSv1(ctx context.Context) (InstanceMetadata, bool) {
	instanceID, ok := d.getText(ctx, d.imdsBase+"/latest/meta-data/instance-id", nil)
	if !ok {
		return InstanceMetadata{}, false
	}

	return InstanceMetadata{
		InstanceID:    &instanceID,
		CloudProvider: strPtr(ProviderAWS),
	}, true
}

func (d *detector) fetchAzure(ctx context.Context) (InstanceMetadata, bool) {
	var payload struct {
		Compute struct {
			VMID     string  `json:"vmId"`
			Location *string `json:"location"`
			VMSize   *string `json:"vmSize"`
		} `json:"compute"`
	}

	url := d.imdsBase + "/metadata/instance?api-version=2021-02-01"
	if !d.getJSON(ctx, url, map[string]string{"Metadata": "true"}, &payload) {
		return InstanceMetadata{}, false
	}
	if payload.Compute.VMID == "" {
		return InstanceMetadata{}, false
	}

	return InstanceMetadata{
		InstanceID:    &payload.Compute.VMID,
		CloudProvider: strPtr(ProviderAzure),
		Region:        payload.Compute.Location,
		InstanceType:  payload.Compute.VMSize,
	}, true
}

func (d *detector) fetchGCP(ctx context.Context) (InstanceMetadata, bool) {
	headers := map[string]string{"Metadata-Flavor": "Google"}

	instanceID, ok := d.getText(ctx, d.gcpBase+"/computeMetadata/v1/instance/id", headers)
	if !ok {
		return InstanceMetadata{}, false
	}

	meta := InstanceMetadata{
		InstanceID:    &instanceID,
		CloudProvider: strPtr(ProviderGCP),
	}
	if zone, ok := d.getText(ctx, d.gcpBase+"/computeMetadata/v1/instance/zone", headers); ok {
		if region := regionFromZone(zone); region != "" {
			meta.Region = &region
		}
	}

	return meta, true
}

func (d *detector) fetchDigitalOcean(ctx context.Context) (InstanceMetadata, bool) {
	var droplet struct {
		DropletID uint64  `json:"droplet_id"`
		Region    *string `json:"region"`
	}

	if !d.getJSON(ctx, d.imdsBase+"/metadata/v1.json", nil, &droplet) {
		return InstanceMetadata{}, false
	}
	if droplet.DropletID == 0 {
		return InstanceMetadata{}, false
	}

	id := strconv.FormatUint(droplet.DropletID, 10)
	return InstanceMetadata{
		InstanceID:    &id,
		CloudProvider: strPtr(ProviderDigitalOcean),
		Region:        droplet.Region,
	}, true
}

// "projects/123/zones/us-central1-a" -> "us-central1"
func regionFromZone(zone string) string {
	parts := strings.Split(zone, "/")
	last := parts[len(parts)-1]

	idx := strings.LastIndex(last, "-")
	if idx <= 0 {
		return ""
	}
	return last[:idx]
}

func (d *detector) getText(ctx context.Context, url string, headers map[string]string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}
	return string(body), true
}

func (d *detector) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) bool {
	body, ok := d.getText(ctx, url, headers)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(body), out) == nil
}

func strPtr(s string) *string {
	return &s
}
