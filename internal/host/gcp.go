package host

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

const (
	gcpMetadataBase   = "http://metadata.google.internal/computeMetadata/v1"
	gcpMetadataFlavor = "Google"
)

// GCPProvider implements host id resolution for GCE instances
type GCPProvider struct {
	client      *http.Client
	metadataURL string
}

// NewGCPProvider creates a new GCP provider
func NewGCPProvider(client *http.Client) *GCPProvider {
	return &GCPProvider{
		client:      client,
		metadataURL: gcpMetadataBase,
	}
}

// NewGCPProviderWithURL creates a GCP provider with a custom metadata URL (for testing)
func NewGCPProviderWithURL(client *http.Client, metadataURL string) *GCPProvider {
	return &GCPProvider{
		client:      client,
		metadataURL: metadataURL,
	}
}

// Name returns the provider name
func (p *GCPProvider) Name() Provider {
	return ProviderGCP
}

// Detect checks if running on GCP by querying the metadata server
func (p *GCPProvider) Detect(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.metadataURL+"/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", gcpMetadataFlavor)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// GCP metadata server returns 200 and Metadata-Flavor: Google header
	return resp.StatusCode == http.StatusOK &&
		resp.Header.Get("Metadata-Flavor") == gcpMetadataFlavor
}

// Resolve retrieves host information from GCE metadata
func (p *GCPProvider) Resolve(ctx context.Context) (*Info, error) {
	instanceName, err := p.getMetadata(ctx, "/instance/name")
	if err != nil {
		return nil, fmt.Errorf("failed to get instance name: %w", err)
	}

	projectID, err := p.getMetadata(ctx, "/project/project-id")
	if err != nil {
		return nil, fmt.Errorf("failed to get project-id: %w", err)
	}

	zone, err := p.getMetadata(ctx, "/instance/zone")
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}

	// Zone format: projects/<project-number>/zones/<zone>
	zoneName := path.Base(zone)

	// Host ID: gcp/<project-id>/<zone>/<instance-name>
	hostID := fmt.Sprintf("gcp/%s/%s/%s", projectID, zoneName, instanceName)

	return &Info{
		HostID:   hostID,
		Hostname: instanceName,
		Provider: ProviderGCP,
		Zone:     zoneName,
	}, nil
}

// getMetadata fetches a value from the GCP metadata server
func (p *GCPProvider) getMetadata(ctx context.Context, path string) (string, error) {
	url := p.metadataURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Metadata-Flavor", gcpMetadataFlavor)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}
