// Package ckan talks to CKAN-compatible open-data portals: dataset
// metadata via the package_show action and resource file downloads.
package ckan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Tag is a dataset keyword.
type Tag struct {
	Name string `json:"name"`
}

// Extra is one entry of the free-form extras list where CKAN portals
// park DCAT fields.
type Extra struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Organization is the publishing body.
type Organization struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// ByteSize tolerates the size values portals emit: numbers, numeric
// strings, empty strings, null. Anything unparsable reads as zero.
type ByteSize int64

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*b = 0
		return nil
	}
	*b = ByteSize(f)
	return nil
}

// Resource is one distribution (file) of a dataset.
type Resource struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Format   string   `json:"format"`
	Mimetype string   `json:"mimetype"`
	License  string   `json:"license"`
	Size     ByteSize `json:"size"`
	URL      string   `json:"url"`
}

// Dataset is the package_show result, reduced to the fields the
// validators read.
type Dataset struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Notes        string        `json:"notes"`
	LicenseID    string        `json:"license_id"`
	LicenseTitle string        `json:"license_title"`
	Issued       string        `json:"issued"`
	Modified     string        `json:"modified"`
	Organization *Organization `json:"organization"`
	Tags         []Tag         `json:"tags"`
	Extras       []Extra       `json:"extras"`
	Resources    []Resource    `json:"resources"`
}

// Extra returns the trimmed value of an extras entry, or "" when the
// key is absent.
func (d *Dataset) Extra(key string) string {
	for _, e := range d.Extras {
		if e.Key == key {
			return strings.TrimSpace(e.Value)
		}
	}
	return ""
}

// apiError is the CKAN error envelope body.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"__type"`
}

// showResponse is the CKAN action envelope.
type showResponse struct {
	Success bool            `json:"success"`
	Error   *apiError       `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// Client fetches datasets and files from a CKAN portal.
type Client struct {
	http *http.Client
}

// NewClient returns a portal client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// FetchDataset calls package_show on the portal and returns the decoded
// dataset plus the raw result mapping for report scratch space.
func (c *Client) FetchDataset(ctx context.Context, portalURL, id string) (*Dataset, map[string]any, error) {
	base := strings.TrimRight(portalURL, "/")
	endpoint := fmt.Sprintf("%s/api/3/action/package_show?id=%s", base, url.QueryEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building package_show request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching dataset %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, fmt.Errorf("dataset %s not found on %s", id, base)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("portal returned HTTP %d for dataset %s", resp.StatusCode, id)
	}

	var envelope showResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, nil, fmt.Errorf("decoding package_show response: %w", err)
	}
	if !envelope.Success {
		msg := "unknown error"
		if envelope.Error != nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
		return nil, nil, fmt.Errorf("portal rejected package_show: %s", msg)
	}

	var ds Dataset
	if err := json.Unmarshal(envelope.Result, &ds); err != nil {
		return nil, nil, fmt.Errorf("decoding dataset %s: %w", id, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(envelope.Result, &raw); err != nil {
		return nil, nil, fmt.Errorf("decoding dataset %s: %w", id, err)
	}
	return &ds, raw, nil
}

// DownloadResource streams a resource URL into a temp file and returns
// its path. The caller owns deletion.
func (c *Client) DownloadResource(ctx context.Context, resourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", resourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download of %s returned HTTP %d", resourceURL, resp.StatusCode)
	}

	out, err := os.CreateTemp("", "odq-download-*.csv")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("writing download to disk: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("closing download: %w", err)
	}
	return out.Name(), nil
}

// FirstCSVResource picks the first resource that looks like a CSV file:
// declared format, mimetype, or a .csv URL suffix.
func FirstCSVResource(ds *Dataset) (Resource, bool) {
	for _, res := range ds.Resources {
		switch {
		case strings.EqualFold(res.Format, "csv"),
			strings.Contains(strings.ToLower(res.Mimetype), "csv"),
			strings.HasSuffix(strings.ToLower(res.URL), ".csv"):
			return res, true
		}
	}
	return Resource{}, false
}

// HeadOrGet probes a URL: HEAD first, retrying once with GET when the
// server rejects HEAD. Some portals serve files through handlers that
// only implement GET.
func (c *Client) HeadOrGet(ctx context.Context, rawURL string) (int, error) {
	status, err := c.probe(ctx, http.MethodHead, rawURL)
	if err == nil && status >= 400 {
		return c.probe(ctx, http.MethodGet, rawURL)
	}
	return status, err
}

func (c *Client) probe(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building %s request: %w", method, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	// Drain a little so keep-alive connections can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	resp.Body.Close()
	return resp.StatusCode, nil
}
