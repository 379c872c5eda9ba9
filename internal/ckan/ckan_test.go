package ckan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packageShowBody = `{
  "success": true,
  "result": {
    "id": "abc-123",
    "name": "qualita-aria-2023",
    "title": "Qualità dell'aria 2023",
    "notes": "Misurazioni orarie delle centraline regionali.",
    "license_id": "cc-by",
    "organization": {"name": "arpa", "title": "ARPA Lombardia"},
    "tags": [{"name": "ambiente"}, {"name": "aria"}],
    "extras": [
      {"key": "identifier", "value": "r_lombar:abc-123"},
      {"key": "frequency", "value": " ANNUAL "}
    ],
    "resources": [
      {"id": "res-1", "name": "dati", "format": "CSV", "mimetype": "text/csv",
       "size": "2048", "url": "https://example.org/d.csv"}
    ]
  }
}`

func newPortal(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDataset(t *testing.T) {
	srv := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/action/package_show", r.URL.Path)
		assert.Equal(t, "abc-123", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(packageShowBody))
	})

	c := NewClient(5 * time.Second)
	ds, raw, err := c.FetchDataset(context.Background(), srv.URL+"/", "abc-123")
	require.NoError(t, err)

	assert.Equal(t, "Qualità dell'aria 2023", ds.Title)
	assert.Equal(t, "cc-by", ds.LicenseID)
	require.NotNil(t, ds.Organization)
	assert.Equal(t, "ARPA Lombardia", ds.Organization.Title)
	assert.Len(t, ds.Tags, 2)
	assert.Equal(t, "ANNUAL", ds.Extra("frequency"), "extras values are trimmed")
	assert.Empty(t, ds.Extra("no_such_key"))

	require.Len(t, ds.Resources, 1)
	assert.Equal(t, ByteSize(2048), ds.Resources[0].Size)

	assert.Equal(t, "qualita-aria-2023", raw["name"])
}

func TestFetchDataset_NotFound(t *testing.T) {
	srv := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	})

	c := NewClient(5 * time.Second)
	_, _, err := c.FetchDataset(context.Background(), srv.URL, "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFetchDataset_EnvelopeFailure(t *testing.T) {
	srv := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": {"message": "Access denied"}}`))
	})

	c := NewClient(5 * time.Second)
	_, _, err := c.FetchDataset(context.Background(), srv.URL, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access denied")
}

func TestByteSize_Unmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want ByteSize
	}{
		{`{"size": 123}`, 123},
		{`{"size": "1024"}`, 1024},
		{`{"size": "12.5"}`, 12},
		{`{"size": ""}`, 0},
		{`{"size": null}`, 0},
		{`{"size": "unknown"}`, 0},
	}

	for _, tt := range tests {
		var res Resource
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &res), "raw %s", tt.raw)
		assert.Equal(t, tt.want, res.Size, "raw %s", tt.raw)
	}
}

func TestDownloadResource(t *testing.T) {
	srv := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a,b\n1,2\n"))
	})

	c := NewClient(5 * time.Second)
	path, err := c.DownloadResource(context.Background(), srv.URL+"/file.csv")
	require.NoError(t, err)
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestDownloadResource_HTTPError(t *testing.T) {
	srv := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})

	c := NewClient(5 * time.Second)
	_, err := c.DownloadResource(context.Background(), srv.URL+"/file.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
}

func TestFirstCSVResource(t *testing.T) {
	tests := []struct {
		name string
		res  []Resource
		want string
		ok   bool
	}{
		{"by format", []Resource{{ID: "a", Format: "csv"}}, "a", true},
		{"by mimetype", []Resource{{ID: "b", Format: "ZIP"}, {ID: "c", Mimetype: "text/csv"}}, "c", true},
		{"by url suffix", []Resource{{ID: "d", URL: "https://x/y/DATA.CSV"}}, "d", true},
		{"none", []Resource{{ID: "e", Format: "JSON"}}, "", false},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := FirstCSVResource(&Dataset{Resources: tt.res})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, res.ID)
		})
	}
}

func TestHeadOrGet(t *testing.T) {
	var sawGet bool
	srv := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sawGet = true
		w.Write([]byte("ok"))
	})

	c := NewClient(5 * time.Second)
	status, err := c.HeadOrGet(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, sawGet, "should fall back to GET when HEAD is rejected")
}
