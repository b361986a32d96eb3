// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid https", "https://example.com", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with port", "http://example.com:8080", []string{"http"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err: %v", v.Err())
		})
	}
}

func TestValidator_StreamURL(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"playlist", "http://host:8888/screen/index.m3u8", false},
		{"https", "https://host/live/index.m3u8", false},
		{"empty", "", true},
		{"rtsp", "rtsp://host/screen", true},
		{"no host", "http:///index.m3u8", true},
		{"root path", "http://host:8888/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.StreamURL("stream.url", tt.value)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err: %v", v.Err())
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{":8090", false},
		{"127.0.0.1:8090", false},
		{"[::1]:8090", false},
		{"", true},
		{"8090", true},
		{":http", true},
		{":70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			v := New()
			v.ListenAddr("api.listenAddr", tt.addr)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err: %v", v.Err())
		})
	}
}

func TestValidator_Numbers(t *testing.T) {
	v := New()
	v.Port("p", 8080)
	v.Range("r", 5, 0, 10)
	v.FloatRange("f", 0.5, 0, 1)
	v.Positive("pos", 1)
	v.NonNegative("nn", 0)
	v.MinDuration("d", time.Second, 100*time.Millisecond)
	require.True(t, v.IsValid(), "err: %v", v.Err())

	v.Port("p", 0)
	v.Range("r", 11, 0, 10)
	v.FloatRange("f", 1.5, 0, 1)
	v.Positive("pos", 0)
	v.NonNegative("nn", -1)
	v.MinDuration("d", time.Millisecond, 100*time.Millisecond)
	assert.Len(t, v.Errors(), 6)
}

func TestValidator_OneOfAndNotEmpty(t *testing.T) {
	v := New()
	v.OneOf("exporter", "grpc", []string{"grpc", "http"})
	v.NotEmpty("name", "x")
	require.True(t, v.IsValid())

	v.OneOf("exporter", "zipkin", []string{"grpc", "http"})
	v.NotEmpty("name", "   ")
	assert.Len(t, v.Errors(), 2)
}

func TestValidator_Directory(t *testing.T) {
	root := t.TempDir()

	v := New()
	created := filepath.Join(root, "a", "b")
	v.Directory("dataDir", created, false)
	require.True(t, v.IsValid(), "err: %v", v.Err())
	info, err := os.Stat(created)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	v = New()
	v.Directory("dataDir", filepath.Join(root, "missing"), true)
	assert.False(t, v.IsValid())

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	v = New()
	v.Directory("dataDir", file, false)
	assert.False(t, v.IsValid())

	v = New()
	v.Directory("dataDir", root+"/../etc", false)
	assert.False(t, v.IsValid())
}

func TestValidationError_Aggregates(t *testing.T) {
	v := New()
	assert.NoError(t, v.Err())

	v.AddError("a", "bad", 1)
	v.AddError("b", "worse", 2)
	err := v.Err()
	require.Error(t, err)

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors(), 2)
	assert.Equal(t, "validation failed for a: bad; validation failed for b: worse", err.Error())

	// Err returns a snapshot
	v.AddError("c", "later", 3)
	assert.Len(t, verr.Errors(), 2)
}
