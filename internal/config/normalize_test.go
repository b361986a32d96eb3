// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStreamURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		path string
		want string
	}{
		{"empty", "", "screen", ""},
		{"blank", "   ", "screen", ""},
		{"tunnel base", "https://abc.trycloudflare.com", "screen", "https://abc.trycloudflare.com/screen/index.m3u8"},
		{"trailing slash", "https://abc.trycloudflare.com/", "screen", "https://abc.trycloudflare.com/screen/index.m3u8"},
		{"already has path", "http://host:8888/screen", "screen", "http://host:8888/screen/index.m3u8"},
		{"path with slash", "http://host:8888/screen/", "screen", "http://host:8888/screen/index.m3u8"},
		{"playlist untouched", "http://host:8888/live/index.m3u8", "screen", "http://host:8888/live/index.m3u8"},
		{"query playlist", "http://host/a.m3u8?token=x", "screen", "http://host/a.m3u8?token=x"},
		{"custom path", "http://host:8888", "/desk/", "http://host:8888/desk/index.m3u8"},
		{"no path", "http://host:8888/cam", "", "http://host:8888/cam/index.m3u8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStreamURL(tt.raw, tt.path))
		})
	}
}
