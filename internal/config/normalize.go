// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "strings"

// NormalizeStreamURL turns a tunnel or server base URL into a playlist URL.
// URLs that already name an .m3u8 are returned trimmed. Otherwise the stream
// path is appended unless the URL already ends with it, followed by /index.m3u8.
func NormalizeStreamURL(raw, streamPath string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if strings.Contains(u, ".m3u8") {
		return u
	}
	u = strings.TrimRight(u, "/")
	if p := strings.Trim(streamPath, "/"); p != "" && !strings.HasSuffix(u, "/"+p) {
		u += "/" + p
	}
	return u + "/index.m3u8"
}
