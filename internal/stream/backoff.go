// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import "time"

// RetryDelay returns base * 2^min(retryCount, capExponent).
func RetryDelay(base time.Duration, retryCount, capExponent int) time.Duration {
	if capExponent < 0 {
		capExponent = 0
	}
	exp := retryCount
	if exp < 0 {
		exp = 0
	}
	if exp > capExponent {
		exp = capExponent
	}
	return base * time.Duration(uint64(1)<<uint(exp))
}
