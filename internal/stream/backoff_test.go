// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		count int
		cap   int
		want  time.Duration
	}{
		{count: 0, cap: 5, want: time.Second},
		{count: 1, cap: 5, want: 2 * time.Second},
		{count: 4, cap: 5, want: 16 * time.Second},
		{count: 5, cap: 5, want: 32 * time.Second},
		{count: 50, cap: 5, want: 32 * time.Second},
		{count: -3, cap: 5, want: time.Second},
		{count: 3, cap: 0, want: time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(time.Second, tt.count, tt.cap), "count=%d cap=%d", tt.count, tt.cap)
	}
}

func TestParseErrorKind(t *testing.T) {
	k, err := ParseErrorKind(" Network ")
	assert.NoError(t, err)
	assert.Equal(t, ErrorNetwork, k)

	k, err = ParseErrorKind("")
	assert.NoError(t, err)
	assert.Equal(t, ErrorOther, k)

	_, err = ParseErrorKind("bogus")
	assert.Error(t, err)
}

func TestMailbox_PostAfterClose(t *testing.T) {
	m := newMailbox()
	ran := 0
	assert.True(t, m.post(func() { ran++ }))
	assert.True(t, m.post(func() { ran++ }))
	for _, fn := range m.drain() {
		fn()
	}
	assert.Equal(t, 2, ran)

	m.close()
	assert.False(t, m.post(func() { ran++ }))
	assert.Empty(t, m.drain())
}
