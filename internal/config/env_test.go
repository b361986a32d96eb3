// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("T_STR", "value")
	t.Setenv("T_EMPTY", "")
	t.Setenv("T_INT", "42")
	t.Setenv("T_BADINT", "forty")
	t.Setenv("T_DUR", "1500ms")
	t.Setenv("T_BADDUR", "soon")
	t.Setenv("T_FLOAT", "0.25")
	t.Setenv("T_YES", "Yes")
	t.Setenv("T_ZERO", "0")
	t.Setenv("T_BADBOOL", "maybe")

	assert.Equal(t, "value", ParseString("T_STR", "d"))
	assert.Equal(t, "d", ParseString("T_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("T_UNSET_XYZ", "d"))

	assert.Equal(t, 42, ParseInt("T_INT", 1))
	assert.Equal(t, 1, ParseInt("T_BADINT", 1))
	assert.Equal(t, 1, ParseInt("T_EMPTY", 1))

	assert.Equal(t, 1500*time.Millisecond, ParseDuration("T_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("T_BADDUR", time.Second))

	assert.InDelta(t, 0.25, ParseFloat("T_FLOAT", 1), 1e-9)

	assert.True(t, ParseBool("T_YES", false))
	assert.False(t, ParseBool("T_ZERO", true))
	assert.True(t, ParseBool("T_BADBOOL", true))
}

func TestResolveDataDirFromEnv_ExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("REMOTO_DATA", "~/remoto")
	assert.Equal(t, "/home/tester/remoto", ResolveDataDirFromEnv())

	t.Setenv("REMOTO_DATA", "")
	assert.Empty(t, ResolveDataDirFromEnv())
}
