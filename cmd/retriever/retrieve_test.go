package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsToMap(t *testing.T) {
	params, err := paramsToMap([]string{"dataset:s2s", "date:2015-01-01"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dataset": "s2s", "date": "2015-01-01"}, params)
}

func TestParamsToMap_InvalidPair(t *testing.T) {
	_, err := paramsToMap([]string{"dataset"})
	assert.Error(t, err)
}

func TestSplitKV(t *testing.T) {
	key, value, ok := splitKV("step:0/to/1104/by/24")
	require.True(t, ok)
	assert.Equal(t, "step", key)
	assert.Equal(t, "0/to/1104/by/24", value)
}

func TestSplitKV_NoColon(t *testing.T) {
	_, _, ok := splitKV("malformed")
	assert.False(t, ok)
}
