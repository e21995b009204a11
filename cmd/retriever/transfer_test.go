package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransferData_Inline(t *testing.T) {
	params, err := parseTransferData("class: s2, dataset:s2s, date:2015-01-01, target:test")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"class":   "s2",
		"dataset": "s2s",
		"date":    "2015-01-01",
		"target":  "test",
	}, params)
}

func TestParseTransferData_InlineMalformed(t *testing.T) {
	_, err := parseTransferData("class:s2,dataset")
	assert.Error(t, err)
}

func TestParseTransferData_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfer_data.txt")
	contents := "class: s2\ndataset: s2s\ntarget: test\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	params, err := parseTransferData(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"class":   "s2",
		"dataset": "s2s",
		"target":  "test",
	}, params)
}

func TestParseTransferData_FileNotFound(t *testing.T) {
	_, err := parseTransferData(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
