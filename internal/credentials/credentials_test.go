package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_InlineTakesPrecedence(t *testing.T) {
	inline := Credentials{URL: "https://inline", Key: "k", Email: "e@x.com"}
	c, err := Discover(inline, "")
	require.NoError(t, err)
	assert.Equal(t, inline, c)
}

func TestDiscover_Environment(t *testing.T) {
	t.Setenv("ECMWF_API_URL", "https://env")
	t.Setenv("ECMWF_API_KEY", "envkey")
	t.Setenv("ECMWF_API_EMAIL", "env@x.com")

	c, err := Discover(Credentials{}, "")
	require.NoError(t, err)
	assert.Equal(t, "https://env", c.URL)
}

func TestDiscover_RCFile(t *testing.T) {
	dir := t.TempDir()
	rcPath := filepath.Join(dir, ".ecmwfapirc")
	require.NoError(t, os.WriteFile(rcPath, []byte(`{"url":"https://rc","key":"rckey","email":"rc@x.com"}`), 0o600))
	t.Setenv("HOME", dir)

	c, err := Discover(Credentials{}, "")
	require.NoError(t, err)
	assert.Equal(t, "https://rc", c.URL)
}

func TestDiscover_MissingEverywhereFails(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("ECMWF_API_URL", "")
	t.Setenv("ECMWF_API_KEY", "")
	t.Setenv("ECMWF_API_EMAIL", "")

	_, err := Discover(Credentials{}, "")
	require.Error(t, err)
}
