// Package credentials discovers the (url, key, email) triple the API
// Session needs, trying each tier in order: caller-supplied, environment,
// an on-disk config file (viper-backed), then the ~/.ecmwfapirc JSON
// file. Missing from every tier raises a CredentialError.
package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ecmwf-go/retriever/internal/errs"
)

// Credentials is the discovered (url, key, email) triple.
type Credentials struct {
	URL   string
	Key   string
	Email string
}

func (c Credentials) complete() bool {
	return c.URL != "" && c.Key != "" && c.Email != ""
}

// Discover resolves credentials in precedence order: inline > environment
// > configFilePath (if non-empty) > ~/.ecmwfapirc.
func Discover(inline Credentials, configFilePath string) (Credentials, error) {
	if inline.complete() {
		return inline, nil
	}

	if c, ok := fromEnviron(); ok {
		return c, nil
	}

	if configFilePath != "" {
		if c, ok := fromConfigFile(configFilePath); ok {
			return c, nil
		}
	}

	if c, ok := fromRCFile(); ok {
		return c, nil
	}

	return Credentials{}, errs.NewCredentialError("could not retrieve API key from any source (inline, environment, config file, or ~/.ecmwfapirc)", nil)
}

func fromEnviron() (Credentials, bool) {
	c := Credentials{
		URL:   os.Getenv("ECMWF_API_URL"),
		Key:   os.Getenv("ECMWF_API_KEY"),
		Email: os.Getenv("ECMWF_API_EMAIL"),
	}
	return c, c.complete()
}

// fromConfigFile reads a viper-backed config file declaring an "api"
// section with url/key/email keys, the Go-native equivalent of the
// original's config.ini [api] section.
func fromConfigFile(path string) (Credentials, bool) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Credentials{}, false
	}
	c := Credentials{
		URL:   v.GetString("api.url"),
		Key:   v.GetString("api.key"),
		Email: v.GetString("api.email"),
	}
	return c, c.complete()
}

func fromRCFile() (Credentials, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Credentials{}, false
	}
	path := filepath.Join(home, ".ecmwfapirc")

	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, false
	}

	var raw struct {
		URL   string `json:"url"`
		Key   string `json:"key"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Credentials{}, false
	}

	c := Credentials{URL: raw.URL, Key: raw.Key, Email: raw.Email}
	return c, c.complete()
}
