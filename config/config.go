// Package config loads the JSON configuration file the feather CLI and its
// embedders use to describe providers, their models, and the selection
// policy, located by walking upward from the current working directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/featherlabs/feather/provider"
)

// DefaultFileName is the config file name Load searches for.
const DefaultFileName = "feather.json"

// ModelConfig describes one model a provider serves.
type ModelConfig struct {
	Name         string   `json:"name"`
	Aliases      []string `json:"aliases,omitempty"`
	InputPer1K   float64  `json:"inputPer1K"`
	OutputPer1K  float64  `json:"outputPer1K"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ProviderConfig describes one configured provider entry.
type ProviderConfig struct {
	APIKeyEnv string        `json:"apiKeyEnv"`
	BaseURL   string        `json:"baseUrl,omitempty"`
	Models    []ModelConfig `json:"models"`
}

// File is the on-disk JSON config shape.
type File struct {
	Policy    string                    `json:"policy"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ErrNotFound is returned when no config file is found walking upward from
// the starting directory.
var ErrNotFound = errors.New("config: no config file found")

// Load walks upward from startDir (the current working directory when
// empty) looking for DefaultFileName, parses the first one found, and
// returns it.
func Load(startDir string) (File, error) {
	path, err := Find(startDir)
	if err != nil {
		return File{}, err
	}
	return Parse(path)
}

// Find walks upward from startDir (cwd when empty) until it locates
// DefaultFileName or reaches the filesystem root.
func Find(startDir string) (string, error) {
	dir := startDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// Parse reads and decodes the config file at path.
func Parse(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return f, nil
}

// SelectionPolicy maps the config file's policy name to a provider.Policy,
// defaulting to First when empty or unrecognized.
func (f File) SelectionPolicy() provider.Policy {
	switch f.Policy {
	case "roundrobin":
		return provider.RoundRobin
	case "cheapest":
		return provider.Cheapest
	default:
		return provider.First
	}
}

// ResolvedProvider is a ProviderConfig with its API key read from the
// environment and its models decoded into provider.ModelSpec.
type ResolvedProvider struct {
	ID      string
	APIKey  string
	BaseURL string
	Models  []provider.ModelSpec
}

// ResolveProviders reads each configured provider's API key from the
// environment, omitting any provider whose key env var is unset or empty
// per spec.
func (f File) ResolveProviders() []ResolvedProvider {
	var out []ResolvedProvider
	for id, p := range f.Providers {
		keyEnv := p.APIKeyEnv
		if keyEnv == "" {
			keyEnv = fmt.Sprintf("%s_API_KEY", id)
		}
		apiKey := os.Getenv(keyEnv)
		if apiKey == "" {
			continue
		}
		models := make([]provider.ModelSpec, 0, len(p.Models))
		for _, m := range p.Models {
			models = append(models, provider.ModelSpec{
				Name:        m.Name,
				Aliases:     m.Aliases,
				InputPer1K:  m.InputPer1K,
				OutputPer1K: m.OutputPer1K,
			})
		}
		out = append(out, ResolvedProvider{ID: id, APIKey: apiKey, BaseURL: p.BaseURL, Models: models})
	}
	return out
}
