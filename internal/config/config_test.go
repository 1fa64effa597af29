/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 Project Shepherd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectshepherd/shepherd/internal/fileformat"
	"github.com/projectshepherd/shepherd/internal/ssh"
)

const minimalYAML = `rancher_config_path: /work/checkout
endpoint_url: https://rancher.example.com
token: token-abc
file_format: yaml
remote_git_url: https://git.example.com/org/state.git
cluster_names:
  - c-local
auth_method: https_token
git_token: git-tok
`

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "config.yaml", minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultBranch, cfg.Branch)
	assert.Equal(t, 300*time.Second, cfg.LoopInterval())
	assert.Equal(t, 200*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, fileformat.YAML, cfg.Format())
	assert.Equal(t, ssh.MethodHTTPSToken, cfg.Credentials().Method)
	assert.Equal(t, "git-tok", cfg.Credentials().Token)
}

func TestLoadFileTOML(t *testing.T) {
	contents := `rancher_config_path = "/work/checkout"
endpoint_url = "https://rancher.example.com"
token = "token-abc"
file_format = "json"
remote_git_url = "https://git.example.com/org/state.git"
cluster_names = ["c-local", "c-prod"]
auth_method = "https_token"
git_token = "git-tok"
branch = "state"
loop_interval = 60
`
	cfg, err := LoadFile(writeConfig(t, "config.toml", contents))
	require.NoError(t, err)

	assert.Equal(t, "state", cfg.Branch)
	assert.Equal(t, time.Minute, cfg.LoopInterval())
	assert.Equal(t, []string{"c-local", "c-prod"}, cfg.ClusterNames)
	assert.Equal(t, fileformat.JSON, cfg.Format())
}

func TestEnvironmentOverridesGitAuth(t *testing.T) {
	t.Setenv(EnvGitAuthMethod, "https_token")
	t.Setenv(EnvGitToken, "env-tok")

	// The file selects ssh_agent; the environment flips it back.
	contents := strings.ReplaceAll(minimalYAML, "auth_method: https_token", "auth_method: ssh_agent")
	cfg, err := LoadFile(writeConfig(t, "config.yaml", contents))
	require.NoError(t, err)

	assert.Equal(t, "https_token", cfg.AuthMethod)
	assert.Equal(t, "env-tok", cfg.GitToken)
}

func TestValidateRequiredFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing endpoint", func(c *Config) { c.EndpointURL = "" }, "endpoint_url"},
		{"missing token", func(c *Config) { c.Token = "" }, "token"},
		{"missing clusters", func(c *Config) { c.ClusterNames = nil }, "cluster_names"},
		{"bad format", func(c *Config) { c.FileFormat = "ini" }, "file format"},
		{"bad auth method", func(c *Config) { c.AuthMethod = "password" }, "auth method"},
		{"ssh key without path", func(c *Config) { c.AuthMethod = "ssh_key"; c.SSHKeyPath = "" }, "ssh_key"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				RancherConfigPath: "/work",
				EndpointURL:       "https://rancher.example.com",
				Token:             "tok",
				FileFormat:        "yaml",
				RemoteGitURL:      "https://git.example.com/org/state.git",
				ClusterNames:      []string{"c-local"},
				AuthMethod:        "https_token",
				GitToken:          "git-tok",
			}
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFindsFileUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "shepherd")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(minimalYAML), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://rancher.example.com", cfg.EndpointURL)
}

func TestLoadFailsWithoutHome(t *testing.T) {
	t.Setenv("HOME", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFailsWithoutConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load()
	assert.Error(t, err)
}
