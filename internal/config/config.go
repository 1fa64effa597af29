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

// Package config loads the daemon configuration from
// $HOME/.config/shepherd/config.<ext> and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/projectshepherd/shepherd/internal/fileformat"
	"github.com/projectshepherd/shepherd/internal/ssh"
)

// Defaults for optional settings.
const (
	DefaultBranch       = "main"
	DefaultLoopInterval = 300 // seconds
	DefaultRetryDelay   = 200 // milliseconds
)

// configDir is the per-user configuration location under $HOME/.config.
const configDir = ".config/shepherd"

// Environment overrides, applied after the file is decoded.
const (
	EnvGitAuthMethod = "GIT_AUTH_METHOD"
	EnvGitSSHKey     = "GIT_SSH_KEY"
	EnvGitToken      = "GIT_TOKEN"
)

// Config is the single startup document driving the daemon.
type Config struct {
	RancherConfigPath string   `json:"rancher_config_path"`
	EndpointURL       string   `json:"endpoint_url"`
	Token             string   `json:"token"`
	Insecure          bool     `json:"insecure,omitempty"`
	FileFormat        string   `json:"file_format"`
	RemoteGitURL      string   `json:"remote_git_url"`
	Branch            string   `json:"branch,omitempty"`
	ClusterNames      []string `json:"cluster_names"`
	LoopIntervalSecs  int      `json:"loop_interval,omitempty"`
	RetryDelayMillis  int      `json:"retry_delay,omitempty"`
	AuthMethod        string   `json:"auth_method"`
	SSHKeyPath        string   `json:"ssh_key_path,omitempty"`
	GitToken          string   `json:"git_token,omitempty"`
}

// Load reads the config document from the default location, trying each
// supported extension, then applies environment overrides and validates.
func Load() (*Config, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return nil, errors.New("HOME is not set")
	}

	for _, ext := range []string{"yaml", "yml", "json", "toml"} {
		path := filepath.Join(home, configDir, "config."+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	return nil, fmt.Errorf("no config file found under %s", filepath.Join(home, configDir))
}

// LoadFile reads one specific config document.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := fileformat.Decode(path, data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets the environment override Git authentication settings.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvGitAuthMethod); v != "" {
		c.AuthMethod = v
	}
	if v := os.Getenv(EnvGitSSHKey); v != "" {
		c.SSHKeyPath = v
	}
	if v := os.Getenv(EnvGitToken); v != "" {
		c.GitToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.LoopIntervalSecs <= 0 {
		c.LoopIntervalSecs = DefaultLoopInterval
	}
	if c.RetryDelayMillis <= 0 {
		c.RetryDelayMillis = DefaultRetryDelay
	}
}

// Validate checks every required field and the enum-valued ones.
func (c *Config) Validate() error {
	switch {
	case c.RancherConfigPath == "":
		return errors.New("config: rancher_config_path is required")
	case c.EndpointURL == "":
		return errors.New("config: endpoint_url is required")
	case c.Token == "":
		return errors.New("config: token is required")
	case c.RemoteGitURL == "":
		return errors.New("config: remote_git_url is required")
	case len(c.ClusterNames) == 0:
		return errors.New("config: cluster_names must list at least one cluster")
	}
	if _, err := fileformat.Parse(c.FileFormat); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ssh.ParseMethod(c.AuthMethod); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if ssh.Method(c.AuthMethod) == ssh.MethodSSHKey && c.SSHKeyPath == "" {
		return errors.New("config: auth_method ssh_key requires ssh_key_path or GIT_SSH_KEY")
	}
	if ssh.Method(c.AuthMethod) == ssh.MethodHTTPSToken && c.GitToken == "" {
		return errors.New("config: auth_method https_token requires git_token or GIT_TOKEN")
	}
	return nil
}

// Format returns the parsed tree encoding. Call after Validate.
func (c *Config) Format() fileformat.Format {
	f, _ := fileformat.Parse(c.FileFormat)
	return f
}

// Credentials returns the Git credential selection. Call after Validate.
func (c *Config) Credentials() ssh.Credentials {
	return ssh.Credentials{
		Method:  ssh.Method(c.AuthMethod),
		KeyPath: c.SSHKeyPath,
		Token:   c.GitToken,
	}
}

// LoopInterval returns the tick interval.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.LoopIntervalSecs) * time.Second
}

// RetryDelay returns the inter-retry delay.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}
