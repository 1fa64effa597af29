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

// Package layout maps domain objects to their deterministic location in the
// working tree and back. Per endpoint the tree is:
//
//	<root>/<sanitized-endpoint>/
//	  roles/<rt-id>.rt.<ext>
//	  <cluster-id>/<cluster-id>.cluster.<ext>
//	  <cluster-id>/<project-id>/<project-id>.project.<ext>
//	  <cluster-id>/<project-id>/<prtb-id>.prtb.<ext>
package layout

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/projectshepherd/shepherd/internal/fileformat"
	"github.com/projectshepherd/shepherd/internal/types"
)

// RolesDir is the per-endpoint directory holding role templates. Role
// templates are endpoint-global, not cluster-scoped.
const RolesDir = "roles"

// File-type discriminators: the double suffix before the format extension.
const (
	suffixCluster      = ".cluster."
	suffixProject      = ".project."
	suffixPRTB         = ".prtb."
	suffixRoleTemplate = ".rt."
)

// SanitizeEndpoint turns a base URL into a directory name: the scheme is
// stripped and path separators become underscores, so
// "https://rancher.example.com/v3" -> "rancher.example.com_v3".
func SanitizeEndpoint(endpoint string) string {
	s := endpoint
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+len("://"):]
	}
	s = strings.TrimSuffix(s, "/")
	return strings.ReplaceAll(s, "/", "_")
}

// Tree renders paths for one endpoint's subtree.
type Tree struct {
	// Root is the working-tree root (the Git checkout).
	Root string
	// Endpoint is the raw endpoint URL; sanitized on use.
	Endpoint string
	// Format decides the file extension for newly written files.
	Format fileformat.Format
}

// Base returns the endpoint subtree root, relative to the repository root.
func (t Tree) Base() string {
	return SanitizeEndpoint(t.Endpoint)
}

// AbsBase returns the endpoint subtree root as a filesystem path.
func (t Tree) AbsBase() string {
	return filepath.Join(t.Root, t.Base())
}

// RoleTemplatePath returns the repo-relative path for a role template.
func (t Tree) RoleTemplatePath(id string) string {
	return path.Join(t.Base(), RolesDir, id+suffixRoleTemplate+t.Format.Ext())
}

// ClusterPath returns the repo-relative path for a cluster record.
func (t Tree) ClusterPath(clusterID string) string {
	return path.Join(t.Base(), clusterID, clusterID+suffixCluster+t.Format.Ext())
}

// ProjectPath returns the repo-relative path for a project record.
func (t Tree) ProjectPath(clusterID, projectID string) string {
	return path.Join(t.Base(), clusterID, projectID, projectID+suffixProject+t.Format.Ext())
}

// PRTBPath returns the repo-relative path for a binding record.
func (t Tree) PRTBPath(clusterID, projectID, id string) string {
	return path.Join(t.Base(), clusterID, projectID, id+suffixPRTB+t.Format.Ext())
}

// ClusterDir returns the repo-relative subtree for one cluster.
func (t Tree) ClusterDir(clusterID string) string {
	return path.Join(t.Base(), clusterID)
}

// RolesPath returns the repo-relative roles directory.
func (t Tree) RolesPath() string {
	return path.Join(t.Base(), RolesDir)
}

// DetectKind classifies a tree file into its object kind. The double suffix
// is authoritative; ambiguous files fall back, in order, to: inside a
// "roles" directory -> RoleTemplate, basename starting with "prtb-" -> PRTB,
// otherwise Project.
func DetectKind(p string) types.Kind {
	base := filepath.Base(p)
	switch {
	case strings.Contains(base, suffixCluster):
		return types.KindCluster
	case strings.Contains(base, suffixProject):
		return types.KindProject
	case strings.Contains(base, suffixPRTB):
		return types.KindPRTB
	case strings.Contains(base, suffixRoleTemplate):
		return types.KindRoleTemplate
	}

	if filepath.Base(filepath.Dir(p)) == RolesDir {
		return types.KindRoleTemplate
	}
	if strings.HasPrefix(base, "prtb-") {
		return types.KindPRTB
	}
	return types.KindProject
}
