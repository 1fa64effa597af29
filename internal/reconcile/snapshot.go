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

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/projectshepherd/shepherd/internal/diff"
	"github.com/projectshepherd/shepherd/internal/fileformat"
	"github.com/projectshepherd/shepherd/internal/layout"
	"github.com/projectshepherd/shepherd/internal/rancher"
	"github.com/projectshepherd/shepherd/internal/resources"
	"github.com/projectshepherd/shepherd/internal/types"
)

// decodeFile reads and decodes one tree file into v, picking the codec from
// the file extension.
func decodeFile(absPath string, v any) error {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", absPath, err)
	}
	if err := fileformat.Decode(absPath, data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", absPath, err)
	}
	return nil
}

// stem strips the format extension and the type suffix from a tree filename:
// "rt-view.rt.yaml" -> "rt-view".
func stem(p string) string {
	base := path.Base(p)
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.TrimSuffix(base, path.Ext(base))
}

// loadDesiredRoleTemplates reads every role template stored under the
// endpoint's roles directory. Unreadable files become failures; the rest of
// the directory still loads.
func (r *Reconciler) loadDesiredRoleTemplates(summary *TickSummary) []resources.RoleTemplate {
	dir := filepath.Join(r.Tree.Root, filepath.FromSlash(r.Tree.RolesPath()))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		summary.fail(types.ObjectRef{Kind: types.KindRoleTemplate}, r.Tree.RolesPath(), err)
		return nil
	}

	var out []resources.RoleTemplate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rel := path.Join(r.Tree.RolesPath(), entry.Name())
		if layout.DetectKind(rel) != types.KindRoleTemplate {
			continue
		}

		var rt resources.RoleTemplate
		if err := decodeFile(filepath.Join(dir, entry.Name()), &rt); err != nil {
			summary.fail(types.ObjectRef{Kind: types.KindRoleTemplate, ID: stem(rel)}, rel, err)
			continue
		}
		if rt.ID == "" {
			rt.ID = stem(rel)
		}
		out = append(out, rt)
	}
	return out
}

// loadDesired assembles the on-disk view of one cluster subtree: the cluster
// record if present, plus every project directory with its bindings. A
// missing subtree yields an empty snapshot.
func (r *Reconciler) loadDesired(clusterID string, summary *TickSummary) diff.ClusterSnapshot {
	snap := diff.ClusterSnapshot{Projects: make(map[string]diff.ProjectEntry)}

	clusterDir := filepath.Join(r.Tree.Root, filepath.FromSlash(r.Tree.ClusterDir(clusterID)))
	entries, err := os.ReadDir(clusterDir)
	if errors.Is(err, os.ErrNotExist) {
		return snap
	}
	if err != nil {
		summary.fail(types.ObjectRef{Kind: types.KindCluster, ID: clusterID}, r.Tree.ClusterDir(clusterID), err)
		return snap
	}

	for _, entry := range entries {
		if entry.IsDir() {
			r.loadDesiredProject(clusterID, entry.Name(), &snap, summary)
			continue
		}

		rel := path.Join(r.Tree.ClusterDir(clusterID), entry.Name())
		if layout.DetectKind(rel) != types.KindCluster {
			continue
		}
		var cl resources.Cluster
		if err := decodeFile(filepath.Join(clusterDir, entry.Name()), &cl); err != nil {
			summary.fail(types.ObjectRef{Kind: types.KindCluster, ID: clusterID}, rel, err)
			continue
		}
		if cl.ID == "" {
			cl.ID = clusterID
		}
		snap.Cluster = &cl
	}
	return snap
}

// loadDesiredProject reads one project directory: the project record and its
// bindings.
func (r *Reconciler) loadDesiredProject(
	clusterID, projectDir string,
	snap *diff.ClusterSnapshot,
	summary *TickSummary,
) {
	relDir := path.Join(r.Tree.ClusterDir(clusterID), projectDir)
	absDir := filepath.Join(r.Tree.Root, filepath.FromSlash(relDir))
	entries, err := os.ReadDir(absDir)
	if err != nil {
		summary.fail(types.ObjectRef{Kind: types.KindProject, ID: projectDir, Namespace: clusterID}, relDir, err)
		return
	}

	var entry diff.ProjectEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rel := path.Join(relDir, e.Name())
		abs := filepath.Join(absDir, e.Name())

		switch layout.DetectKind(rel) {
		case types.KindProject:
			var p resources.Project
			if err := decodeFile(abs, &p); err != nil {
				summary.fail(types.ObjectRef{Kind: types.KindProject, ID: projectDir, Namespace: clusterID}, rel, err)
				continue
			}
			if p.ID == "" {
				p.ID = projectDir
			}
			if p.ClusterName == "" {
				p.ClusterName = clusterID
			}
			entry.Project = p
		case types.KindPRTB:
			var b resources.ProjectRoleTemplateBinding
			if err := decodeFile(abs, &b); err != nil {
				summary.fail(types.ObjectRef{Kind: types.KindPRTB, ID: stem(rel), Namespace: projectDir}, rel, err)
				continue
			}
			if b.ID == "" {
				b.ID = stem(rel)
			}
			if b.Namespace == "" {
				b.Namespace = projectDir
			}
			entry.Bindings = append(entry.Bindings, b)
		}
	}

	if entry.Project.ID == "" {
		// Directory without a readable project record; bindings alone have
		// no parent to attach to.
		return
	}
	snap.Projects[entry.Project.ID] = entry
}

// loadLive assembles the API view of one cluster: the cluster record, its
// projects and each project's bindings. A missing cluster yields a snapshot
// without a cluster record.
func (r *Reconciler) loadLive(ctx context.Context, clusterID string) (diff.ClusterSnapshot, error) {
	snap := diff.ClusterSnapshot{Projects: make(map[string]diff.ProjectEntry)}

	cl, err := r.API.GetCluster(ctx, clusterID)
	switch {
	case err == nil:
		snap.Cluster = cl
	case rancher.IsNotFound(err):
	default:
		return snap, fmt.Errorf("failed to fetch cluster %s: %w", clusterID, err)
	}

	projects, err := r.API.ListProjects(ctx, clusterID)
	if err != nil {
		return snap, fmt.Errorf("failed to list projects of %s: %w", clusterID, err)
	}
	for i := range projects {
		p := projects[i]
		bindings, err := r.API.ListBindings(ctx, p.ID)
		if err != nil {
			return snap, fmt.Errorf("failed to list bindings of %s: %w", p.ID, err)
		}
		snap.Projects[p.ID] = diff.ProjectEntry{Project: p, Bindings: bindings}
	}
	return snap, nil
}
