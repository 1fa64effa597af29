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

/*
Package diff computes minimal RFC 6902 patches between the live and desired
state of one cluster. Objects are matched by id within their parent scope;
objects present on only one side are not diffed here — creation and deletion
are driven by the Git worker's working-tree classification.
*/
package diff

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/wI2L/jsondiff"

	"github.com/projectshepherd/shepherd/internal/resources"
	"github.com/projectshepherd/shepherd/internal/types"
)

// ProjectEntry pairs a project with its bindings.
type ProjectEntry struct {
	Project  resources.Project
	Bindings []resources.ProjectRoleTemplateBinding
}

// ClusterSnapshot is one consistent view of a cluster: the cluster record,
// the endpoint's role templates, and the projects keyed by id.
type ClusterSnapshot struct {
	Cluster       *resources.Cluster
	RoleTemplates []resources.RoleTemplate
	Projects      map[string]ProjectEntry
}

// Per-kind exclude paths: fields the server owns. Dot notation; a path
// prefix removes the whole subtree.
var (
	excludeProject = []string{
		"metadata.creationTimestamp",
		"metadata.finalizers",
		"metadata.generateName",
		"metadata.generation",
		"metadata.managedFields",
		"metadata.resourceVersion",
		"spec.resourceQuota.usedLimit",
		"status",
	}

	// Role templates, bindings and clusters share the plain metadata list.
	excludeMetadata = []string{
		"metadata.creationTimestamp",
		"metadata.finalizers",
		"metadata.generateName",
		"metadata.generation",
		"metadata.managedFields",
		"metadata.resourceVersion",
		"metadata.selfLink",
		"metadata.uid",
		"status",
	}
)

// Compute returns the per-object patches that would turn live into desired.
// Only objects present on both sides produce entries; empty patches are
// omitted.
func Compute(live, desired ClusterSnapshot) (map[types.ObjectRef]json.RawMessage, error) {
	out := make(map[types.ObjectRef]json.RawMessage)

	if live.Cluster != nil && desired.Cluster != nil && live.Cluster.ID == desired.Cluster.ID {
		patch, err := diffObject(live.Cluster.ToWire(), desired.Cluster.ToWire(), excludeMetadata)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: %w", desired.Cluster.ID, err)
		}
		if patch != nil {
			out[desired.Cluster.Ref()] = patch
		}
	}

	liveRTs := make(map[string]*resources.RoleTemplate, len(live.RoleTemplates))
	for i := range live.RoleTemplates {
		liveRTs[live.RoleTemplates[i].ID] = &live.RoleTemplates[i]
	}
	for i := range desired.RoleTemplates {
		want := &desired.RoleTemplates[i]
		have, ok := liveRTs[want.ID]
		if !ok {
			continue
		}
		patch, err := diffObject(have.ToWire(), want.ToWire(), excludeMetadata)
		if err != nil {
			return nil, fmt.Errorf("roletemplate %s: %w", want.ID, err)
		}
		if patch != nil {
			out[want.Ref()] = patch
		}
	}

	for id, want := range desired.Projects {
		have, ok := live.Projects[id]
		if !ok {
			continue
		}
		patch, err := diffObject(have.Project.ToWire(), want.Project.ToWire(), excludeProject)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", id, err)
		}
		if patch != nil {
			out[want.Project.Ref()] = patch
		}

		liveBindings := make(map[string]*resources.ProjectRoleTemplateBinding, len(have.Bindings))
		for i := range have.Bindings {
			liveBindings[have.Bindings[i].ID] = &have.Bindings[i]
		}
		for i := range want.Bindings {
			wantB := &want.Bindings[i]
			haveB, ok := liveBindings[wantB.ID]
			if !ok {
				continue
			}
			patch, err := diffObject(haveB.ToWire(), wantB.ToWire(), excludeMetadata)
			if err != nil {
				return nil, fmt.Errorf("binding %s/%s: %w", id, wantB.ID, err)
			}
			if patch != nil {
				out[wantB.Ref()] = patch
			}
		}
	}

	return out, nil
}

// diffObject produces the RFC 6902 patch from live to desired after
// stripping server-owned paths from both sides. Returns nil when the
// stripped forms are identical.
func diffObject(live, desired any, exclude []string) (json.RawMessage, error) {
	liveTree, err := toTree(live)
	if err != nil {
		return nil, err
	}
	desiredTree, err := toTree(desired)
	if err != nil {
		return nil, err
	}
	for _, p := range exclude {
		stripPath(liveTree, p)
		stripPath(desiredTree, p)
	}

	ops, err := jsondiff.Compare(liveTree, desiredTree)
	if err != nil {
		return nil, fmt.Errorf("failed to compare objects: %w", err)
	}
	if len(ops) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}
	if _, err := jsonpatch.DecodePatch(raw); err != nil {
		return nil, fmt.Errorf("generated patch is not a valid RFC 6902 document: %w", err)
	}
	return raw, nil
}

func toTree(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode object: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to rebuild generic tree: %w", err)
	}
	return tree, nil
}

// stripPath removes a dot-notation path from a generic JSON tree. Missing
// intermediate nodes end the walk silently.
func stripPath(tree map[string]any, path string) {
	parts := strings.Split(path, ".")
	node := tree
	for i, part := range parts {
		if i == len(parts)-1 {
			delete(node, part)
			return
		}
		next, ok := node[part].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
}

// Apply is a test and verification helper: it applies a patch produced by
// Compute to the live wire form and returns the resulting JSON document.
func Apply(doc []byte, patch json.RawMessage) ([]byte, error) {
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}
	return decoded.Apply(doc)
}
