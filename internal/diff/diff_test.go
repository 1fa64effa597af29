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

package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectshepherd/shepherd/internal/resources"
	"github.com/projectshepherd/shepherd/internal/types"
)

type op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func decodeOps(t *testing.T, patch json.RawMessage) []op {
	t.Helper()
	var ops []op
	require.NoError(t, json.Unmarshal(patch, &ops))
	return ops
}

func TestComputeClusterDescriptionChange(t *testing.T) {
	live := ClusterSnapshot{
		Cluster: &resources.Cluster{ID: "c-local", DisplayName: "local", Description: "old"},
	}
	desired := ClusterSnapshot{
		Cluster: &resources.Cluster{ID: "c-local", DisplayName: "local", Description: "new"},
	}

	patches, err := Compute(live, desired)
	require.NoError(t, err)
	require.Len(t, patches, 1)

	patch, ok := patches[types.ObjectRef{Kind: types.KindCluster, ID: "c-local"}]
	require.True(t, ok)

	ops := decodeOps(t, patch)
	require.Len(t, ops, 1)
	assert.Equal(t, "replace", ops[0].Op)
	assert.Equal(t, "/spec/description", ops[0].Path)
	assert.Equal(t, "new", ops[0].Value)
}

func TestComputeIdenticalSnapshotsYieldNothing(t *testing.T) {
	snap := ClusterSnapshot{
		Cluster: &resources.Cluster{ID: "c-local", DisplayName: "local"},
		RoleTemplates: []resources.RoleTemplate{
			{ID: "rt-view", DisplayName: "Viewer"},
		},
		Projects: map[string]ProjectEntry{
			"p-abc12": {
				Project: resources.Project{ID: "p-abc12", ClusterName: "c-local", DisplayName: "Team A"},
				Bindings: []resources.ProjectRoleTemplateBinding{
					{ID: "prtb-x", Namespace: "p-abc12", ProjectName: "c-local:p-abc12", RoleTemplateName: "rt-view"},
				},
			},
		},
	}

	patches, err := Compute(snap, snap)
	require.NoError(t, err)
	assert.Empty(t, patches)
}

func TestComputeIgnoresServerOwnedFields(t *testing.T) {
	used := &resources.ResourceQuotaLimit{Pods: "7"}
	live := ClusterSnapshot{
		Projects: map[string]ProjectEntry{
			"p-abc12": {
				Project: resources.Project{
					ID:              "p-abc12",
					ClusterName:     "c-local",
					DisplayName:     "Team A",
					ResourceVersion: "100",
					ResourceQuota: &resources.ProjectResourceQuota{
						Limit:     resources.ResourceQuotaLimit{Pods: "50"},
						UsedLimit: used,
					},
				},
			},
		},
	}
	desired := ClusterSnapshot{
		Projects: map[string]ProjectEntry{
			"p-abc12": {
				Project: resources.Project{
					ID:              "p-abc12",
					ClusterName:     "c-local",
					DisplayName:     "Team A",
					ResourceVersion: "7",
					ResourceQuota: &resources.ProjectResourceQuota{
						Limit: resources.ResourceQuotaLimit{Pods: "50"},
					},
				},
			},
		},
	}

	patches, err := Compute(live, desired)
	require.NoError(t, err)
	assert.Empty(t, patches, "resourceVersion and usedLimit drift is not a difference")
}

func TestComputeSkipsOneSidedObjects(t *testing.T) {
	live := ClusterSnapshot{
		RoleTemplates: []resources.RoleTemplate{{ID: "rt-only-live", DisplayName: "x"}},
		Projects:      map[string]ProjectEntry{},
	}
	desired := ClusterSnapshot{
		RoleTemplates: []resources.RoleTemplate{{ID: "rt-only-desired", DisplayName: "y"}},
		Projects: map[string]ProjectEntry{
			"p-new": {Project: resources.Project{ID: "p-new", ClusterName: "c-local", DisplayName: "new"}},
		},
	}

	patches, err := Compute(live, desired)
	require.NoError(t, err)
	assert.Empty(t, patches, "creation and deletion are not the diff engine's business")
}

func TestComputeBindingDrift(t *testing.T) {
	mk := func(roleTemplate string) ClusterSnapshot {
		return ClusterSnapshot{
			Projects: map[string]ProjectEntry{
				"p-abc12": {
					Project: resources.Project{ID: "p-abc12", ClusterName: "c-local", DisplayName: "Team A"},
					Bindings: []resources.ProjectRoleTemplateBinding{
						{
							ID:               "prtb-x",
							Namespace:        "p-abc12",
							ProjectName:      "c-local:p-abc12",
							RoleTemplateName: roleTemplate,
						},
					},
				},
			},
		}
	}

	patches, err := Compute(mk("rt-view"), mk("rt-deploy"))
	require.NoError(t, err)
	require.Len(t, patches, 1)

	patch := patches[types.ObjectRef{Kind: types.KindPRTB, ID: "prtb-x", Namespace: "p-abc12"}]
	ops := decodeOps(t, patch)
	require.Len(t, ops, 1)
	assert.Equal(t, "/spec/roleTemplateName", ops[0].Path)
	assert.Equal(t, "rt-deploy", ops[0].Value)
}

func TestApplyPatchConvergesLiveToDesired(t *testing.T) {
	live := &resources.Cluster{ID: "c-local", DisplayName: "local", Description: "old"}
	desired := &resources.Cluster{ID: "c-local", DisplayName: "renamed", Description: "new"}

	patches, err := Compute(ClusterSnapshot{Cluster: live}, ClusterSnapshot{Cluster: desired})
	require.NoError(t, err)
	patch := patches[desired.Ref()]
	require.NotNil(t, patch)

	liveDoc, err := json.Marshal(live.ToWire())
	require.NoError(t, err)
	merged, err := Apply(liveDoc, patch)
	require.NoError(t, err)

	var w resources.WireCluster
	require.NoError(t, json.Unmarshal(merged, &w))
	assert.True(t, desired.EqualsWire(&w))
}
