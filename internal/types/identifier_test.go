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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectRefString(t *testing.T) {
	testCases := []struct {
		name     string
		ref      ObjectRef
		expected string
	}{
		{
			name:     "cluster-scoped",
			ref:      ObjectRef{Kind: KindRoleTemplate, ID: "rt-view"},
			expected: "RoleTemplate/rt-view",
		},
		{
			name:     "namespaced",
			ref:      ObjectRef{Kind: KindPRTB, ID: "prtb-alice", Namespace: "p-team"},
			expected: "ProjectRoleTemplateBinding/p-team/prtb-alice",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.ref.String())
		})
	}
}

func TestSortByCreationPriority(t *testing.T) {
	refs := []ObjectRef{
		{Kind: KindCluster, ID: "c-1"},
		{Kind: KindPRTB, ID: "prtb-a", Namespace: "p-1"},
		{Kind: KindProject, ID: "p-1", Namespace: "c-1"},
		{Kind: KindProject, ID: "p-2", Namespace: "c-1"},
		{Kind: KindRoleTemplate, ID: "rt-view"},
	}

	SortByCreationPriority(refs)

	assert.Equal(t, KindRoleTemplate, refs[0].Kind)
	assert.Equal(t, KindProject, refs[1].Kind)
	assert.Equal(t, "p-1", refs[1].ID, "stable sort keeps relative order")
	assert.Equal(t, "p-2", refs[2].ID)
	assert.Equal(t, KindPRTB, refs[3].Kind)
	assert.Equal(t, KindCluster, refs[4].Kind)
}

func TestObjectRefIsZero(t *testing.T) {
	assert.True(t, ObjectRef{}.IsZero())
	assert.False(t, ObjectRef{ID: "p-abc12"}.IsZero())
}
