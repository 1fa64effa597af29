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

// Package types provides common type definitions used across Shepherd.
package types

import (
	"fmt"
	"sort"
)

// Kind enumerates the Rancher management resource kinds Shepherd reconciles.
type Kind string

const (
	KindCluster      Kind = "Cluster"
	KindProject      Kind = "Project"
	KindRoleTemplate Kind = "RoleTemplate"
	KindPRTB         Kind = "ProjectRoleTemplateBinding"
)

// CreationPriority orders kinds so that creating objects in ascending
// priority never dereferences an object that does not exist yet: a PRTB
// needs its RoleTemplate and its Project, a Project needs nothing but its
// (pre-existing) cluster.
func (k Kind) CreationPriority() int {
	switch k {
	case KindRoleTemplate:
		return 0
	case KindProject:
		return 1
	case KindPRTB:
		return 2
	case KindCluster:
		return 3
	default:
		return 4
	}
}

// ObjectRef uniquely identifies a management resource within one endpoint.
// Namespace is the parent resource id (cluster id for a Project, project id
// for a PRTB) and is empty for cluster-scoped kinds.
type ObjectRef struct {
	Kind      Kind
	ID        string
	Namespace string
}

// String returns "kind/namespace/id" (or "kind/id" for cluster-scoped refs).
func (r ObjectRef) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s/%s", r.Kind, r.ID)
	}
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Namespace, r.ID)
}

// IsZero returns true if this is an empty reference.
func (r ObjectRef) IsZero() bool {
	return r.Kind == "" && r.ID == "" && r.Namespace == ""
}

// SortByCreationPriority sorts refs in place into safe creation order.
// The sort is stable so refs of the same kind keep their relative order.
func SortByCreationPriority(refs []ObjectRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Kind.CreationPriority() < refs[j].Kind.CreationPriority()
	})
}
