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

package resources

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/projectshepherd/shepherd/internal/types"
)

// Cluster is the canonical form of a Rancher-managed cluster. Shepherd never
// creates or deletes clusters; it only aligns their mutable fields.
type Cluster struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

// WireClusterSpec is the spec section of the API-shaped cluster.
type WireClusterSpec struct {
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

// WireCluster mirrors the management API cluster object.
type WireCluster struct {
	metav1.TypeMeta `json:",inline"`
	Metadata        *metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec            *WireClusterSpec   `json:"spec,omitempty"`
	Status          map[string]any     `json:"status,omitempty"`
}

// Ref returns the identity of this cluster.
func (c *Cluster) Ref() types.ObjectRef {
	return types.ObjectRef{Kind: types.KindCluster, ID: c.ID}
}

// ToWire converts the canonical cluster to its API shape.
func (c *Cluster) ToWire() *WireCluster {
	return &WireCluster{
		TypeMeta: metav1.TypeMeta{Kind: string(types.KindCluster), APIVersion: APIVersion},
		Metadata: &metav1.ObjectMeta{Name: c.ID},
		Spec: &WireClusterSpec{
			DisplayName: c.DisplayName,
			Description: c.Description,
		},
	}
}

// ClusterFromWire converts an API cluster to its canonical form.
func ClusterFromWire(w *WireCluster) (*Cluster, error) {
	switch {
	case w.Metadata == nil:
		return nil, missingField(types.KindCluster, "metadata")
	case w.Metadata.Name == "":
		return nil, missingField(types.KindCluster, "metadata.name")
	case w.Spec == nil:
		return nil, missingField(types.KindCluster, "spec")
	}
	return &Cluster{
		ID:          w.Metadata.Name,
		DisplayName: w.Spec.DisplayName,
		Description: w.Spec.Description,
	}, nil
}

// EqualsWire reports whether the canonical cluster matches a wire-form one.
func (c *Cluster) EqualsWire(w *WireCluster) bool {
	other, err := ClusterFromWire(w)
	if err != nil {
		return false
	}
	return *c == *other
}
