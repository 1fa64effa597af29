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
	"reflect"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	apitypes "k8s.io/apimachinery/pkg/types"

	"github.com/projectshepherd/shepherd/internal/types"
)

// ResourceQuotaLimit holds Rancher quota values. All values are opaque
// quantity strings; the server validates them.
type ResourceQuotaLimit struct {
	Pods                   string `json:"pods,omitempty"`
	Services               string `json:"services,omitempty"`
	ReplicationControllers string `json:"replicationControllers,omitempty"`
	Secrets                string `json:"secrets,omitempty"`
	ConfigMaps             string `json:"configMaps,omitempty"`
	PersistentVolumeClaims string `json:"persistentVolumeClaims,omitempty"`
	ServicesNodePorts      string `json:"servicesNodePorts,omitempty"`
	ServicesLoadBalancers  string `json:"servicesLoadBalancers,omitempty"`
	RequestsCPU            string `json:"requestsCpu,omitempty"`
	RequestsMemory         string `json:"requestsMemory,omitempty"`
	RequestsStorage        string `json:"requestsStorage,omitempty"`
	LimitsCPU              string `json:"limitsCpu,omitempty"`
	LimitsMemory           string `json:"limitsMemory,omitempty"`
}

// ProjectResourceQuota is the project-level quota. UsedLimit is maintained by
// the server and excluded from diffing.
type ProjectResourceQuota struct {
	Limit     ResourceQuotaLimit  `json:"limit"`
	UsedLimit *ResourceQuotaLimit `json:"usedLimit,omitempty"`
}

// NamespaceResourceQuota is the default quota stamped onto new namespaces.
type NamespaceResourceQuota struct {
	Limit ResourceQuotaLimit `json:"limit"`
}

// ContainerResourceLimit is the default limit applied to containers created
// in the project.
type ContainerResourceLimit struct {
	RequestsCPU    string `json:"requestsCpu,omitempty"`
	RequestsMemory string `json:"requestsMemory,omitempty"`
	LimitsCPU      string `json:"limitsCpu,omitempty"`
	LimitsMemory   string `json:"limitsMemory,omitempty"`
}

// Project is the canonical form of a Rancher project. ID is empty for a
// record that has not been created yet; the server assigns one through the
// "p-" generate-name convention.
type Project struct {
	ID                            string                  `json:"id,omitempty"`
	ClusterName                   string                  `json:"clusterName"`
	DisplayName                   string                  `json:"displayName"`
	Description                   string                  `json:"description,omitempty"`
	ContainerDefaultResourceLimit *ContainerResourceLimit `json:"containerDefaultResourceLimit,omitempty"`
	NamespaceDefaultResourceQuota *NamespaceResourceQuota `json:"namespaceDefaultResourceQuota,omitempty"`
	ResourceQuota                 *ProjectResourceQuota   `json:"resourceQuota,omitempty"`
	Annotations                   map[string]string       `json:"annotations,omitempty"`
	Labels                        map[string]string       `json:"labels,omitempty"`
	ResourceVersion               string                  `json:"resourceVersion,omitempty"`
	UID                           string                  `json:"uid,omitempty"`
}

// WireProjectSpec is the spec section of the API-shaped project.
type WireProjectSpec struct {
	DisplayName                   string                  `json:"displayName"`
	Description                   string                  `json:"description,omitempty"`
	ClusterName                   string                  `json:"clusterName"`
	ContainerDefaultResourceLimit *ContainerResourceLimit `json:"containerDefaultResourceLimit,omitempty"`
	NamespaceDefaultResourceQuota *NamespaceResourceQuota `json:"namespaceDefaultResourceQuota,omitempty"`
	ResourceQuota                 *ProjectResourceQuota   `json:"resourceQuota,omitempty"`
}

// WireProject mirrors the management API project object. A project's
// metadata.namespace is the id of its parent cluster.
type WireProject struct {
	metav1.TypeMeta `json:",inline"`
	Metadata        *metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec            *WireProjectSpec   `json:"spec,omitempty"`
	Status          map[string]any     `json:"status,omitempty"`
}

// Ref returns the identity of this project. The namespace is the parent
// cluster id.
func (p *Project) Ref() types.ObjectRef {
	return types.ObjectRef{Kind: types.KindProject, ID: p.ID, Namespace: p.ClusterName}
}

// ToWire converts the canonical project to its API shape. A project without
// an id is rendered with generateName so the server assigns one.
func (p *Project) ToWire() *WireProject {
	meta := &metav1.ObjectMeta{
		Name:            p.ID,
		Namespace:       p.ClusterName,
		Annotations:     copyStringMap(p.Annotations),
		Labels:          copyStringMap(p.Labels),
		ResourceVersion: p.ResourceVersion,
		UID:             apitypes.UID(p.UID),
	}
	if p.ID == "" {
		meta.GenerateName = ProjectGeneratePrefix
	}
	return &WireProject{
		TypeMeta: metav1.TypeMeta{Kind: string(types.KindProject), APIVersion: APIVersion},
		Metadata: meta,
		Spec: &WireProjectSpec{
			DisplayName:                   p.DisplayName,
			Description:                   p.Description,
			ClusterName:                   p.ClusterName,
			ContainerDefaultResourceLimit: p.ContainerDefaultResourceLimit,
			NamespaceDefaultResourceQuota: p.NamespaceDefaultResourceQuota,
			ResourceQuota:                 p.ResourceQuota,
		},
	}
}

// ProjectFromWire converts an API project to its canonical form.
func ProjectFromWire(w *WireProject) (*Project, error) {
	switch {
	case w.Metadata == nil:
		return nil, missingField(types.KindProject, "metadata")
	case w.Metadata.Name == "":
		return nil, missingField(types.KindProject, "metadata.name")
	case w.Spec == nil:
		return nil, missingField(types.KindProject, "spec")
	}
	cluster := w.Spec.ClusterName
	if cluster == "" {
		cluster = w.Metadata.Namespace
	}
	if w.Metadata.Namespace != "" && cluster != w.Metadata.Namespace {
		return nil, &ConversionError{
			Kind:   types.KindProject,
			Field:  "metadata.namespace",
			Reason: "does not match spec.clusterName",
		}
	}
	return &Project{
		ID:                            w.Metadata.Name,
		ClusterName:                   cluster,
		DisplayName:                   w.Spec.DisplayName,
		Description:                   w.Spec.Description,
		ContainerDefaultResourceLimit: w.Spec.ContainerDefaultResourceLimit,
		NamespaceDefaultResourceQuota: w.Spec.NamespaceDefaultResourceQuota,
		ResourceQuota:                 w.Spec.ResourceQuota,
		Annotations:                   copyStringMap(w.Metadata.Annotations),
		Labels:                        copyStringMap(w.Metadata.Labels),
		ResourceVersion:               w.Metadata.ResourceVersion,
		UID:                           string(w.Metadata.UID),
	}, nil
}

// EqualsWire reports whether the canonical record matches a wire-form one,
// resourceVersion included.
func (p *Project) EqualsWire(w *WireProject) bool {
	other, err := ProjectFromWire(w)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(p, other)
}
