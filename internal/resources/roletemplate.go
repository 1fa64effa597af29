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

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/projectshepherd/shepherd/internal/types"
)

// Context scopes a RoleTemplate to cluster-level or project-level bindings.
type Context string

const (
	ContextCluster Context = "cluster"
	ContextProject Context = "project"
)

// RoleTemplate is the canonical form of a Rancher role template: a named,
// possibly hierarchical set of policy rules.
type RoleTemplate struct {
	ID                    string              `json:"id"`
	DisplayName           string              `json:"displayName"`
	Description           string              `json:"description,omitempty"`
	Context               Context             `json:"context,omitempty"`
	Administrative        bool                `json:"administrative,omitempty"`
	Builtin               bool                `json:"builtin,omitempty"`
	External              bool                `json:"external,omitempty"`
	Hidden                bool                `json:"hidden,omitempty"`
	Locked                bool                `json:"locked,omitempty"`
	ClusterCreatorDefault bool                `json:"clusterCreatorDefault,omitempty"`
	ProjectCreatorDefault bool                `json:"projectCreatorDefault,omitempty"`
	RoleTemplateNames     []string            `json:"roleTemplateNames,omitempty"`
	Rules                 []rbacv1.PolicyRule `json:"rules,omitempty"`
	Annotations           map[string]string   `json:"annotations,omitempty"`
	Labels                map[string]string   `json:"labels,omitempty"`
	ResourceVersion       string              `json:"resourceVersion,omitempty"`
}

// WireRoleTemplateSpec is the spec section of the API-shaped role template.
type WireRoleTemplateSpec struct {
	DisplayName           string              `json:"displayName"`
	Description           string              `json:"description,omitempty"`
	Context               Context             `json:"context,omitempty"`
	Administrative        bool                `json:"administrative,omitempty"`
	Builtin               bool                `json:"builtin,omitempty"`
	External              bool                `json:"external,omitempty"`
	Hidden                bool                `json:"hidden,omitempty"`
	Locked                bool                `json:"locked,omitempty"`
	ClusterCreatorDefault bool                `json:"clusterCreatorDefault,omitempty"`
	ProjectCreatorDefault bool                `json:"projectCreatorDefault,omitempty"`
	RoleTemplateNames     []string            `json:"roleTemplateNames,omitempty"`
	Rules                 []rbacv1.PolicyRule `json:"rules,omitempty"`
}

// WireRoleTemplate mirrors the management API role template object.
type WireRoleTemplate struct {
	metav1.TypeMeta `json:",inline"`
	Metadata        *metav1.ObjectMeta    `json:"metadata,omitempty"`
	Spec            *WireRoleTemplateSpec `json:"spec,omitempty"`
	Status          map[string]any        `json:"status,omitempty"`
}

// Ref returns the identity of this role template.
func (rt *RoleTemplate) Ref() types.ObjectRef {
	return types.ObjectRef{Kind: types.KindRoleTemplate, ID: rt.ID}
}

// ToWire converts the canonical role template to its API shape.
func (rt *RoleTemplate) ToWire() *WireRoleTemplate {
	return &WireRoleTemplate{
		TypeMeta: metav1.TypeMeta{Kind: string(types.KindRoleTemplate), APIVersion: APIVersion},
		Metadata: &metav1.ObjectMeta{
			Name:            rt.ID,
			Annotations:     copyStringMap(rt.Annotations),
			Labels:          copyStringMap(rt.Labels),
			ResourceVersion: rt.ResourceVersion,
		},
		Spec: &WireRoleTemplateSpec{
			DisplayName:           rt.DisplayName,
			Description:           rt.Description,
			Context:               rt.Context,
			Administrative:        rt.Administrative,
			Builtin:               rt.Builtin,
			External:              rt.External,
			Hidden:                rt.Hidden,
			Locked:                rt.Locked,
			ClusterCreatorDefault: rt.ClusterCreatorDefault,
			ProjectCreatorDefault: rt.ProjectCreatorDefault,
			RoleTemplateNames:     append([]string(nil), rt.RoleTemplateNames...),
			Rules:                 append([]rbacv1.PolicyRule(nil), rt.Rules...),
		},
	}
}

// RoleTemplateFromWire converts an API role template to its canonical form.
func RoleTemplateFromWire(w *WireRoleTemplate) (*RoleTemplate, error) {
	switch {
	case w.Metadata == nil:
		return nil, missingField(types.KindRoleTemplate, "metadata")
	case w.Metadata.Name == "":
		return nil, missingField(types.KindRoleTemplate, "metadata.name")
	case w.Spec == nil:
		return nil, missingField(types.KindRoleTemplate, "spec")
	}
	if w.Spec.Context != "" && w.Spec.Context != ContextCluster && w.Spec.Context != ContextProject {
		return nil, &ConversionError{
			Kind:   types.KindRoleTemplate,
			Field:  "spec.context",
			Reason: string(w.Spec.Context),
		}
	}
	return &RoleTemplate{
		ID:                    w.Metadata.Name,
		DisplayName:           w.Spec.DisplayName,
		Description:           w.Spec.Description,
		Context:               w.Spec.Context,
		Administrative:        w.Spec.Administrative,
		Builtin:               w.Spec.Builtin,
		External:              w.Spec.External,
		Hidden:                w.Spec.Hidden,
		Locked:                w.Spec.Locked,
		ClusterCreatorDefault: w.Spec.ClusterCreatorDefault,
		ProjectCreatorDefault: w.Spec.ProjectCreatorDefault,
		RoleTemplateNames:     append([]string(nil), w.Spec.RoleTemplateNames...),
		Rules:                 append([]rbacv1.PolicyRule(nil), w.Spec.Rules...),
		Annotations:           copyStringMap(w.Metadata.Annotations),
		Labels:                copyStringMap(w.Metadata.Labels),
		ResourceVersion:       w.Metadata.ResourceVersion,
	}, nil
}

// EqualsWire reports whether the canonical record matches a wire-form one.
// resourceVersion participates: a server-side bump counts as drift.
func (rt *RoleTemplate) EqualsWire(w *WireRoleTemplate) bool {
	other, err := RoleTemplateFromWire(w)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(rt, other)
}
