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
	"fmt"
	"reflect"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/projectshepherd/shepherd/internal/types"
)

// ProjectRoleTemplateBinding (PRTB) grants a role template to a subject
// within a project. Namespace is the id of the parent project; ProjectName
// is the fully qualified "<cluster-id>:<project-id>" reference.
type ProjectRoleTemplateBinding struct {
	ID                 string            `json:"id,omitempty"`
	Namespace          string            `json:"namespace,omitempty"`
	ProjectName        string            `json:"projectName"`
	RoleTemplateName   string            `json:"roleTemplateName"`
	UserName           string            `json:"userName,omitempty"`
	UserPrincipalName  string            `json:"userPrincipalName,omitempty"`
	GroupName          string            `json:"groupName,omitempty"`
	GroupPrincipalName string            `json:"groupPrincipalName,omitempty"`
	ServiceAccount     string            `json:"serviceAccount,omitempty"`
	Annotations        map[string]string `json:"annotations,omitempty"`
	Labels             map[string]string `json:"labels,omitempty"`
}

// WirePRTBSpec is the spec section of the API-shaped binding.
type WirePRTBSpec struct {
	ProjectName        string `json:"projectName"`
	RoleTemplateName   string `json:"roleTemplateName"`
	UserName           string `json:"userName,omitempty"`
	UserPrincipalName  string `json:"userPrincipalName,omitempty"`
	GroupName          string `json:"groupName,omitempty"`
	GroupPrincipalName string `json:"groupPrincipalName,omitempty"`
	ServiceAccount     string `json:"serviceAccount,omitempty"`
}

// WirePRTB mirrors the management API binding object.
type WirePRTB struct {
	metav1.TypeMeta `json:",inline"`
	Metadata        *metav1.ObjectMeta `json:"metadata,omitempty"`
	Spec            *WirePRTBSpec      `json:"spec,omitempty"`
}

// QualifiedProjectName renders the "<cluster>:<project>" reference a PRTB
// carries in its projectName field.
func QualifiedProjectName(clusterID, projectID string) string {
	return fmt.Sprintf("%s:%s", clusterID, projectID)
}

// SplitProjectName splits a "<cluster>:<project>" reference. ok is false if
// the value is not in that form.
func SplitProjectName(qualified string) (clusterID, projectID string, ok bool) {
	clusterID, projectID, ok = strings.Cut(qualified, ":")
	if !ok || clusterID == "" || projectID == "" {
		return "", "", false
	}
	return clusterID, projectID, true
}

// Ref returns the identity of this binding.
func (b *ProjectRoleTemplateBinding) Ref() types.ObjectRef {
	return types.ObjectRef{Kind: types.KindPRTB, ID: b.ID, Namespace: b.Namespace}
}

// ToWire converts the canonical binding to its API shape. A binding without
// an id is rendered with generateName so the server assigns one.
func (b *ProjectRoleTemplateBinding) ToWire() *WirePRTB {
	meta := &metav1.ObjectMeta{
		Name:        b.ID,
		Namespace:   b.Namespace,
		Annotations: copyStringMap(b.Annotations),
		Labels:      copyStringMap(b.Labels),
	}
	if b.ID == "" {
		meta.GenerateName = PRTBGeneratePrefix
	}
	return &WirePRTB{
		TypeMeta: metav1.TypeMeta{Kind: string(types.KindPRTB), APIVersion: APIVersion},
		Metadata: meta,
		Spec: &WirePRTBSpec{
			ProjectName:        b.ProjectName,
			RoleTemplateName:   b.RoleTemplateName,
			UserName:           b.UserName,
			UserPrincipalName:  b.UserPrincipalName,
			GroupName:          b.GroupName,
			GroupPrincipalName: b.GroupPrincipalName,
			ServiceAccount:     b.ServiceAccount,
		},
	}
}

// PRTBFromWire converts an API binding to its canonical form.
func PRTBFromWire(w *WirePRTB) (*ProjectRoleTemplateBinding, error) {
	switch {
	case w.Metadata == nil:
		return nil, missingField(types.KindPRTB, "metadata")
	case w.Metadata.Name == "":
		return nil, missingField(types.KindPRTB, "metadata.name")
	case w.Spec == nil:
		return nil, missingField(types.KindPRTB, "spec")
	}
	return &ProjectRoleTemplateBinding{
		ID:                 w.Metadata.Name,
		Namespace:          w.Metadata.Namespace,
		ProjectName:        w.Spec.ProjectName,
		RoleTemplateName:   w.Spec.RoleTemplateName,
		UserName:           w.Spec.UserName,
		UserPrincipalName:  w.Spec.UserPrincipalName,
		GroupName:          w.Spec.GroupName,
		GroupPrincipalName: w.Spec.GroupPrincipalName,
		ServiceAccount:     w.Spec.ServiceAccount,
		Annotations:        copyStringMap(w.Metadata.Annotations),
		Labels:             copyStringMap(w.Metadata.Labels),
	}, nil
}

// EqualsWire reports whether the canonical record matches a wire-form one.
func (b *ProjectRoleTemplateBinding) EqualsWire(w *WirePRTB) bool {
	other, err := PRTBFromWire(w)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(b, other)
}
