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

	"github.com/projectshepherd/shepherd/internal/rancher"
	"github.com/projectshepherd/shepherd/internal/resources"
)

// Gateway is the management API surface the reconciler drives. The rancher
// client implements it; tests substitute fakes.
type Gateway interface {
	ListClusters(ctx context.Context) ([]resources.Cluster, error)
	GetCluster(ctx context.Context, id string) (*resources.Cluster, error)
	PatchCluster(ctx context.Context, id string, patch []byte) (*resources.Cluster, error)

	ListRoleTemplates(ctx context.Context) ([]resources.RoleTemplate, error)
	GetRoleTemplate(ctx context.Context, id string) (*resources.RoleTemplate, error)
	CreateRoleTemplate(ctx context.Context, rt *resources.RoleTemplate) (*resources.RoleTemplate, error)
	PatchRoleTemplate(ctx context.Context, id string, patch []byte) (*resources.RoleTemplate, error)
	DeleteRoleTemplate(ctx context.Context, id string) error

	ListProjects(ctx context.Context, clusterID string) ([]resources.Project, error)
	GetProject(ctx context.Context, clusterID, id string) (*resources.Project, error)
	CreateProject(ctx context.Context, p *resources.Project) (*resources.Project, error)
	PatchProject(ctx context.Context, clusterID, id string, patch []byte) (*resources.Project, error)
	DeleteProject(ctx context.Context, clusterID, id string) error

	ListBindings(ctx context.Context, projectID string) ([]resources.ProjectRoleTemplateBinding, error)
	GetBinding(ctx context.Context, projectID, id string) (*resources.ProjectRoleTemplateBinding, error)
	CreateBinding(
		ctx context.Context,
		b *resources.ProjectRoleTemplateBinding,
	) (*resources.ProjectRoleTemplateBinding, error)
	PatchBinding(
		ctx context.Context,
		projectID, id string,
		patch []byte,
	) (*resources.ProjectRoleTemplateBinding, error)
	DeleteBinding(ctx context.Context, projectID, id string) error
}

var _ Gateway = (*rancher.Client)(nil)
