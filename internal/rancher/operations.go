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

package rancher

import (
	"context"
	"fmt"

	"github.com/projectshepherd/shepherd/internal/resources"
)

// Resource path segments under the management API group. Projects are
// namespaced by their cluster id, bindings by their project id; role
// templates and clusters are cluster-scoped.
const (
	resClusters      = "clusters"
	resRoleTemplates = "roletemplates"
	resProjects      = "projects"
	resPRTBs         = "projectroletemplatebindings"
	segNamespaces    = "namespaces"
)

func convErr(err error) error {
	return fmt.Errorf("server returned unconvertible object: %w", err)
}

// --- Clusters ---

func (c *Client) ListClusters(ctx context.Context) ([]resources.Cluster, error) {
	var list listEnvelope[resources.WireCluster]
	if err := c.get(ctx, &list, resClusters); err != nil {
		return nil, err
	}
	out := make([]resources.Cluster, 0, len(list.Items))
	for i := range list.Items {
		cl, err := resources.ClusterFromWire(&list.Items[i])
		if err != nil {
			return nil, convErr(err)
		}
		out = append(out, *cl)
	}
	return out, nil
}

func (c *Client) GetCluster(ctx context.Context, id string) (*resources.Cluster, error) {
	var w resources.WireCluster
	if err := c.get(ctx, &w, resClusters, id); err != nil {
		return nil, err
	}
	cl, err := resources.ClusterFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return cl, nil
}

func (c *Client) PatchCluster(ctx context.Context, id string, patch []byte) (*resources.Cluster, error) {
	var w resources.WireCluster
	if err := c.patch(ctx, patch, &w, resClusters, id); err != nil {
		return nil, err
	}
	cl, err := resources.ClusterFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return cl, nil
}

// --- Role templates ---

func (c *Client) ListRoleTemplates(ctx context.Context) ([]resources.RoleTemplate, error) {
	var list listEnvelope[resources.WireRoleTemplate]
	if err := c.get(ctx, &list, resRoleTemplates); err != nil {
		return nil, err
	}
	out := make([]resources.RoleTemplate, 0, len(list.Items))
	for i := range list.Items {
		rt, err := resources.RoleTemplateFromWire(&list.Items[i])
		if err != nil {
			return nil, convErr(err)
		}
		out = append(out, *rt)
	}
	return out, nil
}

func (c *Client) GetRoleTemplate(ctx context.Context, id string) (*resources.RoleTemplate, error) {
	var w resources.WireRoleTemplate
	if err := c.get(ctx, &w, resRoleTemplates, id); err != nil {
		return nil, err
	}
	rt, err := resources.RoleTemplateFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return rt, nil
}

func (c *Client) CreateRoleTemplate(
	ctx context.Context,
	rt *resources.RoleTemplate,
) (*resources.RoleTemplate, error) {
	var w resources.WireRoleTemplate
	if err := c.post(ctx, rt.ToWire(), &w, resRoleTemplates); err != nil {
		return nil, err
	}
	created, err := resources.RoleTemplateFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return created, nil
}

func (c *Client) PatchRoleTemplate(ctx context.Context, id string, patch []byte) (*resources.RoleTemplate, error) {
	var w resources.WireRoleTemplate
	if err := c.patch(ctx, patch, &w, resRoleTemplates, id); err != nil {
		return nil, err
	}
	rt, err := resources.RoleTemplateFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return rt, nil
}

func (c *Client) DeleteRoleTemplate(ctx context.Context, id string) error {
	return c.delete(ctx, resRoleTemplates, id)
}

// --- Projects ---

func (c *Client) ListProjects(ctx context.Context, clusterID string) ([]resources.Project, error) {
	var list listEnvelope[resources.WireProject]
	if err := c.get(ctx, &list, segNamespaces, clusterID, resProjects); err != nil {
		return nil, err
	}
	out := make([]resources.Project, 0, len(list.Items))
	for i := range list.Items {
		p, err := resources.ProjectFromWire(&list.Items[i])
		if err != nil {
			return nil, convErr(err)
		}
		out = append(out, *p)
	}
	return out, nil
}

func (c *Client) GetProject(ctx context.Context, clusterID, id string) (*resources.Project, error) {
	var w resources.WireProject
	if err := c.get(ctx, &w, segNamespaces, clusterID, resProjects, id); err != nil {
		return nil, err
	}
	p, err := resources.ProjectFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return p, nil
}

func (c *Client) CreateProject(ctx context.Context, p *resources.Project) (*resources.Project, error) {
	var w resources.WireProject
	if err := c.post(ctx, p.ToWire(), &w, segNamespaces, p.ClusterName, resProjects); err != nil {
		return nil, err
	}
	created, err := resources.ProjectFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return created, nil
}

func (c *Client) PatchProject(ctx context.Context, clusterID, id string, patch []byte) (*resources.Project, error) {
	var w resources.WireProject
	if err := c.patch(ctx, patch, &w, segNamespaces, clusterID, resProjects, id); err != nil {
		return nil, err
	}
	p, err := resources.ProjectFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return p, nil
}

func (c *Client) DeleteProject(ctx context.Context, clusterID, id string) error {
	return c.delete(ctx, segNamespaces, clusterID, resProjects, id)
}

// --- Project role template bindings ---

func (c *Client) ListBindings(
	ctx context.Context,
	projectID string,
) ([]resources.ProjectRoleTemplateBinding, error) {
	var list listEnvelope[resources.WirePRTB]
	if err := c.get(ctx, &list, segNamespaces, projectID, resPRTBs); err != nil {
		return nil, err
	}
	out := make([]resources.ProjectRoleTemplateBinding, 0, len(list.Items))
	for i := range list.Items {
		b, err := resources.PRTBFromWire(&list.Items[i])
		if err != nil {
			return nil, convErr(err)
		}
		out = append(out, *b)
	}
	return out, nil
}

func (c *Client) GetBinding(
	ctx context.Context,
	projectID, id string,
) (*resources.ProjectRoleTemplateBinding, error) {
	var w resources.WirePRTB
	if err := c.get(ctx, &w, segNamespaces, projectID, resPRTBs, id); err != nil {
		return nil, err
	}
	b, err := resources.PRTBFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return b, nil
}

func (c *Client) CreateBinding(
	ctx context.Context,
	b *resources.ProjectRoleTemplateBinding,
) (*resources.ProjectRoleTemplateBinding, error) {
	var w resources.WirePRTB
	if err := c.post(ctx, b.ToWire(), &w, segNamespaces, b.Namespace, resPRTBs); err != nil {
		return nil, err
	}
	created, err := resources.PRTBFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return created, nil
}

func (c *Client) PatchBinding(
	ctx context.Context,
	projectID, id string,
	patch []byte,
) (*resources.ProjectRoleTemplateBinding, error) {
	var w resources.WirePRTB
	if err := c.patch(ctx, patch, &w, segNamespaces, projectID, resPRTBs, id); err != nil {
		return nil, err
	}
	b, err := resources.PRTBFromWire(&w)
	if err != nil {
		return nil, convErr(err)
	}
	return b, nil
}

func (c *Client) DeleteBinding(ctx context.Context, projectID, id string) error {
	return c.delete(ctx, segNamespaces, projectID, resPRTBs, id)
}
