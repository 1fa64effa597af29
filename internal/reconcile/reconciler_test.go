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
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectshepherd/shepherd/internal/fileformat"
	"github.com/projectshepherd/shepherd/internal/git"
	"github.com/projectshepherd/shepherd/internal/layout"
	"github.com/projectshepherd/shepherd/internal/rancher"
	"github.com/projectshepherd/shepherd/internal/resources"
)

// fakeRepo serves canned classifications and records commits and pushes.
type fakeRepo struct {
	newFiles      []git.ChangedFile
	deletedFiles  []git.DeletedFile
	commits       []string
	pushes        int
	pushErr       error
	modifiedCalls int
}

func (f *fakeRepo) Ensure(context.Context) error { return nil }
func (f *fakeRepo) Pull(context.Context) error   { return nil }
func (f *fakeRepo) NewFiles(...string) ([]git.ChangedFile, error) {
	return f.newFiles, nil
}
func (f *fakeRepo) ModifiedFiles(...string) ([]git.ChangedFile, error) {
	f.modifiedCalls++
	return nil, nil
}
func (f *fakeRepo) DeletedFiles(...string) ([]git.DeletedFile, error) {
	return f.deletedFiles, nil
}
func (f *fakeRepo) CommitAll(message string) (plumbing.Hash, error) {
	f.commits = append(f.commits, message)
	return plumbing.ZeroHash, nil
}
func (f *fakeRepo) Push(context.Context) error {
	f.pushes++
	return f.pushErr
}

func notFound() error {
	return &rancher.APIError{Kind: rancher.ErrNotFound, Status: http.StatusNotFound, Body: "not found"}
}

// fakeGateway is an in-memory management API. Hooks override individual
// operations per test.
type fakeGateway struct {
	mu sync.Mutex

	clusters map[string]resources.Cluster
	rts      map[string]resources.RoleTemplate
	projects map[string]resources.Project                   // by project id
	bindings map[string]resources.ProjectRoleTemplateBinding // by binding id

	patched        []string
	createBindingN int
	nextProjectID  string
	nextBindingID  string

	createBindingHook func(*resources.ProjectRoleTemplateBinding) error
	createProjectHook func(*resources.Project) error
	getClusterHook    func(string) (*resources.Cluster, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		clusters: make(map[string]resources.Cluster),
		rts:      make(map[string]resources.RoleTemplate),
		projects: make(map[string]resources.Project),
		bindings: make(map[string]resources.ProjectRoleTemplateBinding),
	}
}

func (g *fakeGateway) ListClusters(context.Context) ([]resources.Cluster, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]resources.Cluster, 0, len(g.clusters))
	for _, c := range g.clusters {
		out = append(out, c)
	}
	return out, nil
}

func (g *fakeGateway) GetCluster(_ context.Context, id string) (*resources.Cluster, error) {
	if g.getClusterHook != nil {
		return g.getClusterHook(id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clusters[id]; ok {
		return &c, nil
	}
	return nil, notFound()
}

func (g *fakeGateway) PatchCluster(_ context.Context, id string, _ []byte) (*resources.Cluster, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.clusters[id]
	if !ok {
		return nil, notFound()
	}
	g.patched = append(g.patched, "cluster/"+id)
	return &c, nil
}

func (g *fakeGateway) ListRoleTemplates(context.Context) ([]resources.RoleTemplate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]resources.RoleTemplate, 0, len(g.rts))
	for _, rt := range g.rts {
		out = append(out, rt)
	}
	return out, nil
}

func (g *fakeGateway) GetRoleTemplate(_ context.Context, id string) (*resources.RoleTemplate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rt, ok := g.rts[id]; ok {
		return &rt, nil
	}
	return nil, notFound()
}

func (g *fakeGateway) CreateRoleTemplate(
	_ context.Context,
	rt *resources.RoleTemplate,
) (*resources.RoleTemplate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rts[rt.ID] = *rt
	created := *rt
	return &created, nil
}

func (g *fakeGateway) PatchRoleTemplate(_ context.Context, id string, _ []byte) (*resources.RoleTemplate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rt, ok := g.rts[id]
	if !ok {
		return nil, notFound()
	}
	g.patched = append(g.patched, "roletemplate/"+id)
	return &rt, nil
}

func (g *fakeGateway) DeleteRoleTemplate(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rts[id]; !ok {
		return notFound()
	}
	delete(g.rts, id)
	return nil
}

func (g *fakeGateway) ListProjects(_ context.Context, clusterID string) ([]resources.Project, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []resources.Project
	for _, p := range g.projects {
		if p.ClusterName == clusterID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *fakeGateway) GetProject(_ context.Context, _, id string) (*resources.Project, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.projects[id]; ok {
		return &p, nil
	}
	return nil, notFound()
}

func (g *fakeGateway) CreateProject(_ context.Context, p *resources.Project) (*resources.Project, error) {
	if g.createProjectHook != nil {
		if err := g.createProjectHook(p); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	created := *p
	if created.ID == "" {
		created.ID = g.nextProjectID
	}
	g.projects[created.ID] = created
	return &created, nil
}

func (g *fakeGateway) PatchProject(_ context.Context, _, id string, _ []byte) (*resources.Project, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.projects[id]
	if !ok {
		return nil, notFound()
	}
	g.patched = append(g.patched, "project/"+id)
	return &p, nil
}

func (g *fakeGateway) DeleteProject(_ context.Context, _, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.projects[id]; !ok {
		return notFound()
	}
	delete(g.projects, id)
	return nil
}

func (g *fakeGateway) ListBindings(_ context.Context, projectID string) ([]resources.ProjectRoleTemplateBinding, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []resources.ProjectRoleTemplateBinding
	for _, b := range g.bindings {
		if b.Namespace == projectID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (g *fakeGateway) GetBinding(_ context.Context, _, id string) (*resources.ProjectRoleTemplateBinding, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.bindings[id]; ok {
		return &b, nil
	}
	return nil, notFound()
}

func (g *fakeGateway) CreateBinding(
	_ context.Context,
	b *resources.ProjectRoleTemplateBinding,
) (*resources.ProjectRoleTemplateBinding, error) {
	g.mu.Lock()
	g.createBindingN++
	g.mu.Unlock()
	if g.createBindingHook != nil {
		if err := g.createBindingHook(b); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	created := *b
	if created.ID == "" {
		created.ID = g.nextBindingID
	}
	g.bindings[created.ID] = created
	return &created, nil
}

func (g *fakeGateway) PatchBinding(
	_ context.Context,
	_, id string,
	_ []byte,
) (*resources.ProjectRoleTemplateBinding, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bindings[id]
	if !ok {
		return nil, notFound()
	}
	g.patched = append(g.patched, "binding/"+id)
	return &b, nil
}

func (g *fakeGateway) DeleteBinding(_ context.Context, _, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.bindings[id]; !ok {
		return notFound()
	}
	delete(g.bindings, id)
	return nil
}

// newTestReconciler wires a reconciler over a temp working tree, a fake
// gateway and a fake repo.
func newTestReconciler(t *testing.T, api *fakeGateway, repo *fakeRepo) *Reconciler {
	t.Helper()
	return &Reconciler{
		Repo: repo,
		API:  api,
		Tree: layout.Tree{
			Root:     t.TempDir(),
			Endpoint: "https://rancher.example.com",
			Format:   fileformat.YAML,
		},
		Clusters:   []string{"c-local"},
		Log:        logr.Discard(),
		Interval:   time.Hour,
		RetryDelay: time.Millisecond,
	}
}

func writeTreeFile(t *testing.T, r *Reconciler, rel, contents string) {
	t.Helper()
	abs := filepath.Join(r.Tree.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(contents), 0o644))
}

func TestTickCreatesProjectAndBinding(t *testing.T) {
	api := newFakeGateway()
	api.clusters["c-local"] = resources.Cluster{ID: "c-local", DisplayName: "local"}
	api.rts["rt-view"] = resources.RoleTemplate{ID: "rt-view", DisplayName: "Viewer"}
	api.nextProjectID = "p-xyz99"
	api.nextBindingID = "prtb-gen1"

	repo := &fakeRepo{}
	r := newTestReconciler(t, api, repo)

	projectPath := "rancher.example.com/c-local/p-team/p-team.project.yaml"
	bindingPath := "rancher.example.com/c-local/p-team/prtb-alice.prtb.yaml"
	writeTreeFile(t, r, projectPath, "displayName: Team A\n")
	writeTreeFile(t, r, bindingPath, "roleTemplateName: rt-view\nuserName: u-alice\n")
	repo.newFiles = []git.ChangedFile{
		{Kind: layout.DetectKind(projectPath), Path: projectPath},
		{Kind: layout.DetectKind(bindingPath), Path: bindingPath},
	}

	summary, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 2, summary.Created)

	// The binding landed in the server-assigned project, not the local
	// directory name.
	created := api.bindings["prtb-gen1"]
	assert.Equal(t, "p-xyz99", created.Namespace)
	assert.Equal(t, "c-local:p-xyz99", created.ProjectName)

	// Both files were rewritten with server identity.
	var p resources.Project
	data, err := os.ReadFile(filepath.Join(r.Tree.Root, filepath.FromSlash(projectPath)))
	require.NoError(t, err)
	require.NoError(t, fileformat.YAML.Unmarshal(data, &p))
	assert.Equal(t, "p-xyz99", p.ID)

	var b resources.ProjectRoleTemplateBinding
	data, err = os.ReadFile(filepath.Join(r.Tree.Root, filepath.FromSlash(bindingPath)))
	require.NoError(t, err)
	require.NoError(t, fileformat.YAML.Unmarshal(data, &b))
	assert.Equal(t, "prtb-gen1", b.ID)

	// One commit+push before the phases, one after for write-backs.
	assert.Len(t, repo.commits, 2)
	assert.Equal(t, 2, repo.pushes)
}

func TestTickPatchesDriftedCluster(t *testing.T) {
	api := newFakeGateway()
	api.clusters["c-local"] = resources.Cluster{ID: "c-local", DisplayName: "local", Description: "old"}

	repo := &fakeRepo{}
	r := newTestReconciler(t, api, repo)
	writeTreeFile(t, r, "rancher.example.com/c-local/c-local.cluster.yaml",
		"id: c-local\ndisplayName: local\ndescription: new\n")

	summary, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 1, summary.Patched)
	assert.Equal(t, []string{"cluster/c-local"}, api.patched)
	assert.Equal(t, 1, repo.modifiedCalls, "the tick classifies modifications alongside new and deleted files")
}

func TestProjectCreationsRunInParallel(t *testing.T) {
	api := newFakeGateway()
	api.clusters["c-local"] = resources.Cluster{ID: "c-local", DisplayName: "local"}

	var mu sync.Mutex
	inflight, maxInflight := 0, 0
	api.createProjectHook = func(*resources.Project) error {
		mu.Lock()
		inflight++
		if inflight > maxInflight {
			maxInflight = inflight
		}
		mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return nil
	}

	repo := &fakeRepo{}
	r := newTestReconciler(t, api, repo)

	one := "rancher.example.com/c-local/p-one/p-one.project.yaml"
	two := "rancher.example.com/c-local/p-two/p-two.project.yaml"
	writeTreeFile(t, r, one, "id: p-one\ndisplayName: One\n")
	writeTreeFile(t, r, two, "id: p-two\ndisplayName: Two\n")
	repo.newFiles = []git.ChangedFile{
		{Kind: layout.DetectKind(one), Path: one},
		{Kind: layout.DetectKind(two), Path: two},
	}

	summary, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 2, maxInflight, "creations of one kind overlap")
}

func TestPushFailureDoesNotAbortTick(t *testing.T) {
	api := newFakeGateway()
	api.clusters["c-local"] = resources.Cluster{ID: "c-local", DisplayName: "local", Description: "old"}

	repo := &fakeRepo{pushErr: errors.New("remote hung up")}
	r := newTestReconciler(t, api, repo)
	writeTreeFile(t, r, "rancher.example.com/c-local/c-local.cluster.yaml",
		"id: c-local\ndisplayName: local\ndescription: new\n")

	summary, err := r.Tick(context.Background())
	require.NoError(t, err, "push failures are logged, not fatal")
	assert.Equal(t, 1, summary.Patched)
	assert.Equal(t, 2, repo.pushes)
}

func TestWaitReadableRetriesStaleReads(t *testing.T) {
	r := newTestReconciler(t, newFakeGateway(), &fakeRepo{})

	reads := 0
	r.waitReadable(context.Background(), "project/p-x", "5", func(context.Context) (string, error) {
		reads++
		if reads == 1 {
			return "3", nil
		}
		return "5", nil
	})
	assert.Equal(t, 2, reads, "a read behind the created resource version is polled again")
}

func TestStaleRead(t *testing.T) {
	assert.True(t, staleRead("3", "5"))
	assert.False(t, staleRead("5", "5"))
	assert.False(t, staleRead("7", "5"))
	assert.False(t, staleRead("", "5"))
	assert.False(t, staleRead("3", ""))
	assert.False(t, staleRead("abc", "5"), "non-numeric versions are not ordered")
}

func TestTickDeletesAndTreats404AsSuccess(t *testing.T) {
	api := newFakeGateway()
	api.bindings["prtb-old"] = resources.ProjectRoleTemplateBinding{ID: "prtb-old", Namespace: "p-abc12"}

	repo := &fakeRepo{
		deletedFiles: []git.DeletedFile{
			{
				Kind:     layout.DetectKind("rancher.example.com/c-local/p-abc12/prtb-old.prtb.yaml"),
				Path:     "rancher.example.com/c-local/p-abc12/prtb-old.prtb.yaml",
				Contents: []byte("id: prtb-old\nnamespace: p-abc12\n"),
			},
			{
				// Already gone server-side.
				Kind:     layout.DetectKind("rancher.example.com/roles/rt-gone.rt.yaml"),
				Path:     "rancher.example.com/roles/rt-gone.rt.yaml",
				Contents: []byte("id: rt-gone\n"),
			},
		},
	}
	r := newTestReconciler(t, api, repo)

	summary, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 2, summary.Deleted)
	assert.Empty(t, api.bindings)
}

func TestBindingCreationRetriesWhileReferencesSettle(t *testing.T) {
	api := newFakeGateway()
	api.clusters["c-local"] = resources.Cluster{ID: "c-local", DisplayName: "local"}
	api.projects["p-abc12"] = resources.Project{ID: "p-abc12", ClusterName: "c-local", DisplayName: "Team A"}
	api.nextBindingID = "prtb-gen1"

	failures := 2
	api.createBindingHook = func(*resources.ProjectRoleTemplateBinding) error {
		if failures > 0 {
			failures--
			return notFound()
		}
		return nil
	}

	repo := &fakeRepo{}
	r := newTestReconciler(t, api, repo)

	bindingPath := "rancher.example.com/c-local/p-abc12/prtb-alice.prtb.yaml"
	writeTreeFile(t, r, bindingPath, "roleTemplateName: rt-view\nuserName: u-alice\n")
	repo.newFiles = []git.ChangedFile{{Kind: layout.DetectKind(bindingPath), Path: bindingPath}}

	summary, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 3, api.createBindingN)
}

func TestTickCollectsFailuresAndContinues(t *testing.T) {
	api := newFakeGateway()
	api.clusters["c-local"] = resources.Cluster{ID: "c-local", DisplayName: "local"}
	api.nextProjectID = "p-ok1"

	repo := &fakeRepo{}
	r := newTestReconciler(t, api, repo)

	badPath := "rancher.example.com/c-local/p-bad/p-bad.project.yaml"
	goodPath := "rancher.example.com/c-local/p-good/p-good.project.yaml"
	writeTreeFile(t, r, badPath, "{invalid")
	writeTreeFile(t, r, goodPath, "displayName: Good\n")
	repo.newFiles = []git.ChangedFile{
		{Kind: layout.DetectKind(badPath), Path: badPath},
		{Kind: layout.DetectKind(goodPath), Path: goodPath},
	}

	summary, err := r.Tick(context.Background())
	require.NoError(t, err, "per-object failures never abort the tick")
	assert.Equal(t, 1, summary.Created)
	assert.NotEmpty(t, summary.Failures)
}

func TestTickContainsPanics(t *testing.T) {
	api := newFakeGateway()
	api.getClusterHook = func(string) (*resources.Cluster, error) {
		panic("gateway blew up")
	}

	r := newTestReconciler(t, api, &fakeRepo{})

	summary, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, summary.Failures)
	assert.Contains(t, summary.Failures[0].Err.Error(), "panic")
}

func TestDryRunTouchesNothing(t *testing.T) {
	api := newFakeGateway()
	api.clusters["c-local"] = resources.Cluster{ID: "c-local", DisplayName: "local", Description: "old"}
	api.nextProjectID = "p-xyz99"

	repo := &fakeRepo{}
	r := newTestReconciler(t, api, repo)
	r.DryRun = true

	writeTreeFile(t, r, "rancher.example.com/c-local/c-local.cluster.yaml",
		"id: c-local\ndisplayName: local\ndescription: new\n")
	projectPath := "rancher.example.com/c-local/p-team/p-team.project.yaml"
	writeTreeFile(t, r, projectPath, "displayName: Team A\n")
	repo.newFiles = []git.ChangedFile{{Kind: layout.DetectKind(projectPath), Path: projectPath}}

	summary, err := r.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Patched)
	assert.Equal(t, 1, summary.Created)
	assert.Empty(t, api.patched, "dry run never calls mutating operations")
	assert.Empty(t, api.projects)
	assert.Empty(t, repo.commits)
	assert.Equal(t, 0, repo.pushes)
}
