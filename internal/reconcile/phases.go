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
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/projectshepherd/shepherd/internal/diff"
	"github.com/projectshepherd/shepherd/internal/fileformat"
	"github.com/projectshepherd/shepherd/internal/git"
	"github.com/projectshepherd/shepherd/internal/metrics"
	"github.com/projectshepherd/shepherd/internal/rancher"
	"github.com/projectshepherd/shepherd/internal/resources"
	"github.com/projectshepherd/shepherd/internal/retry"
	"github.com/projectshepherd/shepherd/internal/types"
)

// reconcileRoleTemplates settles the endpoint-global role templates: patches
// for stored templates that drifted, creation for new files under roles/.
// Running before any cluster means projects and bindings created later can
// reference fresh templates.
func (r *Reconciler) reconcileRoleTemplates(ctx context.Context, created []git.ChangedFile, summary *TickSummary) {
	desired := r.loadDesiredRoleTemplates(summary)

	live, err := r.API.ListRoleTemplates(ctx)
	if err != nil {
		summary.fail(types.ObjectRef{Kind: types.KindRoleTemplate}, r.Tree.RolesPath(), err)
		return
	}

	patches, err := diff.Compute(
		diff.ClusterSnapshot{RoleTemplates: live},
		diff.ClusterSnapshot{RoleTemplates: desired},
	)
	if err != nil {
		summary.fail(types.ObjectRef{Kind: types.KindRoleTemplate}, r.Tree.RolesPath(), err)
	} else {
		r.dispatchPatches(ctx, patches, summary)
	}

	var files []git.ChangedFile
	for _, f := range created {
		if f.Kind == types.KindRoleTemplate {
			files = append(files, f)
		}
	}
	r.dispatchCreates(summary, files,
		func(f git.ChangedFile) types.ObjectRef {
			return types.ObjectRef{Kind: types.KindRoleTemplate, ID: stem(f.Path)}
		},
		func(f git.ChangedFile) error {
			return r.createRoleTemplate(ctx, f, summary)
		})
}

// reconcileCluster runs the update then create phase for one cluster
// subtree. Creation is ordered: every project settles (with its
// server-assigned id) before any binding referencing it is attempted.
func (r *Reconciler) reconcileCluster(
	ctx context.Context,
	clusterID string,
	created []git.ChangedFile,
	summary *TickSummary,
) {
	clusterRef := types.ObjectRef{Kind: types.KindCluster, ID: clusterID}

	desired := r.loadDesired(clusterID, summary)
	live, err := r.loadLive(ctx, clusterID)
	if err != nil {
		summary.fail(clusterRef, r.Tree.ClusterDir(clusterID), err)
		return
	}

	patches, err := diff.Compute(live, desired)
	if err != nil {
		summary.fail(clusterRef, r.Tree.ClusterDir(clusterID), err)
	} else {
		r.dispatchPatches(ctx, patches, summary)
	}

	// Local project ids (directory names) to server-assigned ids, filled as
	// projects are created so binding files in new directories resolve.
	createdProjects := newProjectIDMap()

	var projects, bindings []git.ChangedFile
	prefix := r.Tree.ClusterDir(clusterID) + "/"
	for _, f := range created {
		if !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		switch f.Kind {
		case types.KindProject:
			projects = append(projects, f)
		case types.KindPRTB:
			bindings = append(bindings, f)
		case types.KindCluster:
			// Clusters come into being on the server side only; a new
			// cluster file will be diffed once the cluster exists.
			r.Log.Info("Ignoring new cluster file, clusters are not created through the API", "path", f.Path)
		}
	}

	// Every project settles before any binding is attempted.
	r.dispatchCreates(summary, projects,
		func(f git.ChangedFile) types.ObjectRef {
			return types.ObjectRef{Kind: types.KindProject, ID: path.Base(path.Dir(f.Path)), Namespace: clusterID}
		},
		func(f git.ChangedFile) error {
			return r.createProject(ctx, clusterID, f, createdProjects, summary)
		})
	r.dispatchCreates(summary, bindings,
		func(f git.ChangedFile) types.ObjectRef {
			return types.ObjectRef{Kind: types.KindPRTB, ID: stem(f.Path), Namespace: path.Base(path.Dir(f.Path))}
		},
		func(f git.ChangedFile) error {
			return r.createBinding(ctx, clusterID, f, createdProjects, summary)
		})
}

// projectIDMap maps local project ids to server-assigned ids. Shared by the
// parallel create tasks of one cluster.
type projectIDMap struct {
	mu  sync.Mutex
	ids map[string]string
}

func newProjectIDMap() *projectIDMap {
	return &projectIDMap{ids: make(map[string]string)}
}

func (m *projectIDMap) set(local, server string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[local] = server
}

func (m *projectIDMap) get(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, ok := m.ids[id]
	return server, ok
}

// dispatchCreates runs one kind's creations in parallel with the same
// fan-out bound as the update phase. Callers sequence the batches so
// referenced kinds settle before referencing ones.
func (r *Reconciler) dispatchCreates(
	summary *TickSummary,
	files []git.ChangedFile,
	ref func(git.ChangedFile) types.ObjectRef,
	create func(git.ChangedFile) error,
) {
	g := &errgroup.Group{}
	g.SetLimit(concurrentPatches)

	for _, f := range files {
		f := f
		g.Go(func() error {
			r.runTask(summary, ref(f), f.Path, func() error {
				return create(f)
			})
			return nil
		})
	}
	_ = g.Wait()
}

// dispatchPatches applies the computed patches with bounded concurrency.
// Patches are independent: they only touch objects that already exist on
// both sides.
func (r *Reconciler) dispatchPatches(
	ctx context.Context,
	patches map[types.ObjectRef]json.RawMessage,
	summary *TickSummary,
) {
	g := &errgroup.Group{}
	g.SetLimit(concurrentPatches)

	for ref, patch := range patches {
		ref, patch := ref, patch
		g.Go(func() error {
			r.runTask(summary, ref, "", func() error {
				if r.DryRun {
					r.Log.Info("Dry run: would patch", "object", ref.String(), "patch", string(patch))
					summary.addPatched()
					return nil
				}
				if err := r.applyPatch(ctx, ref, patch); err != nil {
					return err
				}
				summary.addPatched()
				metrics.Add(ctx, metrics.ObjectsPatchedTotal, 1)
				r.Log.Info("Patched object", "object", ref.String())
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) applyPatch(ctx context.Context, ref types.ObjectRef, patch json.RawMessage) error {
	switch ref.Kind {
	case types.KindCluster:
		_, err := r.API.PatchCluster(ctx, ref.ID, patch)
		return err
	case types.KindRoleTemplate:
		_, err := r.API.PatchRoleTemplate(ctx, ref.ID, patch)
		return err
	case types.KindProject:
		_, err := r.API.PatchProject(ctx, ref.Namespace, ref.ID, patch)
		return err
	case types.KindPRTB:
		_, err := r.API.PatchBinding(ctx, ref.Namespace, ref.ID, patch)
		return err
	default:
		return fmt.Errorf("cannot patch unknown kind %q", ref.Kind)
	}
}

// createRoleTemplate creates the template stored in a new roles/ file and
// waits for it to become readable before anything can reference it.
func (r *Reconciler) createRoleTemplate(ctx context.Context, f git.ChangedFile, summary *TickSummary) error {
	var rt resources.RoleTemplate
	if err := decodeFile(r.absPath(f.Path), &rt); err != nil {
		return err
	}
	if rt.ID == "" {
		rt.ID = stem(f.Path)
	}

	if r.DryRun {
		r.Log.Info("Dry run: would create role template", "id", rt.ID, "path", f.Path)
		summary.addCreated()
		return nil
	}

	created, err := r.API.CreateRoleTemplate(ctx, &rt)
	if err != nil {
		return err
	}
	r.waitReadable(ctx, "roletemplate/"+created.ID, created.ResourceVersion,
		func(ctx context.Context) (string, error) {
			got, err := r.API.GetRoleTemplate(ctx, created.ID)
			if err != nil {
				return "", err
			}
			return got.ResourceVersion, nil
		})

	if err := r.writeBack(f.Path, created); err != nil {
		return err
	}
	r.countCreated(ctx, summary, created.Ref())
	return nil
}

// createProject creates the project stored in a new directory. The server
// assigns the real id through the generate-name convention; the local
// directory name maps to it for bindings created in the same tick, and the
// originating file is rewritten with the server's record.
func (r *Reconciler) createProject(
	ctx context.Context,
	clusterID string,
	f git.ChangedFile,
	createdProjects *projectIDMap,
	summary *TickSummary,
) error {
	var p resources.Project
	if err := decodeFile(r.absPath(f.Path), &p); err != nil {
		return err
	}
	if p.ClusterName == "" {
		p.ClusterName = clusterID
	}
	localID := path.Base(path.Dir(f.Path))

	if r.DryRun {
		r.Log.Info("Dry run: would create project", "cluster", clusterID, "path", f.Path)
		summary.addCreated()
		return nil
	}

	created, err := r.API.CreateProject(ctx, &p)
	if err != nil {
		return err
	}
	r.waitReadable(ctx, "project/"+created.ID, created.ResourceVersion,
		func(ctx context.Context) (string, error) {
			got, err := r.API.GetProject(ctx, clusterID, created.ID)
			if err != nil {
				return "", err
			}
			return got.ResourceVersion, nil
		})

	if err := r.writeBack(f.Path, created); err != nil {
		return err
	}
	createdProjects.set(localID, created.ID)
	if p.ID != "" {
		createdProjects.set(p.ID, created.ID)
	}
	r.countCreated(ctx, summary, created.Ref())
	return nil
}

// createBinding creates one binding, remapping local project ids to their
// server-assigned counterparts. Creation is retried a few times: a binding
// can hit the server before the project or role template it references is
// visible.
func (r *Reconciler) createBinding(
	ctx context.Context,
	clusterID string,
	f git.ChangedFile,
	createdProjects *projectIDMap,
	summary *TickSummary,
) error {
	var b resources.ProjectRoleTemplateBinding
	if err := decodeFile(r.absPath(f.Path), &b); err != nil {
		return err
	}

	if b.Namespace == "" {
		b.Namespace = path.Base(path.Dir(f.Path))
	}
	if server, ok := createdProjects.get(b.Namespace); ok {
		b.Namespace = server
	}
	if cID, pID, ok := resources.SplitProjectName(b.ProjectName); ok {
		if server, ok := createdProjects.get(pID); ok {
			b.ProjectName = resources.QualifiedProjectName(cID, server)
		}
	} else {
		b.ProjectName = resources.QualifiedProjectName(clusterID, b.Namespace)
	}

	if r.DryRun {
		r.Log.Info("Dry run: would create binding", "project", b.Namespace, "path", f.Path)
		summary.addCreated()
		return nil
	}

	created, err := retry.Do(ctx, r.Log, "create binding "+f.Path,
		bindingCreateAttempts, r.RetryDelay,
		func(ctx context.Context) (*resources.ProjectRoleTemplateBinding, error) {
			return r.API.CreateBinding(ctx, &b)
		},
		func(err error) bool {
			return retry.IsNotFoundError(err) || rancher.IsInternalServerError(err)
		},
	)
	if err != nil {
		return err
	}

	if err := r.writeBack(f.Path, created); err != nil {
		return err
	}
	r.countCreated(ctx, summary, created.Ref())
	return nil
}

// deleteObjects mirrors working-tree deletions to the server. Identity comes
// from the pre-deletion file contents captured at HEAD. An already-gone
// object counts as deleted.
func (r *Reconciler) deleteObjects(ctx context.Context, deleted []git.DeletedFile, summary *TickSummary) {
	for _, d := range deleted {
		d := d
		ref, err := resources.IdentityFromFile(d.Kind, d.Path, d.Contents)
		if err != nil {
			summary.fail(types.ObjectRef{Kind: d.Kind}, d.Path, err)
			continue
		}

		r.runTask(summary, ref, d.Path, func() error {
			if r.DryRun {
				r.Log.Info("Dry run: would delete", "object", ref.String(), "path", d.Path)
				summary.addDeleted()
				return nil
			}

			var err error
			switch ref.Kind {
			case types.KindRoleTemplate:
				err = r.API.DeleteRoleTemplate(ctx, ref.ID)
			case types.KindProject:
				err = r.API.DeleteProject(ctx, ref.Namespace, ref.ID)
			case types.KindPRTB:
				err = r.API.DeleteBinding(ctx, ref.Namespace, ref.ID)
			case types.KindCluster:
				r.Log.Info("Ignoring deleted cluster file, clusters are not deleted through the API", "path", d.Path)
				return nil
			default:
				return fmt.Errorf("cannot delete unknown kind %q", ref.Kind)
			}
			if err != nil && !rancher.IsNotFound(err) {
				return err
			}

			summary.addDeleted()
			metrics.Add(ctx, metrics.ObjectsDeletedTotal, 1)
			r.Log.Info("Deleted object", "object", ref.String())
			return nil
		})
	}
}

// waitReadable polls until a freshly created object reads back at least as
// new as the resource version the create returned. A timeout is logged but
// not fatal: creation succeeded and the next tick will see the object.
func (r *Reconciler) waitReadable(
	ctx context.Context,
	label, minResourceVersion string,
	get func(context.Context) (string, error),
) {
	_, err := retry.WaitForPresence(ctx, r.Log, label, readinessAttempts, readinessDelay,
		func(ctx context.Context) (struct{}, error) {
			observed, err := get(ctx)
			if err != nil {
				return struct{}{}, err
			}
			if staleRead(observed, minResourceVersion) {
				return struct{}{}, fmt.Errorf(
					"object not found at resource version %s yet (read %s)", minResourceVersion, observed)
			}
			return struct{}{}, nil
		})
	if err != nil {
		r.Log.Info("Created object not readable yet, continuing", "object", label, "error", err.Error())
	}
}

// staleRead reports whether a read-back lags the resource version returned
// by the create. Resource versions are opaque strings; only numerically
// comparable pairs are ordered.
func staleRead(observed, minimum string) bool {
	if observed == "" || minimum == "" {
		return false
	}
	o, errO := strconv.ParseUint(observed, 10, 64)
	m, errM := strconv.ParseUint(minimum, 10, 64)
	if errO != nil || errM != nil {
		return false
	}
	return o < m
}

// writeBack rewrites a tree file with the server's canonical record, keeping
// the file's own encoding.
func (r *Reconciler) writeBack(relPath string, v any) error {
	format, err := fileformat.FromPath(relPath)
	if err != nil {
		return err
	}
	data, err := format.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", relPath, err)
	}
	abs := r.absPath(relPath)
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("failed to rewrite %s: %w", relPath, err)
	}
	return nil
}

func (r *Reconciler) absPath(relPath string) string {
	return filepath.Join(r.Tree.Root, filepath.FromSlash(relPath))
}

func (r *Reconciler) countCreated(ctx context.Context, summary *TickSummary, ref types.ObjectRef) {
	summary.addCreated()
	metrics.Add(ctx, metrics.ObjectsCreatedTotal, 1)
	r.Log.Info("Created object", "object", ref.String())
}
