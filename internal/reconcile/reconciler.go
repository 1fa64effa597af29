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

/*
Package reconcile drives the alignment of three states: the live objects
behind the management API, the local working tree, and the remote Git
repository. Each tick pulls the remote, classifies the working tree, commits
and pushes the local view, then walks every managed cluster through an
update, create and delete phase. Failures on individual objects are
collected, never fatal for the tick.
*/
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-logr/logr"

	"github.com/projectshepherd/shepherd/internal/git"
	"github.com/projectshepherd/shepherd/internal/layout"
	"github.com/projectshepherd/shepherd/internal/metrics"
	"github.com/projectshepherd/shepherd/internal/types"
)

const (
	// concurrentPatches bounds the fan-out of the update phase.
	concurrentPatches = 8

	// Readiness polling for freshly created role templates and projects.
	readinessAttempts = 10
	readinessDelay    = time.Second

	// Binding creation retries while the referenced objects settle.
	bindingCreateAttempts = 5
)

// Repository is the Git surface the reconciler needs. *git.Worker implements
// it.
type Repository interface {
	Ensure(ctx context.Context) error
	Pull(ctx context.Context) error
	NewFiles(subtrees ...string) ([]git.ChangedFile, error)
	ModifiedFiles(subtrees ...string) ([]git.ChangedFile, error)
	DeletedFiles(subtrees ...string) ([]git.DeletedFile, error)
	CommitAll(message string) (plumbing.Hash, error)
	Push(ctx context.Context) error
}

var _ Repository = (*git.Worker)(nil)

// Failure records one object the tick could not settle.
type Failure struct {
	Ref  types.ObjectRef
	Path string
	Err  error
}

// TickSummary accumulates what one tick did. Safe for concurrent updates.
type TickSummary struct {
	mu       sync.Mutex
	Created  int
	Patched  int
	Deleted  int
	Failures []Failure
}

func (s *TickSummary) addCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Created++
}

func (s *TickSummary) addPatched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Patched++
}

func (s *TickSummary) addDeleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted++
}

func (s *TickSummary) fail(ref types.ObjectRef, path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, Failure{Ref: ref, Path: path, Err: err})
}

// Reconciler owns the tick loop for one endpoint.
type Reconciler struct {
	Repo     Repository
	API      Gateway
	Tree     layout.Tree
	Clusters []string
	Log      logr.Logger

	Interval   time.Duration
	RetryDelay time.Duration
	DryRun     bool
}

// Run ticks until the context is cancelled. Shutdown happens between ticks;
// a running tick finishes first. Tick errors are logged, never fatal for the
// loop.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		summary, err := r.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.Log.Error(err, "Tick failed")
		} else {
			r.Log.Info("Tick complete",
				"created", summary.Created,
				"patched", summary.Patched,
				"deleted", summary.Deleted,
				"failures", len(summary.Failures))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.Interval):
		}
	}
}

// Tick runs one full reconcile pass. Setup failures (repository, pull, push)
// abort the tick; per-object failures land in the summary.
func (r *Reconciler) Tick(ctx context.Context) (*TickSummary, error) {
	start := time.Now()
	metrics.Add(ctx, metrics.TicksTotal, 1)
	defer func() {
		metrics.Observe(ctx, metrics.TickDurationSeconds, time.Since(start).Seconds())
	}()

	if err := r.Repo.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("repository setup failed: %w", err)
	}
	if err := r.Repo.Pull(ctx); err != nil {
		return nil, fmt.Errorf("pull failed: %w", err)
	}

	// Classification must precede the commit: committing stages everything
	// and erases the untracked/modified/deleted distinction.
	scopes := r.scopes()
	created, err := r.Repo.NewFiles(scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to classify new files: %w", err)
	}
	deleted, err := r.Repo.DeletedFiles(scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to classify deleted files: %w", err)
	}
	modified, err := r.Repo.ModifiedFiles(scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to classify modified files: %w", err)
	}
	for _, f := range modified {
		r.Log.V(1).Info("Local modification will be committed", "path", f.Path, "kind", f.Kind)
	}

	if !r.DryRun {
		if err := r.commitAndPush(ctx, "local changes"); err != nil {
			return nil, err
		}
	}

	summary := &TickSummary{}

	// Role templates are endpoint-global. They are reconciled once, before
	// any cluster, so project and binding creation can reference them.
	r.runTask(summary, types.ObjectRef{Kind: types.KindRoleTemplate}, r.Tree.RolesPath(), func() error {
		r.reconcileRoleTemplates(ctx, created, summary)
		return nil
	})

	for _, cluster := range r.Clusters {
		cluster := cluster
		r.runTask(summary, types.ObjectRef{Kind: types.KindCluster, ID: cluster}, r.Tree.ClusterDir(cluster),
			func() error {
				r.reconcileCluster(ctx, cluster, created, summary)
				return nil
			})
	}

	r.deleteObjects(ctx, deleted, summary)

	if !r.DryRun {
		if err := r.commitAndPush(ctx, "record server-assigned identity"); err != nil {
			return nil, err
		}
	}

	metrics.Add(ctx, metrics.OperationFailuresTotal, int64(len(summary.Failures)))
	for _, f := range summary.Failures {
		r.Log.Error(f.Err, "Object failed to reconcile", "object", f.Ref.String(), "path", f.Path)
	}
	return summary, nil
}

// scopes limits working-tree classification to the subtrees this reconciler
// manages: the endpoint's roles directory and one subtree per configured
// cluster.
func (r *Reconciler) scopes() []string {
	out := []string{r.Tree.RolesPath()}
	for _, c := range r.Clusters {
		out = append(out, r.Tree.ClusterDir(c))
	}
	return out
}

func (r *Reconciler) commitAndPush(ctx context.Context, reason string) error {
	message := fmt.Sprintf("shepherd: %s (%s)", reason, time.Now().UTC().Format(time.RFC3339))
	hash, err := r.Repo.CommitAll(message)
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	if hash != plumbing.ZeroHash {
		r.Log.V(1).Info("Committed", "hash", hash.String(), "reason", reason)
	}

	pushStart := time.Now()
	if err := r.Repo.Push(ctx); err != nil {
		// The commit is local either way; the next tick's push carries it.
		r.Log.Error(err, "Push failed, continuing", "reason", reason)
		return nil
	}
	metrics.Observe(ctx, metrics.GitPushDurationSeconds, time.Since(pushStart).Seconds())
	return nil
}

// runTask executes one per-object operation with panic containment. A panic
// in one object's handling must not take down the tick.
func (r *Reconciler) runTask(summary *TickSummary, ref types.ObjectRef, path string, op func() error) {
	defer func() {
		if p := recover(); p != nil {
			summary.fail(ref, path, fmt.Errorf("panic: %v", p))
		}
	}()
	if err := op(); err != nil {
		summary.fail(ref, path, err)
	}
}
