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

// Package git owns the working tree: bootstrap, pull with conflict
// resolution, working-tree classification, commit and push. One Worker per
// repository; callers serialize access (one tick at a time).
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-logr/logr"
	"github.com/jpillora/backoff"

	"github.com/projectshepherd/shepherd/internal/ssh"
	"github.com/projectshepherd/shepherd/internal/version"
)

const (
	remoteName = "origin"

	pushAttempts = 3
	pushBackoff  = 2 * time.Second
)

// Worker manages one checkout of the configuration repository.
type Worker struct {
	Path      string
	RemoteURL string
	Branch    string
	Creds     ssh.Credentials
	Log       logr.Logger

	repo *gogit.Repository
}

// NewWorker builds a worker; Ensure must run before any other operation.
func NewWorker(path, remoteURL, branch string, creds ssh.Credentials, log logr.Logger) *Worker {
	return &Worker{
		Path:      path,
		RemoteURL: remoteURL,
		Branch:    branch,
		Creds:     creds,
		Log:       log.WithValues("repo", path, "branch", branch),
	}
}

// Ensure opens or creates the repository. An empty (or absent) directory is
// cloned from the remote; a remote with nothing to check out yields a fresh
// local repository wired to origin. A non-empty directory that is not a
// repository is an error.
func (w *Worker) Ensure(ctx context.Context) error {
	if w.repo != nil {
		return nil
	}

	empty, err := isEmptyDir(w.Path)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", w.Path, err)
	}

	if !empty {
		repo, err := gogit.PlainOpen(w.Path)
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return fmt.Errorf("directory %s is non-empty but not a git repository", w.Path)
		}
		if err != nil {
			return fmt.Errorf("failed to open repository at %s: %w", w.Path, err)
		}
		w.repo = repo
		return nil
	}

	auth, err := w.Creds.AuthMethod(w.RemoteURL)
	if err != nil {
		return err
	}

	w.Log.Info("Cloning repository", "url", w.RemoteURL)
	repo, err := gogit.PlainCloneContext(ctx, w.Path, false, &gogit.CloneOptions{
		URL:           w.RemoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(w.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err == nil {
		w.repo = repo
		return nil
	}
	if !isEmptyRemoteError(err) {
		return fmt.Errorf("failed to clone %s: %w", w.RemoteURL, err)
	}

	w.Log.Info("Remote has nothing to check out, initializing fresh repository")
	return w.initFresh()
}

// initFresh creates a new repository tracking the configured branch with
// origin set but no commits yet.
func (w *Worker) initFresh() error {
	// A failed clone can leave a partial .git behind.
	if err := os.RemoveAll(filepath.Join(w.Path, gogit.GitDirName)); err != nil {
		return fmt.Errorf("failed to clear partial clone: %w", err)
	}

	repo, err := gogit.PlainInit(w.Path, false)
	if err != nil {
		return fmt.Errorf("failed to init repository at %s: %w", w.Path, err)
	}

	if _, err := repo.CreateRemote(&config.RemoteConfig{
		Name: remoteName,
		URLs: []string{w.RemoteURL},
	}); err != nil && !errors.Is(err, gogit.ErrRemoteExists) {
		return fmt.Errorf("failed to set origin: %w", err)
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(w.Branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return fmt.Errorf("failed to point HEAD at %s: %w", w.Branch, err)
	}

	w.repo = repo
	return nil
}

// CommitAll stages every change (including deletions) and commits with the
// client signature. Returns the zero hash without committing when the tree
// is clean.
func (w *Worker) CommitAll(message string) (plumbing.Hash, error) {
	wt, err := w.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read status: %w", err)
	}
	if status.IsClean() {
		return plumbing.ZeroHash, nil
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to stage changes: %w", err)
	}

	hash, err := wt.Commit(message, &gogit.CommitOptions{Author: w.signature()})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to commit: %w", err)
	}

	w.Log.Info("Committed working tree", "hash", hash.String(), "message", message)
	return hash, nil
}

// Push sends the branch to origin, fast-forward only. Network failures are
// retried a few times with a short backoff; anything else is fatal for the
// tick.
func (w *Worker) Push(ctx context.Context) error {
	if _, err := w.repo.Reference(plumbing.NewBranchReferenceName(w.Branch), true); err != nil {
		// Unborn branch: nothing to push yet.
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil
		}
		return fmt.Errorf("failed to resolve branch %s: %w", w.Branch, err)
	}

	auth, err := w.Creds.AuthMethod(w.RemoteURL)
	if err != nil {
		return err
	}

	refSpec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", w.Branch, w.Branch))
	delay := &backoff.Backoff{Min: pushBackoff, Max: 10 * time.Second, Factor: 1.5}

	var lastErr error
	for attempt := 1; attempt <= pushAttempts; attempt++ {
		err := w.repo.PushContext(ctx, &gogit.PushOptions{
			RemoteName: remoteName,
			RefSpecs:   []config.RefSpec{refSpec},
			Auth:       auth,
		})
		if err == nil || errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return nil
		}
		if !isNetworkError(err) {
			return fmt.Errorf("push failed: %w", err)
		}
		lastErr = err
		w.Log.Info("Push hit a network error, retrying", "attempt", attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay.Duration()):
		}
	}
	return fmt.Errorf("push failed after %d attempts: %w", pushAttempts, lastErr)
}

func (w *Worker) signature() *object.Signature {
	return &object.Signature{
		Name:  version.UserAgent(),
		Email: version.ClientName + "@localhost",
		When:  time.Now(),
	}
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// isEmptyRemoteError matches the ways a clone of a commitless remote fails.
func isEmptyRemoteError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "remote repository is empty") ||
		strings.Contains(msg, "couldn't find remote ref") ||
		strings.Contains(msg, "reference not found")
}

// isNetworkError distinguishes transient transport failures from repository
// state errors on push.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"temporary failure",
		"unexpected EOF",
		"no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
