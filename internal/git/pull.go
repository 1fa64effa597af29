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

package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Pull fetches the tracked branch and merges it. Fast-forward advances the
// branch reference and checks out; divergence goes through conflict
// resolution with the remote side preferred; up-to-date is a no-op.
func (w *Worker) Pull(ctx context.Context) error {
	auth, err := w.Creds.AuthMethod(w.RemoteURL)
	if err != nil {
		return err
	}

	refSpec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", w.Branch, remoteName, w.Branch))
	err = w.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       auth,
	})
	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
	case isEmptyRemoteError(err):
		// Nothing on the remote yet; the first push will create the branch.
		return nil
	default:
		return fmt.Errorf("fetch failed: %w", err)
	}

	remoteRef, err := w.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, w.Branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve remote branch: %w", err)
	}

	localRef, err := w.repo.Reference(plumbing.NewBranchReferenceName(w.Branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Unborn local branch: adopt the remote tip.
		return w.advanceBranch(remoteRef.Hash())
	}
	if err != nil {
		return fmt.Errorf("failed to resolve local branch: %w", err)
	}

	if localRef.Hash() == remoteRef.Hash() {
		w.Log.V(1).Info("Branch already up to date")
		return nil
	}

	local, err := w.repo.CommitObject(localRef.Hash())
	if err != nil {
		return fmt.Errorf("failed to load local commit: %w", err)
	}
	remote, err := w.repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return fmt.Errorf("failed to load remote commit: %w", err)
	}

	fastForward, err := local.IsAncestor(remote)
	if err != nil {
		return fmt.Errorf("merge analysis failed: %w", err)
	}
	if fastForward {
		w.Log.Info("Fast-forwarding", "from", localRef.Hash().String(), "to", remoteRef.Hash().String())
		return w.advanceBranch(remoteRef.Hash())
	}

	localAhead, err := remote.IsAncestor(local)
	if err != nil {
		return fmt.Errorf("merge analysis failed: %w", err)
	}
	if localAhead {
		// Remote is behind us; the push later in the tick will catch it up.
		return nil
	}

	w.Log.Info("Branches diverged, resolving conflicts with remote preferred")
	return w.resolveConflicts(local, remote)
}

// advanceBranch moves the branch reference to hash and checks out the new
// tip. Uncommitted changes to tracked files survive the checkout unless the
// incoming commit touched the same path, in which case the remote side wins.
func (w *Worker) advanceBranch(hash plumbing.Hash) error {
	overlay, err := w.saveLocalChanges(hash)
	if err != nil {
		return err
	}

	ref := plumbing.NewBranchReferenceName(w.Branch)
	if err := w.repo.Storer.SetReference(plumbing.NewHashReference(ref, hash)); err != nil {
		return fmt.Errorf("failed to move branch reference: %w", err)
	}
	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: ref, Force: true}); err != nil {
		return fmt.Errorf("failed to check out %s: %w", w.Branch, err)
	}

	for path, contents := range overlay {
		if contents == nil {
			if err := wt.Filesystem.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to restore deletion of %s: %w", path, err)
			}
			continue
		}
		if err := util.WriteFile(wt.Filesystem, path, contents, 0o644); err != nil {
			return fmt.Errorf("failed to restore %s: %w", path, err)
		}
	}
	return nil
}

// saveLocalChanges captures uncommitted edits and deletions of tracked files
// so advanceBranch can re-apply them after the checkout. Paths the target
// commit changed relative to HEAD are dropped. A nil entry is a deletion.
// Untracked files survive the checkout on their own.
func (w *Worker) saveLocalChanges(target plumbing.Hash) (map[string][]byte, error) {
	status, err := w.status()
	if err != nil {
		return nil, err
	}

	var dirty []string
	for path, st := range status {
		if st.Worktree == gogit.Untracked {
			continue
		}
		if st.Worktree == gogit.Unmodified && st.Staging == gogit.Unmodified {
			continue
		}
		dirty = append(dirty, path)
	}
	if len(dirty) == 0 {
		return nil, nil
	}

	headTree, err := w.headTree()
	if err != nil {
		return nil, err
	}
	commit, err := w.repo.CommitObject(target)
	if err != nil {
		return nil, fmt.Errorf("failed to load target commit: %w", err)
	}
	targetTree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load target tree: %w", err)
	}
	changes, err := object.DiffTree(headTree, targetTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}
	incoming := make(map[string]bool, len(changes))
	for _, c := range changes {
		if c.From.Name != "" {
			incoming[c.From.Name] = true
		}
		if c.To.Name != "" {
			incoming[c.To.Name] = true
		}
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	overlay := make(map[string][]byte)
	for _, path := range dirty {
		if incoming[path] {
			continue
		}
		contents, err := util.ReadFile(wt.Filesystem, path)
		if errors.Is(err, os.ErrNotExist) {
			overlay[path] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		overlay[path] = contents
	}
	return overlay, nil
}

// resolveConflicts merges a diverged remote into the local branch. For every
// path, the remote ("theirs") content wins; paths only we have survive;
// paths neither side has disappear. The result is committed with both
// parents and becomes the new branch tip.
func (w *Worker) resolveConflicts(ours, theirs *object.Commit) error {
	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	theirsTree, err := theirs.Tree()
	if err != nil {
		return fmt.Errorf("failed to load remote tree: %w", err)
	}

	// The checkout already holds our side. Overlaying every remote file
	// implements "prefer theirs, fall back to ours".
	iter := theirsTree.Files()
	for {
		file, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to walk remote tree: %w", err)
		}
		contents, err := file.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %s from remote tree: %w", file.Name, err)
		}
		mode, err := file.Mode.ToOSFileMode()
		if err != nil {
			return fmt.Errorf("bad file mode for %s: %w", file.Name, err)
		}
		if err := util.WriteFile(wt.Filesystem, file.Name, []byte(contents), mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Name, err)
		}
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage merge result: %w", err)
	}

	hash, err := wt.Commit(
		fmt.Sprintf("Merge remote-tracking branch '%s/%s'", remoteName, w.Branch),
		&gogit.CommitOptions{
			Author:  w.signature(),
			Parents: []plumbing.Hash{ours.Hash, theirs.Hash},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}

	w.Log.Info("Created merge commit", "hash", hash.String())
	return nil
}
