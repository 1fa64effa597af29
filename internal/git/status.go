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
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/projectshepherd/shepherd/internal/layout"
	"github.com/projectshepherd/shepherd/internal/types"
)

// ChangedFile is a working-tree path classified into its object kind.
type ChangedFile struct {
	Kind types.Kind
	Path string
}

// DeletedFile carries the pre-deletion contents from HEAD so the record's
// identity survives the file being gone.
type DeletedFile struct {
	Kind     types.Kind
	Path     string
	Contents []byte
}

// NewFiles returns untracked files under the given subtrees, classified and
// ordered by creation priority so referenced kinds come before referencing
// ones.
func (w *Worker) NewFiles(subtrees ...string) ([]ChangedFile, error) {
	status, err := w.status()
	if err != nil {
		return nil, err
	}

	var out []ChangedFile
	for path, st := range status {
		if st.Worktree != gogit.Untracked {
			continue
		}
		if !underAny(path, subtrees) {
			continue
		}
		out = append(out, ChangedFile{Kind: layout.DetectKind(path), Path: path})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if pi, pj := out[i].Kind.CreationPriority(), out[j].Kind.CreationPriority(); pi != pj {
			return pi < pj
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// ModifiedFiles returns files under the given subtrees whose worktree or
// index state is modified.
func (w *Worker) ModifiedFiles(subtrees ...string) ([]ChangedFile, error) {
	status, err := w.status()
	if err != nil {
		return nil, err
	}

	var out []ChangedFile
	for path, st := range status {
		if st.Worktree != gogit.Modified && st.Staging != gogit.Modified {
			continue
		}
		if !underAny(path, subtrees) {
			continue
		}
		out = append(out, ChangedFile{Kind: layout.DetectKind(path), Path: path})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// DeletedFiles returns files under the given subtrees deleted from the
// worktree, each with its HEAD blob contents.
func (w *Worker) DeletedFiles(subtrees ...string) ([]DeletedFile, error) {
	status, err := w.status()
	if err != nil {
		return nil, err
	}

	// HEAD is resolved lazily: an unborn branch tracks nothing, so status
	// cannot report deletions and the tree is never needed.
	var headTree *object.Tree

	var out []DeletedFile
	for path, st := range status {
		if st.Worktree != gogit.Deleted && st.Staging != gogit.Deleted {
			continue
		}
		if !underAny(path, subtrees) {
			continue
		}

		if headTree == nil {
			headTree, err = w.headTree()
			if err != nil {
				return nil, err
			}
		}

		file, err := headTree.File(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s at HEAD: %w", path, err)
		}
		reader, err := file.Reader()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s at HEAD: %w", path, err)
		}
		contents, err := io.ReadAll(reader)
		closeErr := reader.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s at HEAD: %w", path, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("failed to close reader for %s: %w", path, closeErr)
		}

		out = append(out, DeletedFile{Kind: layout.DetectKind(path), Path: path, Contents: contents})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (w *Worker) status() (gogit.Status, error) {
	wt, err := w.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	return status, nil
}

func (w *Worker) headTree() (*object.Tree, error) {
	head, err := w.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, errors.New("repository has no commits; nothing can be deleted")
		}
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := w.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD tree: %w", err)
	}
	return tree, nil
}

// underAny reports whether a slash-separated repo path sits under any of the
// given subtrees. An empty subtree list matches everything.
func underAny(path string, subtrees []string) bool {
	if len(subtrees) == 0 {
		return true
	}
	for _, sub := range subtrees {
		if sub == "" || path == sub || strings.HasPrefix(path, sub+"/") {
			return true
		}
	}
	return false
}
