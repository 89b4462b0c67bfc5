// Package diff models the per-attempt set of changed files.
package diff

import (
	"fmt"
	"io"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// Change is how a file changed.
type Change string

const (
	ChangeAdded    Change = "added"
	ChangeDeleted  Change = "deleted"
	ChangeModified Change = "modified"
	ChangeRenamed  Change = "renamed"
	ChangeCopied   Change = "copied"
)

// Entry is one changed file. Entries are keyed by Path.
type Entry struct {
	Path      string `json:"path"`
	OldPath   string `json:"old_path,omitempty"`
	Change    Change `json:"change"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Binary    bool   `json:"binary,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Parse reads unified diff text (as produced by git diff) into entries.
func Parse(r io.Reader) ([]Entry, error) {
	files, _, err := gitdiff.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, fromFile(f))
	}
	return entries, nil
}

func fromFile(f *gitdiff.File) Entry {
	e := Entry{
		Path:    f.NewName,
		Change:  ChangeModified,
		Binary:  f.IsBinary,
		Content: f.String(),
	}

	switch {
	case f.IsNew:
		e.Change = ChangeAdded
	case f.IsDelete:
		e.Change = ChangeDeleted
		e.Path = f.OldName
	case f.IsRename:
		e.Change = ChangeRenamed
		e.OldPath = f.OldName
	case f.IsCopy:
		e.Change = ChangeCopied
		e.OldPath = f.OldName
	}

	for _, frag := range f.TextFragments {
		e.Additions += int(frag.LinesAdded)
		e.Deletions += int(frag.LinesDeleted)
	}
	return e
}
