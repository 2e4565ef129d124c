// Package image models dkr-managed images: the label metadata persisted on
// every build and the discovery index layered over the engine's label
// filter facility.
package image

import (
	"path/filepath"
	"regexp"
	"time"
)

// Label keys persisted on every built image.
const (
	LabelRepoPath   = "dkr.repo_path"
	LabelRepoName   = "dkr.repo_name"
	LabelBranch     = "dkr.branch"
	LabelBranchFrom = "dkr.branch_from"
	LabelCommit     = "dkr.commit"
	LabelCreatedAt  = "dkr.created_at"
	LabelType       = "dkr.type"
)

// Kind distinguishes full builds from incremental layers.
type Kind string

const (
	KindBase   Kind = "base"
	KindUpdate Kind = "update"
)

// Record describes one built image, reconstructed from its labels.
type Record struct {
	RepoPath   string
	RepoName   string
	Branch     string
	// BranchFrom is the ref string the user originally supplied; it differs
	// from Branch for remote-qualified refs like origin/main.
	BranchFrom string
	Commit     string
	CreatedAt  time.Time
	Kind       Kind
	ID         string
	Tags       []string
}

// Ref returns the preferred way to address the image: its first tag if it
// still owns one, otherwise the raw engine identifier.
func (r *Record) Ref() string {
	if len(r.Tags) > 0 {
		return r.Tags[0]
	}
	return r.ID
}

// MatchesBranch reports whether the supplied branch token names this record
// by either its resolved branch or the originally-typed ref.
func (r *Record) MatchesBranch(branch string) bool {
	return branch == r.Branch || branch == r.BranchFrom
}

var tagSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeTag maps any character docker tags reject to a dash.
func sanitizeTag(name string) string {
	return tagSanitizer.ReplaceAllString(name, "-")
}

// Tag builds the canonical tag for a repo+branch pair. Rebuilding the same
// pair retags: the most recent image always owns the tag, older ones stay
// addressable by ID only.
func Tag(repoPath, branch string) string {
	return "dkr:" + sanitizeTag(filepath.Base(repoPath)) + "-" + sanitizeTag(branch)
}

// Labels produces the label set applied at build time.
func Labels(repoPath, branch, branchFrom, commit string, kind Kind, now time.Time) map[string]string {
	if branchFrom == "" {
		branchFrom = branch
	}
	return map[string]string{
		LabelRepoPath:   repoPath,
		LabelRepoName:   filepath.Base(repoPath),
		LabelBranch:     branch,
		LabelBranchFrom: branchFrom,
		LabelCommit:     commit,
		// Nanosecond precision keeps builds within the same second ordered.
		LabelCreatedAt: now.UTC().Format(time.RFC3339Nano),
		LabelType:      string(kind),
	}
}
