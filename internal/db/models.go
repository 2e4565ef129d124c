package db

import "time"

// Build is one recorded build invocation in the history ledger.
type Build struct {
	ID         string    `db:"id"`
	RepoPath   string    `db:"repo_path"`
	RepoName   string    `db:"repo_name"`
	Branch     string    `db:"branch"`
	BranchFrom string    `db:"branch_from"`
	CommitSHA  string    `db:"commit_sha"`
	ImageTag   string    `db:"image_tag"`
	Kind       string    `db:"kind"`
	CreatedAt  time.Time `db:"created_at"`
}
