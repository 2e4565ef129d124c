package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// BuildRepository handles database operations for the build ledger
type BuildRepository struct {
	db *DB
}

// NewBuildRepository creates a new build repository
func NewBuildRepository(db *DB) *BuildRepository {
	return &BuildRepository{db: db}
}

// Record appends a build to the ledger. The ID is assigned here when empty.
func (r *BuildRepository) Record(ctx context.Context, b *Build) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	query := `
		INSERT INTO builds (id, repo_path, repo_name, branch, branch_from, commit_sha, image_tag, kind, created_at)
		VALUES (:id, :repo_path, :repo_name, :branch, :branch_from, :commit_sha, :image_tag, :kind, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	return nil
}

// List returns builds with optional filtering, most recent first.
func (r *BuildRepository) List(ctx context.Context, repoPath, branch string) ([]Build, error) {
	query := `
		SELECT id, repo_path, repo_name, branch, branch_from, commit_sha, image_tag, kind, created_at
		FROM builds
		WHERE 1=1`
	args := []interface{}{}

	if repoPath != "" {
		query += " AND repo_path = ?"
		args = append(args, repoPath)
	}

	if branch != "" {
		query += " AND (branch = ? OR branch_from = ?)"
		args = append(args, branch, branch)
	}

	query += " ORDER BY created_at DESC"

	var builds []Build
	if err := r.db.SelectContext(ctx, &builds, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	return builds, nil
}
