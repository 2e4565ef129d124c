package operations

import (
	"context"

	"github.com/ujohnny/dkr/internal/db"
	"github.com/ujohnny/dkr/internal/image"
)

// ListImages returns dkr-managed images matching the optional filters,
// most recent first.
func (o *Operations) ListImages(ctx context.Context, repoArg, branch string) ([]image.Record, error) {
	repoPath := ""
	if repoArg != "" {
		var err error
		repoPath, err = o.git.ResolveRepo(repoArg)
		if err != nil {
			return nil, err
		}
	}
	return o.index.Find(ctx, repoPath, branch)
}

// History returns the build ledger entries matching the optional filters,
// most recent first. Returns nil when the ledger is unavailable.
func (o *Operations) History(ctx context.Context, repoArg, branch string) ([]db.Build, error) {
	if o.builds == nil {
		return nil, nil
	}
	repoPath := ""
	if repoArg != "" {
		var err error
		repoPath, err = o.git.ResolveRepo(repoArg)
		if err != nil {
			return nil, err
		}
	}
	return o.builds.List(ctx, repoPath, branch)
}
