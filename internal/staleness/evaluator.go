// Package staleness computes how far an image's recorded commit has fallen
// behind the live repository, and whether incremental update is still safe.
package staleness

import (
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ujohnny/dkr/internal/errors"
)

// Result of evaluating an image commit against a reference branch.
type Result struct {
	// Behind is the number of commits reachable from the reference branch
	// but not from the image commit.
	Behind int
	// IsAncestor is true iff the image commit precedes the branch tip.
	// False signals a history rewrite: a fetch+rebase cannot cleanly apply,
	// so a full rebuild is the safe path.
	IsAncestor bool
}

// Evaluate compares imageCommit against the current tip of refBranch in the
// repository at repoPath. An unknown commit or unresolvable branch yields
// ErrStalenessAmbiguous; callers treat that as a warning equivalent to
// divergence, never as a hard failure.
func Evaluate(repoPath, imageCommit, refBranch string) (Result, error) {
	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrGitRepoNotFound, "failed to open repository", err)
	}

	tipHash, err := repo.ResolveRevision(plumbing.Revision(refBranch))
	if err != nil {
		return Result{}, errors.WrapWithDetails(errors.ErrStalenessAmbiguous,
			"cannot resolve reference branch", refBranch, err)
	}
	tip, err := repo.CommitObject(*tipHash)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrStalenessAmbiguous, "cannot load branch tip", err)
	}

	imgHash, err := repo.ResolveRevision(plumbing.Revision(imageCommit))
	if err != nil {
		// The commit the image was built from no longer exists here,
		// typically because it was force-discarded.
		return Result{}, errors.WrapWithDetails(errors.ErrStalenessAmbiguous,
			"image commit unknown to repository", imageCommit, err)
	}
	img, err := repo.CommitObject(*imgHash)
	if err != nil {
		return Result{}, errors.WrapWithDetails(errors.ErrStalenessAmbiguous,
			"image commit unknown to repository", imageCommit, err)
	}

	isAncestor, err := img.IsAncestor(tip)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrStalenessAmbiguous, "ancestry check failed", err)
	}

	behind, err := countBehind(img, tip)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrStalenessAmbiguous, "commit count failed", err)
	}

	return Result{Behind: behind, IsAncestor: isAncestor}, nil
}

// countBehind counts commits reachable from tip but not from img, the
// equivalent of rev-list --count img..tip.
func countBehind(img, tip *object.Commit) (int, error) {
	seen := map[plumbing.Hash]bool{}
	iter := object.NewCommitPreorderIter(img, nil, nil)
	err := iter.ForEach(func(c *object.Commit) error {
		seen[c.Hash] = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	count := 0
	iter = object.NewCommitPreorderIter(tip, seen, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
