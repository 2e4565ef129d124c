package image

import (
	"context"
	"sort"
	"time"

	"github.com/ujohnny/dkr/internal/container"
)

// Engine is the slice of the container runtime the index queries.
type Engine interface {
	ListImageIDs(ctx context.Context, labelKey string) ([]string, error)
	InspectImages(ctx context.Context, ids []string) ([]container.ImageInfo, error)
}

// Index discovers dkr-managed images through the engine's label metadata.
// Registration is implicit: the build driver applies the labels, and a
// successful build for a (repo, branch) pair retags the pair's tag to the
// new image. Two concurrent builds for the same pair race last-writer-wins
// on that tag; the loser stays reachable by raw ID only.
type Index struct {
	engine Engine
}

// NewIndex creates an index over the given engine.
func NewIndex(engine Engine) *Index {
	return &Index{engine: engine}
}

// Find returns records matching the filters, most recent first. An empty
// repoPath matches all repositories; an empty branch matches all branches.
// A branch token matches a record by resolved branch OR original ref, so a
// query by either spelling of a remote-qualified ref succeeds.
func (ix *Index) Find(ctx context.Context, repoPath, branch string) ([]Record, error) {
	ids, err := ix.engine.ListImageIDs(ctx, LabelRepoName)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	infos, err := ix.engine.InspectImages(ctx, ids)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, info := range infos {
		rec, ok := fromInfo(info)
		if !ok {
			continue
		}
		if repoPath != "" && rec.RepoPath != repoPath {
			continue
		}
		if branch != "" && !rec.MatchesBranch(branch) {
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Latest returns the most recent record matching the filters, or nil when
// no image exists.
func (ix *Index) Latest(ctx context.Context, repoPath, branch string) (*Record, error) {
	records, err := ix.Find(ctx, repoPath, branch)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// fromInfo rebuilds a Record from inspect output. Images without the
// dkr.repo_name label are not ours and are skipped.
func fromInfo(info container.ImageInfo) (Record, bool) {
	labels := info.Labels
	if labels == nil || labels[LabelRepoName] == "" {
		return Record{}, false
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, labels[LabelCreatedAt])

	return Record{
		RepoPath:   labels[LabelRepoPath],
		RepoName:   labels[LabelRepoName],
		Branch:     labels[LabelBranch],
		BranchFrom: labels[LabelBranchFrom],
		Commit:     labels[LabelCommit],
		CreatedAt:  createdAt,
		Kind:       Kind(labels[LabelType]),
		ID:         info.ID,
		Tags:       info.RepoTags,
	}, true
}
