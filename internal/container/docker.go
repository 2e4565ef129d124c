// Package container drives the Docker engine as a black box over its CLI.
// Image storage, layer transfer and the runtime itself stay external; this
// package only assembles invocations and classifies their failures.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DockerRuntime executes build and run requests against the docker CLI.
type DockerRuntime struct {
	executor CommandExecutor
}

// NewDockerRuntime creates a new Docker runtime
func NewDockerRuntime(executor CommandExecutor) *DockerRuntime {
	if executor == nil {
		executor = &DefaultCommandExecutor{}
	}
	return &DockerRuntime{
		executor: executor,
	}
}

// IsAvailable checks if Docker is available on the system
func (r *DockerRuntime) IsAvailable(ctx context.Context) bool {
	cmd := r.executor.CommandContext(ctx, "docker", "--version")
	return cmd.Run() == nil
}

// BuildRequest describes one docker build invocation.
type BuildRequest struct {
	ContextDir string
	Dockerfile string
	Tag        string
	SSHKey     string
	BuildArgs  map[string]string
	Labels     map[string]string
}

// BuildArgv assembles the docker build argument vector. Split out so tests
// can assert on the exact invocation without running anything.
func BuildArgv(req *BuildRequest) []string {
	args := []string{"build"}
	if req.SSHKey != "" {
		args = append(args, "--ssh", fmt.Sprintf("default=%s", req.SSHKey))
	}
	args = append(args, "--network=host")
	for _, k := range sortedKeys(req.BuildArgs) {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, req.BuildArgs[k]))
	}
	for _, k := range sortedKeys(req.Labels) {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, req.Labels[k]))
	}
	args = append(args, "--tag", req.Tag, "-f", req.Dockerfile, req.ContextDir)
	return args
}

// Build runs a docker build, streaming the driver's output through so its
// diagnostics reach the user unreworded.
func (r *DockerRuntime) Build(ctx context.Context, req *BuildRequest) error {
	cmd := r.executor.CommandContext(ctx, "docker", BuildArgv(req)...)
	cmd.Env = append(os.Environ(), "DOCKER_BUILDKIT=1")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return &ContainerError{
			Type:       ErrorTypeBuildFailed,
			Operation:  "build",
			Message:    fmt.Sprintf("docker build failed for %s", req.Tag),
			Underlying: err,
		}
	}
	return nil
}

// RunRequest describes one docker run invocation.
type RunRequest struct {
	ImageRef    string
	Hostname    string
	EnvVars     []string // KEY=VALUE
	Volumes     []string // HOST:CONTAINER[:opts]
	Interactive bool
	Command     []string
}

// RunArgv assembles the docker run argument vector.
func RunArgv(req *RunRequest) []string {
	args := []string{"run", "--rm"}
	if req.Interactive {
		args = append(args, "-it")
	}
	args = append(args, "--network=host")
	if req.Hostname != "" {
		args = append(args, "--hostname", req.Hostname)
	}
	for _, vol := range req.Volumes {
		args = append(args, "-v", vol)
	}
	for _, env := range req.EnvVars {
		args = append(args, "-e", env)
	}
	args = append(args, req.ImageRef)
	args = append(args, req.Command...)
	return args
}

// Run starts a container in the foreground with inherited stdio and blocks
// until it exits.
func (r *DockerRuntime) Run(ctx context.Context, req *RunRequest) error {
	cmd := r.executor.CommandContext(ctx, "docker", RunArgv(req)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return &ContainerError{
			Type:       ErrorTypeUnknown,
			Operation:  "run",
			Message:    fmt.Sprintf("container from %s exited with error", req.ImageRef),
			Underlying: err,
		}
	}
	return nil
}

// ImageInfo is the subset of docker inspect output the image index needs.
type ImageInfo struct {
	ID       string
	RepoTags []string
	Labels   map[string]string
}

// ListImageIDs returns IDs of images carrying the given label key,
// deduplicated in docker's listing order.
func (r *DockerRuntime) ListImageIDs(ctx context.Context, labelKey string) ([]string, error) {
	cmd := r.executor.CommandContext(ctx, "docker", "images",
		"--format", "{{.ID}}", "--filter", "label="+labelKey)
	output, err := cmd.Output()
	if err != nil {
		return nil, &ContainerError{
			Type:       parseDockerError(string(output), err),
			Operation:  "images",
			Message:    "failed to list images",
			Underlying: err,
			Output:     string(output),
		}
	}

	var ids []string
	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		ids = append(ids, line)
	}
	return ids, nil
}

// InspectImages returns tag and label metadata for the given image IDs.
func (r *DockerRuntime) InspectImages(ctx context.Context, ids []string) ([]ImageInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmd := r.executor.CommandContext(ctx, "docker", append([]string{"inspect"}, ids...)...)
	output, err := cmd.Output()
	if err != nil {
		return nil, &ContainerError{
			Type:       parseDockerError(string(output), err),
			Operation:  "inspect",
			Message:    "failed to inspect images",
			Underlying: err,
			Output:     string(output),
		}
	}

	var raw []struct {
		ID       string   `json:"Id"`
		RepoTags []string `json:"RepoTags"`
		Config   struct {
			Labels map[string]string `json:"Labels"`
		} `json:"Config"`
	}
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse image info: %w", err)
	}

	infos := make([]ImageInfo, 0, len(raw))
	for _, img := range raw {
		infos = append(infos, ImageInfo{
			ID:       img.ID,
			RepoTags: img.RepoTags,
			Labels:   img.Config.Labels,
		})
	}
	return infos, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
