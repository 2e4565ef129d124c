package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ujohnny/dkr/internal/errors"
	"github.com/ujohnny/dkr/internal/logger"
)

// BuildConfigFile is the per-branch build configuration file, read from the
// repository root at the tip of the branch being built.
const BuildConfigFile = ".dkr.conf"

// DefaultBaseImage is used when .dkr.conf does not declare one.
const DefaultBaseImage = "fedora:43"

// BaselinePackages are always installed, regardless of what the config
// declares. git and openssh are required for the clone and the bootstrap
// fetch, tmux hosts the interactive session, curl installs the agent.
var BaselinePackages = []string{"git", "tmux", "openssh-clients", "curl"}

// Volume is a host-path-or-name to container-path mount declaration.
type Volume struct {
	Source string
	Target string
}

// String renders the volume in docker -v syntax.
func (v Volume) String() string {
	return v.Source + ":" + v.Target
}

// BuildConfig is the declarative per-(repository, branch) build configuration.
// A missing or empty .dkr.conf yields the documented defaults, never an error.
type BuildConfig struct {
	// BaseImage is the FROM image for create builds.
	BaseImage string
	// Packages are the user-declared packages, installed in addition to
	// BaselinePackages.
	Packages []string
	// Volumes are mounted into every container started from the image.
	Volumes []Volume
	// PreClone and PostClone are raw, unvalidated Dockerfile directive
	// lines passed through to the build driver verbatim. Malformed
	// directives surface only as a build failure at execution time.
	PreClone  []string
	PostClone []string
}

// DefaultBuildConfig returns the configuration used when no .dkr.conf exists.
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		BaseImage: DefaultBaseImage,
	}
}

// AllPackages merges the baseline set with the declared packages,
// baseline first, duplicates removed.
func (c *BuildConfig) AllPackages() []string {
	out := make([]string, 0, len(BaselinePackages)+len(c.Packages))
	seen := map[string]bool{}
	for _, p := range BaselinePackages {
		out = append(out, p)
		seen[p] = true
	}
	for _, p := range c.Packages {
		if !seen[p] {
			out = append(out, p)
			seen[p] = true
		}
	}
	return out
}

// LoadBuildConfig reads .dkr.conf from the repository root. The branch to
// build should already be checked out so the file reflects that branch's tip.
func LoadBuildConfig(repoPath string) (*BuildConfig, error) {
	f, err := os.Open(filepath.Join(repoPath, BuildConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultBuildConfig(), nil
		}
		return nil, errors.Wrap(errors.ErrConfigParse, "failed to read "+BuildConfigFile, err)
	}
	defer f.Close()
	return ParseBuildConfig(f)
}

// recognized top-level keys; anything else is a parse warning.
var buildConfigKeys = map[string]bool{
	"base_image": true,
	"packages":   true,
	"volumes":    true,
}

// sections whose lines are collected raw.
var buildConfigSections = map[string]bool{
	"pre_clone":  true,
	"post_clone": true,
}

// ParseBuildConfig parses the .dkr.conf format: top-level `key = value`
// pairs plus [pre_clone] / [post_clone] sections holding raw Dockerfile
// lines preserved as-is.
func ParseBuildConfig(r io.Reader) (*BuildConfig, error) {
	cfg := DefaultBuildConfig()

	section := ""
	lineno := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		lineno++
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}

		if strings.HasPrefix(stripped, "[") {
			if !strings.HasSuffix(stripped, "]") {
				return nil, errors.NewWithDetails(errors.ErrConfigParse,
					"unterminated section header",
					fmt.Sprintf("line %d: %s", lineno, stripped))
			}
			section = stripped[1 : len(stripped)-1]
			if !buildConfigSections[section] {
				logger.Warnf("%s: unrecognized section [%s], ignoring its contents", BuildConfigFile, section)
			}
			continue
		}

		if section != "" {
			// Raw Dockerfile line, preserved byte-for-byte.
			switch section {
			case "pre_clone":
				cfg.PreClone = append(cfg.PreClone, line)
			case "post_clone":
				cfg.PostClone = append(cfg.PostClone, line)
			}
			continue
		}

		key, value, found := strings.Cut(stripped, "=")
		if !found {
			return nil, errors.NewWithDetails(errors.ErrConfigParse,
				"expected key = value",
				fmt.Sprintf("line %d: %s", lineno, stripped))
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "base_image":
			if value != "" {
				cfg.BaseImage = value
			}
		case "packages":
			cfg.Packages = strings.Fields(value)
		case "volumes":
			vols, err := parseVolumes(value, lineno)
			if err != nil {
				return nil, err
			}
			cfg.Volumes = vols
		default:
			logger.Warnf("%s: unrecognized key %q, ignoring", BuildConfigFile, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, "failed to read "+BuildConfigFile, err)
	}

	return cfg, nil
}

func parseVolumes(value string, lineno int) ([]Volume, error) {
	var vols []Volume
	for _, spec := range strings.Fields(value) {
		src, dst, found := strings.Cut(spec, ":")
		if !found || src == "" || dst == "" {
			return nil, errors.NewWithDetails(errors.ErrConfigParse,
				"volume entries must be src:dst",
				fmt.Sprintf("line %d: %s", lineno, spec))
		}
		vols = append(vols, Volume{Source: src, Target: dst})
	}
	return vols, nil
}
