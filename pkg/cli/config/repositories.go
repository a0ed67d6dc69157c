package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// Repositories holds the curated repository list
type Repositories struct {
	File         string
	Repos        []string
	DefaultOwner string
}

// repositoryFile is the layout of the repository list file:
//
//	owner: acme
//	repositories:
//	  - widget
//	  - other-org/gadget
type repositoryFile struct {
	Owner        string   `yaml:"owner" toml:"owner"`
	Repositories []string `yaml:"repositories" toml:"repositories"`
}

// Flags returns CLI flags for the repository list
func (c *Repositories) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repositories-file",
			Usage:       "Repository list file (.yaml, .yml or .toml)",
			Destination: &c.File,
			Sources:     cli.EnvVars("RELWATCH_REPOSITORIES_FILE"),
		},
		&cli.StringSliceFlag{
			Name:        "repo",
			Usage:       "Repository as owner/name, or name with --default-owner. Repeatable",
			Destination: &c.Repos,
			Sources:     cli.EnvVars("RELWATCH_REPOS"),
		},
		&cli.StringFlag{
			Name:        "default-owner",
			Usage:       "Owner applied to repositories given without one",
			Destination: &c.DefaultOwner,
			Sources:     cli.EnvVars("RELWATCH_DEFAULT_OWNER"),
		},
	}
}

// Load returns the file entries followed by the flag entries, without
// duplicates and in order of appearance
func (c *Repositories) Load() ([]model.RepositoryRef, error) {
	var entries []string
	owner := c.DefaultOwner

	if c.File != "" {
		f, err := readRepositoryFile(c.File)
		if err != nil {
			return nil, err
		}
		if f.Owner != "" && owner == "" {
			owner = f.Owner
		}
		entries = append(entries, f.Repositories...)
	}
	entries = append(entries, c.Repos...)

	seen := make(map[string]struct{}, len(entries))
	repos := make([]model.RepositoryRef, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		ref, err := model.ParseRepositoryRef(entry, owner)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[ref.Key()]; ok {
			continue
		}
		seen[ref.Key()] = struct{}{}
		repos = append(repos, ref)
	}

	return repos, nil
}

func readRepositoryFile(path string) (*repositoryFile, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read repositories file", goerr.V("path", path))
	}

	var f repositoryFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &f)
	case ".toml":
		err = toml.Unmarshal(raw, &f)
	default:
		return nil, goerr.New("unsupported repositories file format", goerr.V("path", path), goerr.V("ext", ext))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse repositories file", goerr.V("path", path))
	}

	return &f, nil
}
