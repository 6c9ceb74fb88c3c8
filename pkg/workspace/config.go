package workspace

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/mitchellh/mapstructure"

	"github.com/matzehuels/cratestack/pkg/errors"
)

// metadataKey is the key under [workspace.metadata] and [package.metadata]
// holding release configuration.
const metadataKey = "workspaces"

// Config is the workspace-level release configuration.
type Config struct {
	AllowBranch      string        `toml:"allow_branch"`
	NoIndividualTags bool          `toml:"no_individual_tags"`
	Exclude          ExcludeConfig `toml:"exclude"`
	Groups           []GroupConfig `toml:"group"`
}

// ExcludeConfig lists member patterns opted out of versioning.
type ExcludeConfig struct {
	Members []string `toml:"members"`
}

// GroupConfig declares a package group.
type GroupConfig struct {
	Name    string   `toml:"name"`
	Members []string `toml:"members"`
}

// PackageConfig is the package-level release configuration.
type PackageConfig struct {
	Independent bool `toml:"independent"`
}

// DecodeConfig decodes the `workspaces` entry of a [workspace.metadata]
// table. A missing entry yields the zero Config.
func DecodeConfig(metadata map[string]any) (Config, error) {
	var cfg Config
	if err := decodeMetadata(metadata, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeConfig, err, "workspace.metadata.workspaces")
	}
	return cfg, nil
}

// DecodePackageConfig decodes the `workspaces` entry of a
// [package.metadata] table.
func DecodePackageConfig(metadata map[string]any) (PackageConfig, error) {
	var cfg PackageConfig
	if err := decodeMetadata(metadata, &cfg); err != nil {
		return PackageConfig{}, errors.Wrap(errors.ErrCodeConfig, err, "package.metadata.workspaces")
	}
	return cfg, nil
}

func decodeMetadata(metadata map[string]any, out any) error {
	raw, ok := metadata[metadataKey]
	if !ok {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "toml",
		Result:  out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// validateGroups checks declared groups before any package is assigned.
func (c Config) validateGroups() error {
	seen := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if GroupName(g.Name).IsReserved() {
			return errors.New(errors.ErrCodeConfig, "group name %q is reserved", g.Name)
		}
		if err := errors.ValidateGroupName(g.Name); err != nil {
			return err
		}
		if seen[g.Name] {
			return errors.New(errors.ErrCodeConfig, "group %q is declared more than once", g.Name)
		}
		seen[g.Name] = true
		if len(g.Members) == 0 {
			return errors.New(errors.ErrCodeConfig, "group %q has no members", g.Name)
		}
		if err := validatePatterns(g.Members); err != nil {
			return err
		}
	}
	return validatePatterns(c.Exclude.Members)
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if err := errors.ValidatePath(p); err != nil {
			return errors.Wrap(errors.ErrCodeConfig, err, "member pattern %q", p)
		}
		if !doublestar.ValidatePattern(p) {
			return errors.New(errors.ErrCodeConfig, "invalid member pattern %q", p)
		}
	}
	return nil
}

// matchAny returns the first pattern matching relPath.
func matchAny(patterns []string, relPath string) (string, bool) {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return p, true
		}
	}
	return "", false
}
