package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const ProfileSchemaV1 = "draftline.pipeline.v1"

// Profile is the declarative pipeline configuration: the quality gate and
// packaging conventions applied to every run.
type Profile struct {
	Schema    string          `yaml:"schema"`
	Quality   QualityGate     `yaml:"quality"`
	Packaging PackagingConfig `yaml:"packaging"`
}

type QualityGate struct {
	// Threshold is the minimum score accepted by evaluate-quality.
	Threshold float64 `yaml:"threshold"`
	// Enforce gates delivery on the collaborator verdict. When false the
	// verdict is recorded but never fails the run.
	Enforce bool `yaml:"enforce"`
}

type PackagingConfig struct {
	KeyPrefix    string `yaml:"key_prefix"`
	DefaultLabel string `yaml:"default_label"`
}

// DefaultProfile is used when no profile file is configured.
func DefaultProfile() Profile {
	return Profile{
		Schema: ProfileSchemaV1,
		Quality: QualityGate{
			Threshold: 0.7,
			Enforce:   true,
		},
		Packaging: PackagingConfig{
			KeyPrefix:    "packages",
			DefaultLabel: "standard-delivery",
		},
	}
}

func ParseProfile(input []byte) (Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(input, &profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func LoadProfile(path string) (Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultProfile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(raw)
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Schema) != ProfileSchemaV1 {
		return fmt.Errorf("profile.schema must be %q", ProfileSchemaV1)
	}
	if p.Quality.Threshold < 0 || p.Quality.Threshold > 1 {
		return errors.New("profile.quality.threshold must be within [0,1]")
	}
	if strings.TrimSpace(p.Packaging.KeyPrefix) == "" {
		return errors.New("profile.packaging.key_prefix is required")
	}
	if strings.Contains(p.Packaging.KeyPrefix, "..") {
		return fmt.Errorf("profile.packaging.key_prefix must not traverse: %q", p.Packaging.KeyPrefix)
	}
	if strings.TrimSpace(p.Packaging.DefaultLabel) == "" {
		return errors.New("profile.packaging.default_label is required")
	}
	return nil
}
