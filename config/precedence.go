package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	committedConfigName = "codex-autorunner"
	overrideConfigName  = "codex-autorunner.override"
)

// LoadRepo resolves RepoConfig for repoRoot under the §6 precedence order:
// built-in defaults < <repoRoot>/codex-autorunner.yml <
// <repoRoot>/codex-autorunner.override.yml <
// <repoRoot>/.codex-autorunner/config.yml < CAR_-prefixed environment
// variables.
func LoadRepo(repoRoot string) (RepoConfig, error) {
	v := newLayeredViper(repoRoot, defaultsFromStruct(DefaultRepoConfig()))

	if err := mergeLayers(v, repoRoot); err != nil {
		return RepoConfig{}, err
	}

	cfg := DefaultRepoConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return RepoConfig{}, fmt.Errorf("%w: unmarshal repo config: %w", ErrConfigError, err)
	}
	cfg.Mode = ModeRepo
	return cfg, nil
}

// LoadHub resolves HubConfig for hubRoot under the same §6 precedence order.
func LoadHub(hubRoot string) (HubConfig, error) {
	v := newLayeredViper(hubRoot, defaultsFromStruct(DefaultHubConfig()))

	if err := mergeLayers(v, hubRoot); err != nil {
		return HubConfig{}, err
	}

	cfg := DefaultHubConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return HubConfig{}, fmt.Errorf("%w: unmarshal hub config: %w", ErrConfigError, err)
	}
	cfg.Mode = ModeHub
	return cfg, nil
}

// newLayeredViper builds a fresh viper instance scoped to one Load call —
// deliberately not the package-level viper singleton the pack's own CLI
// wiring uses, since a hub process resolves many repos' configs in one
// run and a shared global would race them against each other.
func newLayeredViper(root string, defaults map[string]any) *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CAR")
	v.AutomaticEnv()
	return v
}

// mergeLayers applies the three on-disk YAML layers in ascending priority,
// skipping any that don't exist — matching §6's "committed <
// override < local" ordering. Environment variables are bound by
// AutomaticEnv in newLayeredViper and always take precedence over whatever
// Unmarshal reads from these merged layers, since viper resolves env vars
// at Get/Unmarshal time regardless of merge order.
func mergeLayers(v *viper.Viper, root string) error {
	layers := []string{
		filepath.Join(root, committedConfigName+".yml"),
		filepath.Join(root, overrideConfigName+".yml"),
		filepath.Join(root, ".codex-autorunner", "config.yml"),
	}
	for _, path := range layers {
		if err := mergeLayerFile(v, path); err != nil {
			return err
		}
	}
	return nil
}

func mergeLayerFile(v *viper.Viper, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: open %s: %w", ErrConfigError, path, err)
	}
	defer f.Close()

	if err := v.MergeConfig(f); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: merge %s: %w", ErrConfigError, path, err)
	}
	return nil
}

// defaultsFromStruct flattens the mapstructure-tagged defaults into the
// dotted keys Viper's SetDefault expects. Repo/HubConfig are flat enough
// that a direct field walk isn't worth the reflection; each Default*Config
// constructor's fields are listed here explicitly so new fields don't
// silently lose their default.
func defaultsFromStruct(v any) map[string]any {
	switch c := v.(type) {
	case RepoConfig:
		return map[string]any{
			"agent_id":                 c.AgentID,
			"destination":              map[string]any{"kind": string(c.Destination.Kind)},
			"stop_after_runs":          c.StopAfterRuns,
			"prompt_tail_lines":        c.PromptTailLines,
			"prompt_byte_cap":          c.PromptByteCap,
			"backoff_max_attempts":     c.BackoffMaxAttempts,
			"backoff_max_wait_seconds": c.BackoffMaxWaitSeconds,
		}
	case HubConfig:
		return map[string]any{
			"repos_root":        c.ReposRoot,
			"auto_init_missing": c.AutoInitMissing,
			"scan_cron":         c.ScanCron,
		}
	default:
		return nil
	}
}
