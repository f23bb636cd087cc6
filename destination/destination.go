package destination

import (
	"errors"
	"fmt"
)

// ErrConfigError wraps destination resolution failures: a missing image,
// a malformed mount shape, or any other problem caught before a subprocess
// is ever spawned.
var ErrConfigError = errors.New("destination: config error")

// Kind discriminates a Destination's variant.
type Kind string

const (
	Local  Kind = "local"
	Docker Kind = "docker"
)

// Mount describes one bind mount injected into a docker destination.
type Mount struct {
	Source   string `yaml:"source" json:"source"`
	Target   string `yaml:"target" json:"target"`
	ReadOnly bool   `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// Destination is the execution target for a repo's backend subprocesses.
// Worktrees inherit their base repo's Destination unless overridden; the
// repo path itself is always bind-mounted when Kind is Docker.
type Destination struct {
	Kind Kind `yaml:"kind" json:"kind"`

	// Docker-only fields, ignored when Kind is Local.
	Image          string            `yaml:"image,omitempty" json:"image,omitempty"`
	ContainerName  string            `yaml:"container_name,omitempty" json:"container_name,omitempty"`
	Workdir        string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Profile        string            `yaml:"profile,omitempty" json:"profile,omitempty"`
	EnvPassthrough []string          `yaml:"env_passthrough,omitempty" json:"env_passthrough,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Mounts         []Mount           `yaml:"mounts,omitempty" json:"mounts,omitempty"`
}

// Validate fails fast with ErrConfigError for shapes that could not
// possibly be spawned, before any subprocess is started (§4.3 "Destination
// wrapping": missing image or invalid mount shape fails fast).
func (d Destination) Validate() error {
	switch d.Kind {
	case Local:
		return nil
	case Docker:
		if d.Image == "" && d.ContainerName == "" {
			return fmt.Errorf("%w: docker destination requires image or container_name", ErrConfigError)
		}
		for _, m := range d.Mounts {
			if m.Source == "" || m.Target == "" {
				return fmt.Errorf("%w: mount missing source or target", ErrConfigError)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrConfigError, d.Kind)
	}
}
