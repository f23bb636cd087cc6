package destination

import (
	"errors"
	"testing"
)

func TestValidate_Local(t *testing.T) {
	d := Destination{Kind: Local}
	if err := d.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_DockerMissingImage(t *testing.T) {
	d := Destination{Kind: Docker}
	if err := d.Validate(); !errors.Is(err, ErrConfigError) {
		t.Errorf("Validate() error = %v, want ErrConfigError", err)
	}
}

func TestValidate_DockerWithImage(t *testing.T) {
	d := Destination{Kind: Docker, Image: "ghcr.io/example/image:latest"}
	if err := d.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_DockerInvalidMount(t *testing.T) {
	d := Destination{
		Kind:  Docker,
		Image: "ghcr.io/example/image:latest",
		Mounts: []Mount{
			{Source: "", Target: "/work"},
		},
	}
	if err := d.Validate(); !errors.Is(err, ErrConfigError) {
		t.Errorf("Validate() error = %v, want ErrConfigError", err)
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	d := Destination{Kind: Kind("remote")}
	if err := d.Validate(); !errors.Is(err, ErrConfigError) {
		t.Errorf("Validate() error = %v, want ErrConfigError", err)
	}
}

func TestNewDockerRunner_RequiresContainerName(t *testing.T) {
	_, err := NewDockerRunner(nil, Destination{Kind: Docker, Image: "img"})
	if !errors.Is(err, ErrConfigError) {
		t.Errorf("NewDockerRunner() error = %v, want ErrConfigError", err)
	}
}

func TestNewDockerRunner_RejectsLocalDestination(t *testing.T) {
	_, err := NewDockerRunner(nil, Destination{Kind: Local})
	if !errors.Is(err, ErrConfigError) {
		t.Errorf("NewDockerRunner() error = %v, want ErrConfigError", err)
	}
}
