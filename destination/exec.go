package destination

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Runner executes a command against a resolved destination and streams its
// combined stdout/stderr line-by-line to onLine, returning the command's
// exit code.
type Runner interface {
	Run(ctx context.Context, dir string, argv []string, env map[string]string, onLine func(line string)) (exitCode int, err error)
}

// LocalRunner is the Runner for local destinations. It runs nothing: the
// orchestrator's own os/exec spawn path (in backend/cli) handles this case
// directly, so LocalRunner exists only to satisfy callers that select a
// Runner uniformly regardless of destination kind.
type LocalRunner struct{}

// Run is not implemented: local destinations are run by the backend's own
// subprocess engine (backend/cli), not through this package. Call sites
// branch on Kind before reaching here.
func (LocalRunner) Run(context.Context, string, []string, map[string]string, func(string)) (int, error) {
	return 0, fmt.Errorf("destination: LocalRunner.Run is not used; local destinations bypass the Runner interface")
}

// DockerRunner executes commands inside a named running container via the
// Docker Engine API's exec methods (never by shelling out to the `docker`
// CLI binary).
type DockerRunner struct {
	Client        *client.Client
	ContainerName string
}

// NewDockerRunner builds a DockerRunner for dest, validating it first.
func NewDockerRunner(cli *client.Client, dest Destination) (*DockerRunner, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	if dest.Kind != Docker {
		return nil, fmt.Errorf("%w: NewDockerRunner requires a docker destination, got %q", ErrConfigError, dest.Kind)
	}
	name := dest.ContainerName
	if name == "" {
		return nil, fmt.Errorf("%w: docker destination missing container_name", ErrConfigError)
	}
	return &DockerRunner{Client: cli, ContainerName: name}, nil
}

// Run creates an exec session in the target container, attaches to it, and
// streams output line-by-line until the command exits.
func (r *DockerRunner) Run(ctx context.Context, dir string, argv []string, env map[string]string, onLine func(line string)) (int, error) {
	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}

	execCfg := container.ExecOptions{
		Cmd:          argv,
		WorkingDir:   dir,
		Env:          envSlice,
		AttachStdout: true,
		AttachStderr: true,
		// A TTY makes the attached stream plain combined output rather
		// than stdout/stderr frames with binary headers.
		Tty: true,
	}

	created, err := r.Client.ContainerExecCreate(ctx, r.ContainerName, execCfg)
	if err != nil {
		return 0, fmt.Errorf("destination: exec create in %s: %w", r.ContainerName, err)
	}

	attached, err := r.Client.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return 0, fmt.Errorf("destination: exec attach in %s: %w", r.ContainerName, err)
	}
	defer attached.Close()

	if onLine != nil {
		scanner := bufio.NewScanner(attached.Reader)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
		if err := scanner.Err(); err != nil && err != io.EOF {
			return 0, fmt.Errorf("destination: reading exec output in %s: %w", r.ContainerName, err)
		}
	}

	inspect, err := r.Client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return 0, fmt.Errorf("destination: exec inspect in %s: %w", r.ContainerName, err)
	}
	return inspect.ExitCode, nil
}
