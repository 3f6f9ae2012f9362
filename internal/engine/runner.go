package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

// ExecResult is the outcome of one client tool invocation.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout followed by stderr.
func (r *ExecResult) Output() string {
	return r.Stdout + r.Stderr
}

// Err turns a non-zero exit into an error that keeps the tool output verbatim.
func (r *ExecResult) Err(tool string) error {
	if r.ExitCode == 0 {
		return nil
	}
	return &CommandError{Tool: tool, ExitCode: r.ExitCode, Output: strings.TrimSpace(r.Output())}
}

// CommandError is a client tool that exited with a non-zero code.
type CommandError struct {
	Tool     string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Tool, e.ExitCode, e.Output)
}

type execOptions struct {
	timeout time.Duration
}

type ExecOpt func(*execOptions)

// WithTimeout bounds a single invocation. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) ExecOpt {
	return func(o *execOptions) { o.timeout = d }
}

// Runner executes client tools inside long-running containers.
type Runner interface {
	Exec(ctx context.Context, containerName string, cmd []string, opts ...ExecOpt) (*ExecResult, error)
	CopyTo(ctx context.Context, containerName, dstPath string, content []byte, filename string) error
}

type dockerRunner struct {
	cli *client.Client
}

// NewDockerRunner runs tools through docker exec in the named containers.
func NewDockerRunner(cli *client.Client) Runner {
	return &dockerRunner{cli: cli}
}

// CopyTo places a single file, such as a beeline script, into dstPath.
func (d *dockerRunner) CopyTo(ctx context.Context, containerName, dstPath string, content []byte, filename string) error {
	archive, err := singleFileTar(filename, content)
	if err != nil {
		return err
	}
	err = d.cli.CopyToContainer(ctx, containerName, dstPath, archive, container.CopyToContainerOptions{})
	return errors.Wrapf(err, "failed to copy %s into %s:%s", filename, containerName, dstPath)
}

func singleFileTar(name string, content []byte) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
		return nil, errors.Wrap(err, "tar header")
	}
	if _, err := tw.Write(content); err != nil {
		return nil, errors.Wrap(err, "tar content")
	}
	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "tar close")
	}
	return &buf, nil
}

// Exec runs cmd and waits for it to exit. A non-zero exit is reported in
// the result, not as an error; errors are reserved for the transport.
func (d *dockerRunner) Exec(ctx context.Context, containerName string, cmd []string, opts ...ExecOpt) (*ExecResult, error) {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	created, err := d.cli.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create exec of %s in %s", cmd[0], containerName)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to attach to exec of %s", cmd[0])
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- copyErr
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read output of %s", cmd[0])
		}
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect exec of %s", cmd[0])
	}
	return &ExecResult{ExitCode: inspect.ExitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
