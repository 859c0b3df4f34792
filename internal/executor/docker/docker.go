package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
)

// Runtime implements executor.Runtime by running the script in a fresh
// Node.js container per request.
type Runtime struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New creates a container Runtime, pulls the image and starts the pool.
// memoryLimitBytes caps every container; it should match the limits later
// passed to Run.
func New(cfg Config, memoryLimitBytes int64, logger *slog.Logger) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to read image pull progress: %w", err)
	}
	logger.Info("docker image is ready")

	r := &Runtime{
		cli:    cli,
		config: cfg,
		logger: logger,
	}
	r.pool = NewPool(cli, cfg, memoryLimitBytes, logger)
	r.pool.Start()

	return r, nil
}

// Close shuts down the pool and the docker client.
func (r *Runtime) Close() error {
	r.pool.Stop()
	return r.cli.Close()
}

// Run executes js in a pre-warmed container and removes the container after.
// Docker API failures are returned as untyped errors: they are host faults,
// not outcomes of the script.
func (r *Runtime) Run(ctx context.Context, js string, limits executor.Limits) (out executor.Outcome) {
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		r.logger.Debug("container execution finished",
			slog.String("kind", out.Kind()),
			slog.Duration("duration", out.Duration),
		)
	}()

	containerID, err := r.pool.GetContainer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return canceledOutcome(ctx, limits)
		}
		return executor.Failed(fmt.Errorf("failed to get container from pool: %w", err), nil)
	}

	// Every container serves exactly one execution.
	defer r.pool.removeContainer(containerID)

	executeCtx, executeCancel := context.WithTimeout(ctx, limits.Timeout+r.config.StartupGrace)
	defer executeCancel()

	execResp, err := r.cli.ContainerExecCreate(executeCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          nodeCommand(limits),
		Env: []string{
			"PLAYGROUND_CODE=" + js,
			"PLAYGROUND_TIMEOUT_MS=" + strconv.FormatInt(limits.Timeout.Milliseconds(), 10),
		},
	})
	if err != nil {
		return executor.Failed(fmt.Errorf("failed to create exec: %w", err), nil)
	}

	attachResp, err := r.cli.ContainerExecAttach(executeCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return executor.Failed(fmt.Errorf("failed to attach to exec: %w", err), nil)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-executeCtx.Done():
		return canceledOutcome(executeCtx, limits)
	}

	inspectResp, err := r.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return executor.Failed(fmt.Errorf("failed to inspect exec: %w", err), nil)
	}

	return parseOutput(stdout.String(), stderr.String(), inspectResp.ExitCode, limits)
}

// nodeCommand caps V8's old space at the memory limit so an allocation loop
// fails inside node before the cgroup kills the whole container.
func nodeCommand(limits executor.Limits) []string {
	cmd := []string{"node"}
	if mib := limits.MemoryLimitBytes / (1024 * 1024); mib > 0 {
		cmd = append(cmd, "--max-old-space-size="+strconv.FormatInt(mib, 10))
	}
	return append(cmd, "-e", harness)
}

// canceledOutcome maps a finished context to the outcome the caller sees.
func canceledOutcome(ctx context.Context, limits executor.Limits) executor.Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return executor.Failed(apperror.Timeout(timeoutMessage(limits.Timeout)), nil)
	}
	return executor.Failed(apperror.Canceled("execution canceled"), nil)
}
