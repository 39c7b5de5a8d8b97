// Package sandbox executes generated scripts inside locked-down Docker
// containers. Grounded on capibara's runner/container_runner.py
// (_examples/original_source) for the container configuration shape —
// base image per language, cap-drop-all, read-only rootfs, no-new-privileges,
// network-mode none, CPU quota via cpu_period/cpu_quota, memory+swap limits —
// and on Aureuma-si's agents/shared/docker/client.go for the Go-side
// docker/docker client idiom (NewClientWithOpts with API version negotiation,
// tar-based CopyToContainer, stdcopy demuxed logs).
package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// TimeoutExitCode is returned in place of a container exit code when
// execution is killed for exceeding its wall-clock deadline.
const TimeoutExitCode = 124

// scriptSpec bundles the per-language filename, base image, and entrypoint
// command used to stage and run a script.
type scriptSpec struct {
	filename string
	image    string
	command  []string
}

var specs = map[model.Language]scriptSpec{
	model.LanguagePython:     {"script.py", "python:3.11-slim", []string{"python", "/workspace/script.py"}},
	model.LanguageJavaScript: {"script.js", "node:18-slim", []string{"node", "/workspace/script.js"}},
	model.LanguageBash:       {"script.sh", "alpine:latest", []string{"/bin/sh", "/workspace/script.sh"}},
	model.LanguagePowerShell: {"script.ps1", "mcr.microsoft.com/powershell:latest", []string{"pwsh", "/workspace/script.ps1"}},
}

var defaultSpec = scriptSpec{"script", "alpine:latest", []string{"/bin/sh", "/workspace/script"}}

func specFor(language model.Language) scriptSpec {
	if s, ok := specs[language]; ok {
		return s
	}
	return defaultSpec
}

// Runner executes scripts in isolated containers.
type Runner struct {
	cli *client.Client
	log *slog.Logger
}

// NewRunner connects to the local Docker daemon using the standard
// environment variables (DOCKER_HOST and friends).
func NewRunner() (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create docker client", err)
	}
	return &Runner{cli: cli, log: slog.With("component", "sandbox_runner")}, nil
}

// HealthProbe reports whether the Docker daemon is reachable.
func (r *Runner) HealthProbe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := r.cli.Ping(probeCtx); err != nil {
		return apperr.Wrap(apperr.KindSandboxFailure, "docker daemon unreachable", err)
	}
	return nil
}

// Execute runs code in a freshly created container bound by limits, and
// always tears the container down before returning, success or failure.
func (r *Runner) Execute(ctx context.Context, code string, language model.Language, limits model.ResourceLimits) (*model.ExecutionReport, error) {
	log := r.log.With("language", language)
	log.Info("starting sandboxed execution")

	spec := specFor(language)

	containerID, err := r.createContainer(ctx, spec, language, limits)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSandboxFailure, "create container", err)
	}
	defer r.teardown(containerID)

	if err := r.stageScript(ctx, containerID, spec, code); err != nil {
		return nil, apperr.Wrap(apperr.KindSandboxFailure, "stage script", err)
	}

	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, apperr.Wrap(apperr.KindSandboxFailure, "start container", err)
	}

	report := r.run(ctx, containerID, limits)
	log.Info("sandboxed execution completed", "success", report.Success, "exit_code", report.ExitCode)
	return report, nil
}

func (r *Runner) createContainer(ctx context.Context, spec scriptSpec, language model.Language, limits model.ResourceLimits) (string, error) {
	cfg := &container.Config{
		Image:      spec.image,
		WorkingDir: "/workspace",
		User:       "nobody",
		Env:        []string{"PYTHONUNBUFFERED=1"},
		Cmd:        spec.command,
	}

	memBytes := int64(limits.MemoryMB) * 1024 * 1024
	hostCfg := &container.HostConfig{
		SecurityOpt:    []string{"no-new-privileges:true"},
		CapDrop:        []string{"ALL"},
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Resources: container.Resources{
			Memory:     memBytes,
			MemorySwap: memBytes,
			CPUPeriod:  100000,
			CPUQuota:   int64(limits.CPUSeconds) * 100000,
		},
		Tmpfs: map[string]string{"/workspace": "size=64m"},
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", err
	}
	r.log.Debug("container created", "container_id", resp.ID, "image", spec.image)
	return resp.ID, nil
}

// stageScript copies the script body into the container's read-only
// workspace via a tmpfs mount and a tar upload, mirroring
// container_runner.py's workspace bind mount but without depending on the
// host filesystem, since the Docker daemon may run on a remote host.
func (r *Runner) stageScript(ctx context.Context, containerID string, spec scriptSpec, code string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	mode := int64(0o644)
	if spec.filename == "script.sh" {
		mode = 0o755
	}

	hdr := &tar.Header{
		Name:    spec.filename,
		Mode:    mode,
		Size:    int64(len(code)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write([]byte(code)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	return r.cli.CopyToContainer(ctx, containerID, "/workspace", &buf, types.CopyToContainerOptions{
		AllowOverwriteDirWithFile: true,
	})
}

// run waits for the container to finish, enforcing the wall-clock deadline
// itself (Docker's own wait has no timeout parameter), then collects logs
// and resource usage and checks them against limits.
func (r *Runner) run(ctx context.Context, containerID string, limits model.ResourceLimits) *model.ExecutionReport {
	deadline := time.Duration(limits.WallSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	statusCh, errCh := r.cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int
	timedOut := false
	select {
	case err := <-errCh:
		if err != nil {
			r.log.Warn("container execution timed out", "container_id", containerID, "error", err)
			_ = r.cli.ContainerKill(ctx, containerID, "SIGKILL")
			exitCode = TimeoutExitCode
			timedOut = true
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}
	wallMS := time.Since(start).Milliseconds()

	stdout, stderr := r.collectLogs(ctx, containerID)
	memoryPeakMB, cpuMS := r.collectStats(ctx, containerID)

	violations := checkResourceLimits(memoryPeakMB, cpuMS, limits)
	if timedOut {
		violations = append(violations, fmt.Sprintf("wall clock limit exceeded: %ds", limits.WallSeconds))
	}

	return &model.ExecutionReport{
		Success:                exitCode == 0 && len(violations) == 0,
		ExitCode:               exitCode,
		Stdout:                 stdout,
		Stderr:                 stderr,
		WallMS:                 wallMS,
		CPUMS:                  cpuMS,
		MemoryPeakMB:           memoryPeakMB,
		ResourceLimitsExceeded: violations,
	}
}

func (r *Runner) collectLogs(ctx context.Context, containerID string) (stdout, stderr string) {
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		r.log.Warn("failed to fetch container logs", "container_id", containerID, "error", err)
		return "", ""
	}
	defer reader.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil && err != io.EOF {
		r.log.Warn("failed to demux container logs", "container_id", containerID, "error", err)
	}
	return outBuf.String(), errBuf.String()
}

// collectStats takes a single non-streaming stats snapshot and derives peak
// memory and CPU time, the same simplified approximation
// container_runner.py's _calculate_cpu_time makes from one cpu_stats delta.
func (r *Runner) collectStats(ctx context.Context, containerID string) (memoryMB float64, cpuMS int64) {
	resp, err := r.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		r.log.Warn("failed to fetch container stats", "container_id", containerID, "error", err)
		return 0, 0
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		r.log.Warn("failed to decode container stats", "container_id", containerID, "error", err)
		return 0, 0
	}

	memoryMB = float64(stats.MemoryStats.Usage) / (1024 * 1024)

	cpuDelta := stats.CPUStats.CPUUsage.TotalUsage - stats.PreCPUStats.CPUUsage.TotalUsage
	systemDelta := stats.CPUStats.SystemUsage - stats.PreCPUStats.SystemUsage
	if systemDelta > 0 && cpuDelta > 0 {
		cpuPercent := float64(cpuDelta) / float64(systemDelta) * float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
		cpuMS = int64(cpuPercent * 1000)
	}
	return memoryMB, cpuMS
}

func checkResourceLimits(memoryMB float64, cpuMS int64, limits model.ResourceLimits) []string {
	var violations []string
	if memoryMB > float64(limits.MemoryMB) {
		violations = append(violations, fmt.Sprintf("memory limit exceeded: %.1fMB > %dMB", memoryMB, limits.MemoryMB))
	}
	cpuLimitMS := int64(limits.CPUSeconds) * 1000
	if cpuMS > cpuLimitMS {
		violations = append(violations, fmt.Sprintf("cpu time limit exceeded: %dms > %dms", cpuMS, cpuLimitMS))
	}
	return violations
}

func (r *Runner) teardown(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		r.log.Warn("failed to remove container", "container_id", containerID, "error", err)
	}
}

// Close releases the underlying Docker client connection.
func (r *Runner) Close() error {
	if r == nil || r.cli == nil {
		return nil
	}
	return r.cli.Close()
}
