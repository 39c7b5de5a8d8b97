package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/scriptsmith/scriptsmith/pkg/cache"
	"github.com/scriptsmith/scriptsmith/pkg/policy"
	"github.com/scriptsmith/scriptsmith/pkg/provider"
	"github.com/scriptsmith/scriptsmith/pkg/sandbox"
)

// NewCacheCheck reports the script cache's size and hit rate, mirroring
// CacheHealthCheck._perform_check. Non-critical: a struggling cache
// degrades generation latency but not correctness.
func NewCacheCheck(c *cache.Cache) Check {
	return Check{
		Name:     "cache",
		Critical: false,
		Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
			stats := c.Stats()
			return StatusHealthy, map[string]interface{}{
				"cache_dir":          stats.CacheDir,
				"total_scripts":      stats.TotalScripts,
				"cache_size_bytes":   stats.TotalSizeBytes,
				"hit_rate_percent":   stats.HitRatePercent,
			}, nil
		},
	}
}

// NewProvidersCheck reports which LLM providers are configured and
// currently healthy, mirroring LLMProvidersHealthCheck._perform_check.
// Critical: no script can be generated without at least one provider up.
func NewProvidersCheck(pool *provider.Pool) Check {
	return Check{
		Name:     "llm_providers",
		Critical: true,
		Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
			// Selecting a provider probes them in priority order and records
			// each result, so a provider whose probe fails is no longer listed.
			_, _ = pool.Get(ctx, "")
			available := pool.AvailableProviders()
			poolStats := pool.Stats()

			status := StatusHealthy
			switch {
			case len(available) == 0:
				status = StatusUnhealthy
			case len(available) < len(poolStats.Providers):
				status = StatusDegraded
			}

			if status == StatusUnhealthy {
				return status, map[string]interface{}{"available_providers": available}, fmt.Errorf("no healthy LLM providers available")
			}
			return status, map[string]interface{}{
				"available_providers": available,
				"providers":           poolStats.Providers,
			}, nil
		},
	}
}

// NewSandboxCheck pings the Docker daemon backing the sandbox runner,
// mirroring ContainerRuntimeHealthCheck._perform_check. Critical: without
// it, requests asking for execution cannot be served. runner may be nil
// when this deployment offers generation only, in which case the check
// reports healthy-but-not-configured rather than failing.
func NewSandboxCheck(runner *sandbox.Runner) Check {
	return Check{
		Name:     "container_runtime",
		Critical: true,
		Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
			if runner == nil {
				return StatusHealthy, map[string]interface{}{"configured": false}, nil
			}
			if err := runner.HealthProbe(ctx); err != nil {
				return StatusUnhealthy, nil, err
			}
			return StatusHealthy, map[string]interface{}{"configured": true}, nil
		},
	}
}

// NewDiskSpaceCheck reports free space on the filesystem backing dir
// (typically the cache directory), mirroring DiskSpaceHealthCheck.
// Non-critical: degraded at 80% used, unhealthy at 90%, matching the
// original's thresholds.
func NewDiskSpaceCheck(dir string) Check {
	return Check{
		Name:     "disk_space",
		Critical: false,
		Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
			usage, err := disk.UsageWithContext(ctx, dir)
			if err != nil {
				return StatusUnknown, nil, err
			}

			status := StatusHealthy
			if usage.UsedPercent > 90 {
				status = StatusUnhealthy
			} else if usage.UsedPercent > 80 {
				status = StatusDegraded
			}

			const gb = 1024 * 1024 * 1024
			return status, map[string]interface{}{
				"free_space_gb":  roundTo2(float64(usage.Free) / gb),
				"used_percent":   roundTo2(usage.UsedPercent),
				"total_space_gb": roundTo2(float64(usage.Total) / gb),
			}, nil
		},
	}
}

// NewMemoryCheck reports host memory and swap usage, mirroring
// MemoryHealthCheck (which used psutil; gopsutil is its Go counterpart).
// Non-critical: a loaded host degrades generation/execution latency but a
// single unhealthy reading doesn't mean requests are failing.
func NewMemoryCheck() Check {
	return Check{
		Name:     "memory",
		Critical: false,
		Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return StatusUnknown, nil, err
			}
			swap, err := mem.SwapMemoryWithContext(ctx)
			if err != nil {
				return StatusUnknown, nil, err
			}

			status := StatusHealthy
			if vm.UsedPercent > 90 || swap.UsedPercent > 90 {
				status = StatusUnhealthy
			} else if vm.UsedPercent > 80 || swap.UsedPercent > 80 {
				status = StatusDegraded
			}

			const gb = 1024 * 1024 * 1024
			return status, map[string]interface{}{
				"memory_percent":       roundTo2(vm.UsedPercent),
				"memory_available_gb":  roundTo2(float64(vm.Available) / gb),
				"memory_total_gb":      roundTo2(float64(vm.Total) / gb),
				"swap_percent":         roundTo2(swap.UsedPercent),
				"swap_total_gb":        roundTo2(float64(swap.Total) / gb),
			}, nil
		},
	}
}

// NewPoliciesCheck reports whether the configured policies directory
// exists and how many custom policy files it holds, mirroring
// SecurityPoliciesHealthCheck._perform_check.
func NewPoliciesCheck(store *policy.Store, policiesDir, defaultPolicy string) Check {
	return Check{
		Name:     "security_policies",
		Critical: false,
		Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
			if policiesDir == "" {
				return StatusHealthy, map[string]interface{}{
					"policies_dir":   "",
					"default_policy": defaultPolicy,
					"loaded_policies": len(store.List()),
				}, nil
			}

			if _, err := os.Stat(policiesDir); err != nil {
				return StatusDegraded, map[string]interface{}{
					"policies_dir": policiesDir,
					"error":        "policies directory does not exist",
				}, nil
			}

			yamlFiles, _ := filepath.Glob(filepath.Join(policiesDir, "*.yaml"))
			ymlFiles, _ := filepath.Glob(filepath.Join(policiesDir, "*.yml"))

			return StatusHealthy, map[string]interface{}{
				"policies_dir":      policiesDir,
				"policy_files_count": len(yamlFiles) + len(ymlFiles),
				"default_policy":    defaultPolicy,
				"loaded_policies":   len(store.List()),
			}, nil
		},
	}
}

func roundTo2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
