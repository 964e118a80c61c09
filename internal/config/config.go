// Package config provides driver-scoped configuration for the relaxation
// core. Unlike a global config singleton, a Config value is constructed
// once per invocation and threaded explicitly through the driver (spec §9
// design notes: "re-architect ambient mutable state as explicit
// driver-scoped configuration"). Precedence when loading from multiple
// sources is flags > env (RELAXDRV_*) > project YAML > defaults, mirroring
// the teacher's config-merge ordering.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the launcher/supervisor/driver/workspace
// components read (spec §6 CLI surface, §4 throughout).
type Config struct {
	Executable string `yaml:"executable"`
	Mode       string `yaml:"mode"` // "castep" or "generic"

	NCores     int    `yaml:"ncores"`
	NProcesses int    `yaml:"nprocesses"`
	MPILibrary string `yaml:"mpi_library"` // "", default, intel, archer, slurm, none
	RemoteNode string `yaml:"remote_node"`

	MaxWalltime time.Duration `yaml:"max_walltime"`
	PollTime    time.Duration `yaml:"polltime"`

	CustomParams          bool `yaml:"custom_params"`
	Memcheck              bool `yaml:"memcheck"`
	MaxMemMB              int  `yaml:"maxmem"`
	Reopt                 bool `yaml:"reopt"`
	Kpts1D                bool `yaml:"kpts_1d"`
	WriteFormattedDensity bool `yaml:"write_formatted_density"`

	ConvCutoffs []float64 `yaml:"conv_cutoff"`
	ConvKpts    []float64 `yaml:"conv_kpt"`

	Redirect   string `yaml:"redirect"`
	ComputeDir string `yaml:"compute_dir"`

	Rough     int `yaml:"rough"`
	RoughIter int `yaml:"rough_iter"`
	FineIter  int `yaml:"fine_iter"`

	Verbosity int `yaml:"verbosity"` // 0..3
}

// Default returns the spec-documented defaults.
func Default() Config {
	return Config{
		Executable: "castep",
		Mode:       "castep",
		NCores:     1,
		NProcesses: 1,
		PollTime:   30 * time.Second,
		Rough:      4,
		RoughIter:  2,
		FineIter:   20,
	}
}

// Load merges defaults, an optional project YAML file, and environment
// variables, in that precedence order (lowest to highest); flag overrides
// are applied by the caller afterward via Config field assignment, exactly
// as the teacher's cmd/ao layer applies cobra flags after config-file load.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg, os.Getenv)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) string) {
	if v := strings.TrimSpace(lookup("RELAXDRV_EXECUTABLE")); v != "" {
		cfg.Executable = v
	}
	if v := strings.TrimSpace(lookup("RELAXDRV_MODE")); v != "" {
		cfg.Mode = v
	}
	if v := strings.TrimSpace(lookup("RELAXDRV_MPI_LIBRARY")); v != "" {
		cfg.MPILibrary = v
	}
	if v := strings.TrimSpace(lookup("RELAXDRV_NCORES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NCores = n
		}
	}
	if v := strings.TrimSpace(lookup("RELAXDRV_MAX_WALLTIME")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MaxWalltime = d
		}
	}
}

// ValidatePoolSize enforces the physical-core budget of spec §5:
// ncores * nprocesses <= physical_cores.
func ValidatePoolSize(cfg Config, physicalCores int) error {
	if cfg.NCores*cfg.NProcesses > physicalCores {
		return &PoolSizeError{NCores: cfg.NCores, NProcesses: cfg.NProcesses, PhysicalCores: physicalCores}
	}
	return nil
}

// PoolSizeError reports an oversubscribed worker pool request.
type PoolSizeError struct {
	NCores, NProcesses, PhysicalCores int
}

func (e *PoolSizeError) Error() string {
	return "config: ncores(" + strconv.Itoa(e.NCores) + ") * nprocesses(" + strconv.Itoa(e.NProcesses) +
		") exceeds physical cores (" + strconv.Itoa(e.PhysicalCores) + ")"
}
