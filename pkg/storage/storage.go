// SPDX-License-Identifier: GPL-2.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"stitcher/pkg/log"

	"gopkg.in/yaml.v2"
)

// Manager keeps finished outputs within the configured disk budget.
type Manager struct {
	storageDir string
	jobs       *JobStore
	disk       *disk
	remove     func(string) error

	logger *log.Logger
}

// NewManager returns new manager.
func NewManager(env *ConfigEnv, jobs *JobStore, logger *log.Logger) *Manager {
	storageDirFS := os.DirFS(env.StorageDir)
	return &Manager{
		storageDir: env.StorageDir,
		jobs:       jobs,
		disk:       newDisk(env, storageDirFS),
		remove:     os.Remove,

		logger: logger,
	}
}

// OutputsDir returns the path to the outputs directory.
func (s *Manager) OutputsDir() string {
	return filepath.Join(s.storageDir, "outputs")
}

// SaveOutput writes the output file and records the job in the index.
func (s *Manager) SaveOutput(job Job, data []byte) error {
	path := filepath.Join(s.OutputsDir(), job.ID+".mp4")

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	job.Size = int64(len(data))
	if err := s.jobs.Save(job); err != nil {
		os.Remove(path)
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// OutputPath returns the path of a saved output.
func (s *Manager) OutputPath(jobID string) string {
	return filepath.Join(s.OutputsDir(), jobID+".mp4")
}

// DiskUsageCached returns cached value and its age.
func (s *Manager) DiskUsageCached() (DiskUsage, time.Duration) {
	return s.disk.usageCached()
}

// DiskUsage returns cached value if within maxAge.
// Will update and return new value if the cached value is too old.
func (s *Manager) DiskUsage(maxAge time.Duration) (DiskUsage, error) {
	return s.disk.usage(maxAge)
}

// Purge checks if disk usage is above 99%,
// if true deletes the oldest saved output.
func (s *Manager) Purge() error {
	usage, err := s.DiskUsage(10 * time.Minute)
	if err != nil {
		return fmt.Errorf("update disk usage: %w", err)
	}
	if usage.Percent < 99 {
		return nil
	}

	job, err := s.jobs.Oldest()
	if err != nil {
		if errors.Is(err, ErrJobNotExist) {
			return nil
		}
		return fmt.Errorf("oldest job: %w", err)
	}

	err = s.remove(s.OutputPath(job.ID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove output: %w", err)
	}
	if err := s.jobs.Delete(job.ID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// PurgeLoop runs Purge on an interval until context is canceled.
func (s *Manager) PurgeLoop(ctx context.Context, duration time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(duration):
			if err := s.Purge(); err != nil {
				s.logger.Error().
					Src("storage").
					Msgf("could not purge storage: %v", err)
			}
		}
	}
}

// Only used to calculate and cache disk usage.
type disk struct {
	env            *ConfigEnv
	storageDirFS   fs.FS
	diskUsageBytes func(fs.FS) int64

	cache      DiskUsage
	lastUpdate time.Time
	cacheLock  sync.Mutex

	updateLock sync.Mutex
}

func newDisk(env *ConfigEnv, storageDirFS fs.FS) *disk {
	return &disk{
		env:            env,
		diskUsageBytes: diskUsageBytes,
		storageDirFS:   storageDirFS,
	}
}

func (d *disk) usageCached() (DiskUsage, time.Duration) {
	d.cacheLock.Lock()
	defer d.cacheLock.Unlock()

	return d.cache, time.Since(d.lastUpdate)
}

// usage returns cached value if within maxAge.
// Will update and return new value if the cached value is too old.
func (d *disk) usage(maxAge time.Duration) (DiskUsage, error) {
	maxTime := time.Now().Add(-maxAge)

	d.cacheLock.Lock()
	if d.lastUpdate.After(maxTime) {
		defer d.cacheLock.Unlock()
		return d.cache, nil
	}
	d.cacheLock.Unlock()

	// Cache is too old, acquire update lock and update it.
	d.updateLock.Lock()
	defer d.updateLock.Unlock()

	// Check if it was updated while we were waiting for the update lock.
	d.cacheLock.Lock()
	if d.lastUpdate.After(maxTime) {
		defer d.cacheLock.Unlock()
		return d.cache, nil
	}
	// Still outdated.
	d.cacheLock.Unlock()

	updatedUsage, err := d.calculateDiskUsage()
	if err != nil {
		return DiskUsage{}, err
	}

	d.cacheLock.Lock()
	d.cache = updatedUsage
	d.lastUpdate = time.Now()
	d.cacheLock.Unlock()

	return updatedUsage, nil
}

func (d *disk) calculateDiskUsage() (DiskUsage, error) {
	used := d.diskUsageBytes(d.storageDirFS)

	diskSpaceBytes, err := d.env.DiskSpaceBytes()
	if err != nil {
		return DiskUsage{}, fmt.Errorf("disk space: %w", err)
	}

	percent := func() int {
		if used == 0 || diskSpaceBytes == 0 {
			return 0
		}
		return int((used * 100) / diskSpaceBytes)
	}()

	return DiskUsage{
		Used:      used,
		Percent:   percent,
		Max:       diskSpaceBytes / int64(gigabyte),
		Formatted: formatDiskUsage(float64(used)),
	}, nil
}

// DiskUsage in Bytes.
type DiskUsage struct {
	Used      int64
	Percent   int
	Max       int64
	Formatted string
}

const (
	kilobyte float64 = 1000
	megabyte         = kilobyte * 1000
	gigabyte         = megabyte * 1000
	terabyte         = gigabyte * 1000
)

func formatDiskUsage(used float64) string {
	switch {
	case used < 1000*megabyte:
		return fmt.Sprintf("%.0fMB", used/megabyte)
	case used < 10*gigabyte:
		return fmt.Sprintf("%.2fGB", used/gigabyte)
	case used < 100*gigabyte:
		return fmt.Sprintf("%.1fGB", used/gigabyte)
	case used < 1000*gigabyte:
		return fmt.Sprintf("%.0fGB", used/gigabyte)
	case used < 10*terabyte:
		return fmt.Sprintf("%.2fTB", used/terabyte)
	case used < 100*terabyte:
		return fmt.Sprintf("%.1fTB", used/terabyte)
	default:
		return fmt.Sprintf("%.0fTB", used/terabyte)
	}
}

func diskUsageBytes(fileSystem fs.FS) int64 {
	var used int64
	fs.WalkDir(fileSystem, ".", func(_ string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		used += info.Size()

		return nil
	})
	return used
}

// ConfigEnv stores system configuration.
type ConfigEnv struct {
	StorageDir string `yaml:"storageDir"`
	DiskSpace  string `yaml:"diskSpace"` // Gigabytes.

	HomeDir   string `yaml:"homeDir"`
	ConfigDir string
}

// ErrPathNotAbsolute path is not absolute.
var ErrPathNotAbsolute = errors.New("path is not absolute")

// NewConfigEnv return new environment configuration.
func NewConfigEnv(envPath string, envYAML []byte) (*ConfigEnv, error) {
	var env ConfigEnv

	if err := yaml.Unmarshal(envYAML, &env); err != nil {
		return nil, fmt.Errorf("unmarshal env.yaml: %w", err)
	}

	env.ConfigDir = filepath.Dir(envPath)

	if env.HomeDir == "" {
		env.HomeDir = filepath.Dir(env.ConfigDir)
	}
	if env.StorageDir == "" {
		env.StorageDir = filepath.Join(env.HomeDir, "storage")
	}

	if !filepath.IsAbs(env.HomeDir) {
		return nil, fmt.Errorf("homeDir '%v': %w", env.HomeDir, ErrPathNotAbsolute)
	}
	if !filepath.IsAbs(env.StorageDir) {
		return nil, fmt.Errorf("storageDir '%v': %w", env.StorageDir, ErrPathNotAbsolute)
	}

	return &env, nil
}

// DiskSpaceBytes returns configured disk space in bytes.
func (env *ConfigEnv) DiskSpaceBytes() (int64, error) {
	if env.DiskSpace == "0" || env.DiskSpace == "" {
		return 0, nil
	}

	diskSpaceGB, err := strconv.ParseFloat(env.DiskSpace, 64)
	if err != nil {
		return 0, fmt.Errorf("parse diskSpace: %w", err)
	}

	return int64(diskSpaceGB * gigabyte), nil
}

// PrepareEnvironment prepares directories.
func (env *ConfigEnv) PrepareEnvironment() error {
	err := os.MkdirAll(filepath.Join(env.StorageDir, "outputs"), 0o700)
	if err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create outputs directory: %v: %w", env.StorageDir, err)
	}
	return nil
}
