// Package jobs reads the agent's scheduled-job configuration.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Job is one scheduled job as shown to observers.
type Job struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Active  bool   `json:"active"`
}

type jobConfig struct {
	Enabled bool `json:"enabled"`
}

// Read loads the job config at path. A job is active when it is enabled and
// the worker is alive. A missing file yields no jobs and no error.
func Read(path string, workerAlive bool) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Job{}, nil
		}
		return nil, fmt.Errorf("read job config: %w", err)
	}
	return Parse(data, workerAlive)
}

// Parse decodes a job config document, sorted by job name.
func Parse(data []byte, workerAlive bool) ([]Job, error) {
	var raw map[string]jobConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse job config: %w", err)
	}

	jobs := make([]Job, 0, len(raw))
	for name, cfg := range raw {
		jobs = append(jobs, Job{
			Name:    name,
			Enabled: cfg.Enabled,
			Active:  cfg.Enabled && workerAlive,
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}
