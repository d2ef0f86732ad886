package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/conclave/internal/domain"
)

// FileSource loads participant profiles from YAML files in a directory.
// One file per participant:
//
//	id: security-auditor
//	role: proposer
//	domain_weights:
//	  security: 1.0
//	  architecture: 0.7
type FileSource struct {
	dir string
}

// NewFileSource creates a file-backed profile source.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// LoadProfiles reads every .yaml/.yml file under the directory. A single
// malformed file is skipped with an error only when nothing loads at all.
func (f *FileSource) LoadProfiles(ctx context.Context) ([]domain.ParticipantProfile, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read profile dir: %w", err)
	}

	var profiles []domain.ParticipantProfile
	var firstErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		var p domain.ParticipantProfile
		if err := yaml.Unmarshal(data, &p); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("parse %s: %w", entry.Name(), err)
			}
			continue
		}
		if p.Role == "" {
			p.Role = domain.RoleProposer
		}
		profiles = append(profiles, p)
	}

	if len(profiles) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return profiles, nil
}

// StaticSource serves a fixed profile set; used in tests and embedded
// deployments.
type StaticSource struct {
	Profiles []domain.ParticipantProfile
	Err      error
}

// LoadProfiles returns the configured set.
func (s *StaticSource) LoadProfiles(ctx context.Context) ([]domain.ParticipantProfile, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Profiles, nil
}
