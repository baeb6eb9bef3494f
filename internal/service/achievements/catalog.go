package achievements

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

type catalogFile struct {
	Achievements []catalogItem `yaml:"achievements"`
}

type catalogItem struct {
	Key         string                 `yaml:"key"`
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Icon        string                 `yaml:"icon"`
	XPReward    int                    `yaml:"xp_reward"`
	Hidden      bool                   `yaml:"hidden"`
	Active      *bool                  `yaml:"active"` // defaults to true
	Conditions  map[string]interface{} `yaml:"conditions"`
}

// LoadCatalog reads achievement definitions from YAML and validates their conditions.
func LoadCatalog(r io.Reader) ([]models.Achievement, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode achievement catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Achievements))
	out := make([]models.Achievement, 0, len(file.Achievements))

	for i, item := range file.Achievements {
		if item.Key == "" || item.Name == "" {
			return nil, fmt.Errorf("achievement #%d: key and name are required", i+1)
		}
		if seen[item.Key] {
			return nil, fmt.Errorf("achievement %s: duplicate key", item.Key)
		}
		seen[item.Key] = true

		if item.XPReward < 0 {
			return nil, fmt.Errorf("achievement %s: xp_reward must not be negative", item.Key)
		}

		conditions, err := json.Marshal(item.Conditions)
		if err != nil {
			return nil, fmt.Errorf("achievement %s: failed to encode conditions: %w", item.Key, err)
		}
		if _, err := ParseCondition(conditions); err != nil {
			return nil, fmt.Errorf("achievement %s: %w", item.Key, err)
		}

		active := true
		if item.Active != nil {
			active = *item.Active
		}

		out = append(out, models.Achievement{
			Key:              item.Key,
			Name:             item.Name,
			Description:      item.Description,
			Icon:             item.Icon,
			UnlockConditions: conditions,
			XPReward:         item.XPReward,
			IsActive:         active,
			IsHidden:         item.Hidden,
		})
	}

	return out, nil
}

// SeedFromFile upserts the catalog at path by achievement key. Returns the number of achievements written.
func (s *Service) SeedFromFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open achievement catalog: %w", err)
	}
	defer f.Close()

	catalog, err := LoadCatalog(f)
	if err != nil {
		return 0, err
	}

	for i := range catalog {
		if err := s.repo.Upsert(ctx, &catalog[i]); err != nil {
			return i, err
		}
	}

	s.log.Info().Str("path", path).Int("count", len(catalog)).Msg("Achievement catalog seeded")
	return len(catalog), nil
}
