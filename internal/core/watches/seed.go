package watches

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/repositories"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by ImportSeed
type SeedFile struct {
	Watches []SeedWatch `yaml:"watches"`
}

// SeedWatch is one rule in a seed file; Entity must be an exact entity id
type SeedWatch struct {
	UserID    string `yaml:"user_id"`
	ChannelID string `yaml:"channel_id"`
	Entity    string `yaml:"entity"`
	Condition string `yaml:"condition"`
	Message   string `yaml:"message"`
}

// SeedResult counts what an import did
type SeedResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// ImportSeed stores the rules of a YAML seed file without consulting Home
// Assistant. Rules that already exist are skipped; any other problem aborts
// the import.
func ImportSeed(ctx context.Context, repo repositories.WatchRepository, r io.Reader, logger *logrus.Logger) (SeedResult, error) {
	var file SeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return SeedResult{}, nil
		}
		return SeedResult{}, fmt.Errorf("failed to parse seed file: %w", err)
	}

	var result SeedResult
	for i, w := range file.Watches {
		entityID := strings.TrimSpace(w.Entity)
		if entityID == "" || !strings.Contains(entityID, ".") {
			return result, fmt.Errorf("seed watch %d: %w: %q is not an entity id", i, ErrMissingEntity, w.Entity)
		}
		if strings.TrimSpace(w.ChannelID) == "" {
			return result, fmt.Errorf("seed watch %d: channel_id is required", i)
		}

		cond, err := ParseCondition(w.Condition)
		if err != nil {
			return result, fmt.Errorf("seed watch %d: %w", i, err)
		}

		userID := w.UserID
		if userID == "" {
			userID = "seed"
		}

		rule := &models.WatchRule{
			UserID:    userID,
			ChannelID: w.ChannelID,
			EntityID:  entityID,
			RuleType:  cond.RuleType,
			FromState: cond.FromState,
			ToState:   cond.ToState,
			Operator:  cond.Operator,
			Threshold: cond.Threshold,
		}
		if strings.TrimSpace(w.Message) != "" {
			rule.Message = models.StringPtr(w.Message)
		}

		if _, err := repo.Add(ctx, rule); err != nil {
			if errors.Is(err, repositories.ErrDuplicateWatch) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("seed watch %d: %w", i, err)
		}
		result.Added++
	}

	logger.WithFields(logrus.Fields{
		"added":   result.Added,
		"skipped": result.Skipped,
	}).Info("Imported watch seed")

	return result, nil
}
