package bootstrap

import (
	"context"
	"fmt"
	"os"

	"bastion/core"
	"bastion/storage"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// seedRuleFile is the on-disk format of the optional rules seed file
type seedRuleFile struct {
	Rules []seedRule `yaml:"rules"`
}

type seedRule struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Severity    string          `yaml:"severity"`
	Enabled     *bool           `yaml:"enabled"`
	Conditions  []seedCondition `yaml:"conditions"`
}

type seedCondition struct {
	Field    string   `yaml:"field"`
	Operator string   `yaml:"operator"`
	Value    string   `yaml:"value"`
	Values   []string `yaml:"values"`
}

// seedRules loads rules from a YAML file into an empty rule store. A store
// that already has rules is left untouched so operator edits survive
// restarts.
func seedRules(ctx context.Context, store storage.RuleStorageInterface, path string, logger *zap.SugaredLogger) error {
	count, err := store.GetRuleCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count rules: %w", err)
	}
	if count > 0 {
		logger.Debugw("Rule store already populated, skipping seed", "count", count)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var file seedRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	seeded := 0
	for i, sr := range file.Rules {
		conditions := make([]core.Condition, 0, len(sr.Conditions))
		for _, sc := range sr.Conditions {
			conditions = append(conditions, core.Condition{
				Field:    core.ConditionField(sc.Field),
				Operator: core.ConditionOperator(sc.Operator),
				Value:    sc.Value,
				Values:   sc.Values,
			})
		}

		rule := core.NewRule(sr.Name, sr.Description, core.Severity(sr.Severity), conditions)
		if sr.Enabled != nil {
			rule.Enabled = *sr.Enabled
		}

		if err := rule.Validate(); err != nil {
			return fmt.Errorf("seed rule %d (%q): %w", i, sr.Name, err)
		}

		if err := store.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to create seed rule %q: %w", sr.Name, err)
		}
		seeded++
	}

	logger.Infow("Seeded alerting rules", "count", seeded, "file", path)
	return nil
}
