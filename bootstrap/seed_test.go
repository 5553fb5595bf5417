package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bastion/core"
	"bastion/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const seedFixture = `
rules:
  - name: "Watchlist hit"
    description: "watchlisted address seen"
    severity: high
    conditions:
      - field: source_ip
        operator: in
        values: ["203.0.113.42"]
  - name: "Disabled by default"
    severity: low
    enabled: false
    conditions:
      - field: source
        operator: equals
        value: "test-service"
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeedRules(t *testing.T) {
	store := storage.NewMockRuleStorage()
	path := writeSeedFile(t, seedFixture)

	require.NoError(t, seedRules(context.Background(), store, path, zap.NewNop().Sugar()))

	rules, err := store.GetRules(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "Watchlist hit", rules[0].Name)
	assert.True(t, rules[0].Enabled)
	assert.False(t, rules[1].Enabled)

	enabled, err := store.GetEnabledRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestSeedRulesSkipsPopulatedStore(t *testing.T) {
	existing := core.NewRule("Existing", "", core.SeverityLow,
		[]core.Condition{{Field: core.ConditionFieldSource, Operator: core.OperatorEquals, Value: "svc"}})
	store := storage.NewMockRuleStorage(existing)
	path := writeSeedFile(t, seedFixture)

	require.NoError(t, seedRules(context.Background(), store, path, zap.NewNop().Sugar()))

	count, err := store.GetRuleCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "populated store is left untouched")
}

func TestSeedRulesRejectsInvalidRule(t *testing.T) {
	store := storage.NewMockRuleStorage()
	path := writeSeedFile(t, `
rules:
  - name: "Broken"
    severity: high
    conditions:
      - field: source_ip
        operator: in
`)

	assert.Error(t, seedRules(context.Background(), store, path, zap.NewNop().Sugar()))
}

func TestSeedRulesMissingFile(t *testing.T) {
	store := storage.NewMockRuleStorage()
	assert.Error(t, seedRules(context.Background(), store, filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop().Sugar()))
}
