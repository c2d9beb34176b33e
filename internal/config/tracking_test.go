package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medintel/internal/model"
)

func writeTracking(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTracking(t *testing.T) {
	path := writeTracking(t, `
companies:
  - name: LivaNova
    codes: ["64568", "61885"]
    growth:
      volumeByCode:
        "64568": 12.5
  - name: Bristol-Myers Squibb
    drugs: [Eliquis, Opdivo]
`)
	tr, err := LoadTracking(path)
	require.NoError(t, err)
	require.Len(t, tr.Companies, 2)
	assert.Equal(t, "LivaNova", tr.Companies[0].Name)
	assert.Equal(t, []string{"64568", "61885"}, tr.Companies[0].Codes)
	assert.Equal(t, []string{"Eliquis", "Opdivo"}, tr.Companies[1].Entities(model.CostByName))
	assert.InDelta(t, 12.5, tr.EntityGrowth()[model.VolumeByCode]["64568"], 0.001)
}

func TestLoadTracking_MissingFileIsEmpty(t *testing.T) {
	tr, err := LoadTracking(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tr.Companies)

	tr, err = LoadTracking("")
	require.NoError(t, err)
	assert.Empty(t, tr.Companies)
}

func TestLoadTracking_Invalid(t *testing.T) {
	_, err := LoadTracking(writeTracking(t, "companies: {not: a list"))
	assert.Error(t, err)

	_, err = LoadTracking(writeTracking(t, "companies:\n  - codes: [\"1\"]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no name")

	_, err = LoadTracking(writeTracking(t, "companies:\n  - name: X\n    growth:\n      partC: {a: 1}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset type")

	_, err = LoadTracking(writeTracking(t, "companies:\n  - name: X\n    growth:\n      volumeByCode: {\"64568\": .nan}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a finite number")
}

func TestLoadTracking_ExampleFile(t *testing.T) {
	tr, err := LoadTracking(filepath.Join("..", "..", "tracking.example.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, tr.Companies)
	assert.Contains(t, model.TrackedEntities(tr.Companies, model.CostByName), "Eliquis")
	assert.InDelta(t, 8.0, tr.EntityGrowth()[model.VolumeByCode]["64568"], 0.001)
}
