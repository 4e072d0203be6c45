package cmd

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepCommand_WritesOneRowPerScenario(t *testing.T) {
	// GIVEN a sweep over two buffer sizes
	body := strings.ReplaceAll(strings.TrimSpace(twoLeafScenario), "\n", "\n    ")
	config := writeTemp(t, "sweep.yaml", "seed: 1\nruns: 2\nscenarios:\n  - "+body+"\n    buffer_size: 1\n  - "+
		strings.Replace(body, "name: two-leaf", "name: two-leaf-unbounded", 1)+"\n")
	out := filepath.Join(t.TempDir(), "data.csv")

	// WHEN the sweep runs
	rootCmd.SetArgs([]string{"sweep", "--config", config, "--out", out, "--log", "error"})
	require.NoError(t, rootCmd.Execute())

	// THEN the CSV holds a header and one row per scenario
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "name", records[0][0])
	assert.Equal(t, "two-leaf", records[1][0])
	assert.Equal(t, "two-leaf-unbounded", records[2][0])
	assert.Equal(t, "1", records[1][4], "buffer_size column")
	assert.Equal(t, "unbounded", records[2][4])
}
