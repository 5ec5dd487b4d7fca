package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rewired-gh/reappoint/internal/models"
	"github.com/rewired-gh/reappoint/internal/report"
	"github.com/rewired-gh/reappoint/internal/table"
	"github.com/rewired-gh/reappoint/internal/trend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "name,position,org,year,reappointed\n"

// testEnv points output, storage and metrics at a temporary directory and
// returns it.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("REAPPOINT_OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("REAPPOINT_STORAGE_DB_PATH", filepath.Join(dir, "reappoint.db"))
	t.Setenv("REAPPOINT_METRICS_TEXTFILE_PATH", filepath.Join(dir, "metrics", "reappoint.prom"))
	t.Setenv("REAPPOINT_LOGGING_LEVEL", "error")
	return dir
}

func writeYears(t *testing.T, years map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range years {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(header+body), 0o644))
	}
	return dir
}

func threeYears(t *testing.T) string {
	return writeYears(t, map[string]string{
		"appointments_2013.csv": "Alice,Chair,Health,2013,false\nBob,Member,Health,2013,false\n",
		"appointments_2014.csv": "Alice,Chair,Health,2014,true\nCarol,Member,Health,2014,false\n",
		"appointments_2015.csv": "Alice,Chair,Health,2015,true\nBob,Member,Health,2015,true\n",
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := testEnv(t)
	input := threeYears(t)

	out, err := execute(t, "run", "--input", input, "--format", "json")
	require.NoError(t, err)

	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	require.NotNil(t, r.Run)
	assert.Equal(t, 6, r.Run.Records)
	assert.Equal(t, 3, r.Run.Reappointments)
	require.Len(t, r.Annual, 3)
	assert.Equal(t, models.NewAnnualProportion(2015, 2, 2), r.Annual[2])
	require.NotNil(t, r.Trend)
	assert.InDelta(t, 0.5, r.Trend.Slope, 1e-12)

	assert.FileExists(t, filepath.Join(dir, "out", table.ClassifiedFile))
	assert.FileExists(t, filepath.Join(dir, "out", table.TopFile))
	assert.FileExists(t, filepath.Join(dir, "metrics", "reappoint.prom"))

	out, err = execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, r.Run.ID)
	assert.Contains(t, out, "fitted")

	out, err = execute(t, "runs", r.Run.ID, "--format", "json")
	require.NoError(t, err)
	var stored report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	require.NotNil(t, stored.Trend)
	assert.Equal(t, r.Trend.Slope, stored.Trend.Slope)
	assert.Equal(t, r.Annual, stored.Annual)
}

func TestRunCommandInsufficientData(t *testing.T) {
	testEnv(t)
	input := writeYears(t, map[string]string{
		"appointments_2013.csv": "Alice,Chair,Health,2013,false\n",
		"appointments_2014.csv": "Alice,Chair,Health,2014,true\n",
	})

	out, err := execute(t, "run", "--input", input)
	require.Error(t, err)
	assert.True(t, errors.Is(err, trend.ErrInsufficientData))
	assert.Contains(t, out, "Not fitted: insufficient data")

	out, err = execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "failed: insufficient data")
}

func TestStageCommands(t *testing.T) {
	dir := testEnv(t)
	input := threeYears(t)

	out, err := execute(t, "classify", "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "CLASSIFICATION")
	assert.Contains(t, out, "Reappointments:         3 (50.00%)")

	out, err = execute(t, "aggregate")
	require.NoError(t, err)
	assert.Contains(t, out, "ANNUAL PROPORTIONS")

	years, err := table.ReadAnnualFile(filepath.Join(dir, "out", table.AnnualFile))
	require.NoError(t, err)
	assert.Equal(t, []models.AnnualProportion{
		models.NewAnnualProportion(2013, 2, 0),
		models.NewAnnualProportion(2014, 2, 1),
		models.NewAnnualProportion(2015, 2, 2),
	}, years)

	out, err = execute(t, "trend", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "direction: increasing\n")
}

func TestClassifyFromStdin(t *testing.T) {
	dir := testEnv(t)
	input := header +
		"Alice,Chair,Health,2013,false\n" +
		"Alice,Chair,Health,2014,false\n" +
		"Bob,Member,Health,2014,false\n"

	out, err := executeWithInput(t, input, "classify", "--input", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Reappointments:         1 (33.33%)")

	records, err := table.Load(filepath.Join(dir, "out", table.ClassifiedFile), table.Options{TrustFlag: true})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.False(t, records[0].IsReappointment)
	assert.True(t, records[1].IsReappointment)
	assert.False(t, records[2].IsReappointment)
}

func TestTrendCommandJSONWithEmptyYear(t *testing.T) {
	dir := testEnv(t)
	path := filepath.Join(dir, "annual.csv")
	require.NoError(t, os.WriteFile(path, []byte("year,total_appointments,total_reappointments\n"+
		"2013,10,1\n2014,0,0\n2015,10,2\n2016,10,3\n"), 0o644))

	out, err := execute(t, "trend", "--input", path, "--format", "json")
	require.NoError(t, err)

	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	require.Len(t, r.Annual, 3)
	require.NotNil(t, r.Trend)
	assert.Equal(t, []int{2013, 2015, 2016}, r.Trend.Years)
}

func TestClassifyMissingColumn(t *testing.T) {
	testEnv(t)
	input := t.TempDir()
	path := filepath.Join(input, "appointments_2013.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,year\nAlice,2013\n"), 0o644))

	_, err := execute(t, "classify", "--input", path)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
}

func TestInvalidFormatFlag(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "trend", "--format", "xml")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid configuration: "))
}

func TestRunsStorageDisabled(t *testing.T) {
	testEnv(t)
	t.Setenv("REAPPOINT_STORAGE_ENABLED", "false")

	_, err := execute(t, "runs")
	assert.ErrorIs(t, err, errStorageDisabled)
}

func TestRunsUnknownID(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "runs", "no-such-run")
	assert.Error(t, err)
}
