package jobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLatestRunFilePicksHighestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "LinkedInJobs_Run1.csv", "x")
	writeFile(t, dir, "LinkedInJobs_Run3.csv", "x")
	writeFile(t, dir, "LinkedInJobs_Run2.csv", "x")
	writeFile(t, dir, "filtered_LinkedInJobs_Run9.csv", "x") // different pattern
	writeFile(t, dir, "notes.txt", "x")

	path, run, err := LatestRunFile(dir, "LinkedInJobs_Run{run}.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, run)
	assert.Equal(t, filepath.Join(dir, "LinkedInJobs_Run3.csv"), path)
}

func TestLatestRunFileErrsWhenNoneExist(t *testing.T) {
	_, _, err := LatestRunFile(t.TempDir(), "LinkedInJobs_Run{run}.csv")
	assert.Error(t, err)
}

func TestNextRunFileStartsAtOne(t *testing.T) {
	dir := t.TempDir()
	path, run, err := NextRunFile(dir, "LinkedInJobs_Run{run}.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, run)
	assert.Equal(t, filepath.Join(dir, "LinkedInJobs_Run1.csv"), path)

	writeFile(t, dir, "LinkedInJobs_Run4.csv", "x")
	_, run, err = NextRunFile(dir, "LinkedInJobs_Run{run}.csv")
	require.NoError(t, err)
	assert.Equal(t, 5, run)
}

func TestReadMarkedSelectsOnlyMarkedRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "filtered_LinkedInJobs_Run1.csv",
		"Title,Company,Location,URL,Apply Status\n"+
			"SWE I,Acme Corp.,Remote,https://acme.example/jobs/1,Apply\n"+
			"SWE II,Acme Corp.,Remote,https://acme.example/jobs/2,\n"+
			"New Grad SWE,Initech,NYC,https://initech.example/3,apply\n"+
			"Broken,NoURL,Remote,,Apply\n")

	queue, err := ReadMarked(path, "Apply Status", "Apply", zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Len(t, queue, 2)
	assert.Equal(t, "SWE I", queue[0].Title)
	assert.Equal(t, "Acme Corp.", queue[0].Company)
	assert.Equal(t, 2, queue[0].Row)
	// Marker match is case-insensitive.
	assert.Equal(t, "Initech", queue[1].Company)
	assert.Equal(t, 4, queue[1].Row)
}

func TestReadMarkedRejectsMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.csv", "Title,Company\nA,B\n")

	_, err := ReadMarked(path, "Apply Status", "Apply", zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestFilterRecordsKeywordsAndDedupe(t *testing.T) {
	records := []Record{
		{Title: "Software Engineer, New Grad", Company: "Acme", Location: "Remote", URL: "u1"},
		{Title: "Senior Software Engineer", Company: "Acme", Location: "Remote", URL: "u2"},
		{Title: "Associate Engineer", Company: "Initech", Location: "NYC", URL: "u3"},
		{Title: "Software Engineer, New Grad", Company: "Acme", Location: "Remote", URL: "u4"}, // dup
		{Title: "Entry Level Engineer II", Company: "Globex", Location: "SF", URL: "u5"},       // omitted by II
		{Title: "Staff Engineer", Company: "Hooli", Location: "SF", URL: "u6"},                 // no include hit
	}

	kept := FilterRecords(records,
		[]string{"New Grad", "Associate", "Entry"},
		[]string{"senior", "II", "staff"})

	require.Len(t, kept, 2)
	assert.Equal(t, "u1", kept[0].URL)
	assert.Equal(t, "u3", kept[1].URL)
}

func TestFilterRecordsMatchesAcrossSpacing(t *testing.T) {
	records := []Record{
		{Title: "NewGrad Software Engineer", Company: "Acme", URL: "u1"},
	}
	kept := FilterRecords(records, []string{"New Grad"}, nil)
	require.Len(t, kept, 1)
}

func TestFilterLatestWritesMarkedOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "LinkedInJobs_Run2.csv",
		"Title,Company,Location,URL\n"+
			"New Grad SWE,Acme,Remote,https://acme.example/1\n"+
			"Principal SWE,Acme,Remote,https://acme.example/2\n")

	outPath, kept, err := FilterLatest(dir, "filtered_LinkedInJobs_Run{run}.csv",
		[]string{"New Grad"}, []string{"principal"}, "Apply Status", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 1, kept)
	assert.Equal(t, filepath.Join(dir, "filtered_LinkedInJobs_Run2.csv"), outPath)

	records, err := ReadRecords(outPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "New Grad SWE", records[0].Title)

	// The filtered file is readable by the queue once a row is marked.
	content, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Apply Status")
}
