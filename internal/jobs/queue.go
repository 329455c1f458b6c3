// Package jobs handles the CSV side of the pipeline: locating the latest
// scrape run, keyword-filtering raw listings, and reading back the rows the
// operator hand-marked for application.
package jobs

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/api/schemas"
)

// Column names shared by the scraper's output, the filter, and the queue
// reader.
const (
	ColumnTitle    = "Title"
	ColumnCompany  = "Company"
	ColumnLocation = "Location"
	ColumnURL      = "URL"
)

// runPlaceholder in a file pattern stands for the run number.
const runPlaceholder = "{run}"

// LatestRunFile finds the highest-numbered file in dir matching pattern,
// where pattern contains {run} for the run number. Returns the path and run
// number, or an error when no run exists yet.
func LatestRunFile(dir, pattern string) (string, int, error) {
	re, err := compileRunPattern(pattern)
	if err != nil {
		return "", 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("reading scrape directory %s: %w", dir, err)
	}

	bestRun := -1
	bestName := ""
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		run, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if run > bestRun {
			bestRun = run
			bestName = entry.Name()
		}
	}
	if bestRun < 0 {
		return "", 0, fmt.Errorf("no file matching %q in %s", pattern, dir)
	}
	return filepath.Join(dir, bestName), bestRun, nil
}

// NextRunFile returns the path for the run after the latest one, starting at
// run 1 when the directory has none.
func NextRunFile(dir, pattern string) (string, int, error) {
	_, latest, err := LatestRunFile(dir, pattern)
	if err != nil {
		latest = 0
	}
	run := latest + 1
	name := strings.ReplaceAll(pattern, runPlaceholder, strconv.Itoa(run))
	return filepath.Join(dir, name), run, nil
}

func compileRunPattern(pattern string) (*regexp.Regexp, error) {
	if !strings.Contains(pattern, runPlaceholder) {
		return nil, fmt.Errorf("file pattern %q has no %s placeholder", pattern, runPlaceholder)
	}
	quoted := regexp.QuoteMeta(pattern)
	expr := "^" + strings.ReplaceAll(quoted, regexp.QuoteMeta(runPlaceholder), `(\d+)`) + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling file pattern %q: %w", pattern, err)
	}
	return re, nil
}

// ReadMarked reads the rows of a filtered scrape file whose marker column
// equals markerValue (case-insensitive, trimmed). Rows missing a URL are
// skipped with a warning rather than failing the whole queue.
func ReadMarked(path, markerColumn, markerValue string, logger *zap.Logger) ([]schemas.Job, error) {
	log := logger.Named("queue").With(zap.String("file", filepath.Base(path)))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queue file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing queue file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("queue file %s is empty", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{ColumnTitle, ColumnCompany, ColumnURL, markerColumn} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("queue file %s is missing column %q", path, required)
		}
	}

	cell := func(row []string, name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var queue []schemas.Job
	for i, row := range rows[1:] {
		if !strings.EqualFold(cell(row, markerColumn), markerValue) {
			continue
		}
		job := schemas.Job{
			Title:   cell(row, ColumnTitle),
			Company: cell(row, ColumnCompany),
			URL:     cell(row, ColumnURL),
			Row:     i + 2, // 1-based, counting the header row
		}
		if job.URL == "" {
			log.Warn("Marked row has no URL, skipping.", zap.Int("row", job.Row))
			continue
		}
		queue = append(queue, job)
	}
	log.Info("Queue loaded.", zap.Int("marked", len(queue)), zap.Int("total_rows", len(rows)-1))
	return queue, nil
}
