package jobs

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Record is one scraped listing row.
type Record struct {
	Title    string
	Company  string
	Location string
	URL      string
}

// matchTerm normalizes a title or term for matching: lowercase with all
// spaces removed, so "New Grad" matches "new-grad" titles however the site
// spaces them.
func matchTerm(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

// FilterRecords keeps listings whose title contains at least one include
// term and none of the omit terms, then drops duplicate
// (title, company, location) tuples, preserving first-seen order. An empty
// include list keeps everything not omitted.
func FilterRecords(records []Record, includeTerms, omitTerms []string) []Record {
	include := make([]string, 0, len(includeTerms))
	for _, t := range includeTerms {
		include = append(include, matchTerm(t))
	}
	omit := make([]string, 0, len(omitTerms))
	for _, t := range omitTerms {
		omit = append(omit, matchTerm(t))
	}

	seen := make(map[string]bool)
	var kept []Record
	for _, r := range records {
		title := matchTerm(r.Title)
		if len(include) > 0 {
			found := false
			for _, t := range include {
				if strings.Contains(title, t) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		omitted := false
		for _, t := range omit {
			if t != "" && strings.Contains(title, t) {
				omitted = true
				break
			}
		}
		if omitted {
			continue
		}
		key := title + "\x00" + matchTerm(r.Company) + "\x00" + matchTerm(r.Location)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}
	return kept
}

// ReadRecords loads a scrape CSV produced by the scraper or the filter.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scrape file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing scrape file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("scrape file %s is empty", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, Record{
			Title:    cell(row, ColumnTitle),
			Company:  cell(row, ColumnCompany),
			Location: cell(row, ColumnLocation),
			URL:      cell(row, ColumnURL),
		})
	}
	return records, nil
}

// WriteRecords writes listings as a scrape CSV. When markerColumn is
// non-empty an extra empty column of that name is appended for the operator
// to hand-mark rows.
func WriteRecords(path string, records []Record, markerColumn string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{ColumnTitle, ColumnCompany, ColumnLocation, ColumnURL}
	if markerColumn != "" {
		header = append(header, markerColumn)
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range records {
		row := []string{r.Title, r.Company, r.Location, r.URL}
		if markerColumn != "" {
			row = append(row, "")
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}

// FilterLatest filters the newest raw scrape run into its filtered
// counterpart, returning the output path and the number of rows kept. The raw
// pattern is the filtered pattern without its "filtered_" prefix.
func FilterLatest(dir, filteredPattern string, includeTerms, omitTerms []string, markerColumn string, logger *zap.Logger) (string, int, error) {
	log := logger.Named("filter")
	rawPattern := strings.TrimPrefix(filteredPattern, "filtered_")

	rawPath, run, err := LatestRunFile(dir, rawPattern)
	if err != nil {
		return "", 0, err
	}
	records, err := ReadRecords(rawPath)
	if err != nil {
		return "", 0, err
	}
	kept := FilterRecords(records, includeTerms, omitTerms)

	outName := strings.ReplaceAll(filteredPattern, runPlaceholder, fmt.Sprintf("%d", run))
	outPath := filepath.Join(dir, outName)
	if err := WriteRecords(outPath, kept, markerColumn); err != nil {
		return "", 0, err
	}
	log.Info("Filtered scrape run.",
		zap.String("input", filepath.Base(rawPath)),
		zap.String("output", outName),
		zap.Int("in", len(records)),
		zap.Int("kept", len(kept)))
	return outPath, len(kept), nil
}
