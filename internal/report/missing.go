package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"mediamigrate/internal/core/domain"
)

// Missing derives the missing-items list: every ID whose source entry has
// no URL, plus every ID in the error report, deduplicated and sorted.
func Missing(sources []domain.SourceEntry, errRecords []domain.ErrorRecord) []string {
	seen := make(map[string]struct{})
	for _, src := range sources {
		if src.URL == nil || *src.URL == "" {
			seen[src.ID] = struct{}{}
		}
	}
	for _, rec := range errRecords {
		seen[rec.ID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadSources reads a sources dump: a JSON array of {id, url} entries.
func LoadSources(path string) ([]domain.SourceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	var entries []domain.SourceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	return entries, nil
}

// LoadErrorReport reads an error-report file. Older reports used "videoId"
// instead of "id"; both are accepted. A missing file yields an empty list.
func LoadErrorReport(path string) ([]domain.ErrorRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read error report %s: %w", path, err)
	}

	var raw []struct {
		ID      string `json:"id"`
		VideoID string `json:"videoId"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error report %s: %w", path, err)
	}

	records := make([]domain.ErrorRecord, 0, len(raw))
	for _, r := range raw {
		id := r.ID
		if id == "" {
			id = r.VideoID
		}
		records = append(records, domain.ErrorRecord{ID: id, Message: r.Error})
	}
	return records, nil
}

// Write emits the IDs newline-separated.
func Write(w io.Writer, ids []string) error {
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}
