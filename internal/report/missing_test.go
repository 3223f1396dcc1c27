package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediamigrate/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func TestMissing_UnionSortedDeduplicated(t *testing.T) {
	sources := []domain.SourceEntry{
		{ID: "vid-resolved", URL: strPtr("https://cdn.example.com/ok.mp4")},
		{ID: "vid-nosrc-b", URL: nil},
		{ID: "vid-nosrc-a", URL: nil},
	}
	errRecords := []domain.ErrorRecord{
		{ID: "vid-failed", Message: "transfer failed"},
		{ID: "vid-nosrc-a", Message: "no eligible source"},
	}

	ids := Missing(sources, errRecords)

	assert.Equal(t, []string{"vid-failed", "vid-nosrc-a", "vid-nosrc-b"}, ids)
}

func TestMissing_EmptyURLCountsAsMissing(t *testing.T) {
	sources := []domain.SourceEntry{
		{ID: "vid-1", URL: strPtr("")},
	}

	assert.Equal(t, []string{"vid-1"}, Missing(sources, nil))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []string{"a", "b"}))
	assert.Equal(t, "a\nb\n", buf.String())
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video_sources.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "vid-1", "url": "https://cdn.example.com/v.mp4"},
		{"id": "vid-2", "url": null}
	]`), 0644))

	sources, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.NotNil(t, sources[0].URL)
	assert.Nil(t, sources[1].URL)
}

func TestLoadErrorReport(t *testing.T) {
	t.Run("AcceptsLegacyVideoIDField", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "errors.json")
		require.NoError(t, os.WriteFile(path, []byte(`[
			{"id": "vid-new", "error": "boom"},
			{"videoId": "vid-old", "error": "bang"}
		]`), 0644))

		records, err := LoadErrorReport(path)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "vid-new", records[0].ID)
		assert.Equal(t, "vid-old", records[1].ID)
	})

	t.Run("AbsentFileIsEmpty", func(t *testing.T) {
		records, err := LoadErrorReport(filepath.Join(t.TempDir(), "absent.json"))
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("MalformedFileErrors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "errors.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

		_, err := LoadErrorReport(path)
		assert.Error(t, err)
	})
}
