package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Output:     "/abs/out",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{Index: 4, Status: StatusSkipped, Metadata: MetadataEmbedded},
			{Index: 2, Status: StatusFailed, ErrorCode: ErrCodeFetchFailed},
			{Index: 1, Status: StatusDownloaded, Metadata: MetadataEmbedded, Duplicate: true},
			{Index: 3, Status: StatusDownloaded, Metadata: MetadataFailed},
			{Index: 5, Status: StatusFiltered},
			{Index: 6, Status: StatusInvalid},
			{Index: 7, Status: StatusSkipped, Metadata: MetadataFailed},
		},
	}

	r.Finalize()

	for i, it := range r.Items {
		require.Equal(t, i+1, it.Index, "items 必须按目录顺序排列")
	}
	assert.Equal(t, ReportSummary{
		Total:            5,
		Downloaded:       2,
		Skipped:          2,
		Duplicates:       1,
		MetadataEmbedded: 2,
		FailedDownload:   1,
		FailedMetadata:   1,
		Filtered:         1,
		Invalid:          1,
	}, r.Summary)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"started_at":"2026-02-09T02:00:00Z"`)
	assert.Contains(t, string(b), `"attempts":[]`)
	assert.Nil(t, r.Items[0].Attempts, "MarshalJSON 不应修改调用方的 items")
}

func TestItemResult_Failed(t *testing.T) {
	assert.True(t, ItemResult{Status: StatusFailed}.Failed())
	assert.True(t, ItemResult{Status: StatusDownloaded, Metadata: MetadataFailed}.Failed())
	assert.False(t, ItemResult{Status: StatusSkipped, Metadata: MetadataEmbedded}.Failed())
	assert.False(t, ItemResult{Status: StatusFiltered}.Failed())
}
