package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborcrm/clover/pkg/models"
)

func TestWriteCSVOneRowPerMember(t *testing.T) {
	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	reports := []models.GroupReport{
		{
			GroupID:      "abc123",
			Confidence:   models.TierHigh,
			Type:         "phone",
			Reason:       "same phone + same name",
			ContactCount: 2,
			Contacts: []models.GroupReportContact{
				{ID: "c1", Email: "lynn@example.com", Phone: "555-0100", Source: "paypal", CreatedAt: created},
				{ID: "c2", Email: "lynn.alt@example.com", Phone: "555-0100", Source: "kajabi", CreatedAt: created.AddDate(1, 5, 0)},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, reports))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + two members

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "abc123", rows[1][0])
	assert.Equal(t, "HIGH", rows[1][1])
	assert.Equal(t, "c1", rows[1][5])
	assert.Equal(t, "c2", rows[2][5])
	assert.Equal(t, "2023-01-01T00:00:00Z", rows[1][10])
}

func TestWriteCSVEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}

func TestWriteCSVEscapesCommasInReason(t *testing.T) {
	reports := []models.GroupReport{
		{
			GroupID:      "g1",
			Confidence:   models.TierMedium,
			Type:         "phone",
			Reason:       "same phone, different names (possible shared line)",
			ContactCount: 1,
			Contacts:     []models.GroupReportContact{{ID: "c1"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, reports))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "same phone, different names (possible shared line)", rows[1][3])
}
