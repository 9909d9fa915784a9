// Package export renders detection reports as tabular files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/harborcrm/clover/pkg/models"
)

var csvHeader = []string{
	"group_id", "confidence", "type", "reason", "contact_count",
	"contact_id", "email", "phone", "address", "source", "created_at",
}

// WriteCSV writes one row per member contact, the same shape the review
// surface serves.
func WriteCSV(w io.Writer, reports []models.GroupReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, report := range reports {
		for _, c := range report.Contacts {
			row := []string{
				report.GroupID,
				string(report.Confidence),
				report.Type,
				report.Reason,
				strconv.Itoa(report.ContactCount),
				c.ID,
				c.Email,
				c.Phone,
				c.Address,
				c.Source,
				c.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the report to path, creating or truncating it.
func WriteCSVFile(path string, reports []models.GroupReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteCSV(f, reports); err != nil {
		return err
	}
	return f.Sync()
}
