// Package csvgen projects product records into the import CSV consumed by
// the storefront admin. Failed items are included with a populated error
// column so the operator can see exactly which inputs need re-submission.
package csvgen

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielgmorais/bulkbridge/internal/model"
)

// Header is the fixed column order of the import file.
var Header = []string{
	"name", "description", "price", "categoryId", "downloadUrl",
	"imageUrl", "keywords", "isFeatured", "isArchived", "status", "error",
}

// Generate emits one row per record in input order. Multi-valued fields are
// comma-joined.
func Generate(records []model.ProductRecord) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(Header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		status := r.Status
		if status == "" {
			status = model.ProductSuccess
		}
		row := []string{
			r.Name,
			r.Description,
			r.Price,
			r.CategoryID,
			r.DownloadURL,
			strings.Join(r.ImageURLs, ","),
			strings.Join(r.Keywords, ","),
			strconv.FormatBool(r.IsFeatured),
			strconv.FormatBool(r.IsArchived),
			status,
			r.Error,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return b.String(), nil
}
