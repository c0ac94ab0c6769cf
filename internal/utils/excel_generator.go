package utils

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"apodetl/internal/models"
)

const (
	apodSheet = "APOD"
	infoSheet = "Info"
)

// XLSXContentType is the MIME type of the generated workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CreateAPODWorkbook renders stored APOD rows into an xlsx workbook.
func CreateAPODWorkbook(rows []models.APODData) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(apodSheet)
	if err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{"Date", "Title", "Media Type", "URL", "Explanation"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(apodSheet, cell, header); err != nil {
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(apodSheet, "A1", "E1", headerStyle); err != nil {
		return nil, err
	}

	for rowIdx, row := range rows {
		rowNum := rowIdx + 2
		values := []interface{}{
			row.Day(),
			models.Deref(row.Title),
			models.Deref(row.MediaType),
			models.Deref(row.URL),
			models.Deref(row.Explanation),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
			if err := f.SetCellValue(apodSheet, cell, v); err != nil {
				return nil, err
			}
		}

		if url := models.Deref(row.URL); url != "" {
			cell := fmt.Sprintf("D%d", rowNum)
			if err := f.SetCellHyperLink(apodSheet, cell, url, "External"); err != nil {
				return nil, err
			}
		}
	}

	widths := map[string]float64{"A": 12, "B": 40, "C": 12, "D": 50, "E": 80}
	for col, w := range widths {
		if err := f.SetColWidth(apodSheet, col, col, w); err != nil {
			return nil, err
		}
	}

	if err := createInfoSheet(f, rows); err != nil {
		return nil, err
	}

	f.SetActiveSheet(index)

	return f.WriteToBuffer()
}

func createInfoSheet(f *excelize.File, rows []models.APODData) error {
	if _, err := f.NewSheet(infoSheet); err != nil {
		return err
	}

	dateRange := "n/a"
	if len(rows) > 0 {
		first, last := rows[0].Day(), rows[0].Day()
		for _, r := range rows {
			if d := r.Day(); d < first {
				first = d
			} else if d > last {
				last = d
			}
		}
		dateRange = fmt.Sprintf("%s to %s", first, last)
	}

	metadata := [][2]interface{}{
		{"Report Generated", time.Now().UTC().Format("2006-01-02 15:04:05")},
		{"Total Records", len(rows)},
		{"Date Range", dateRange},
		{"Media Types", mediaTypeSummary(rows)},
	}

	for i, kv := range metadata {
		if err := f.SetCellValue(infoSheet, fmt.Sprintf("A%d", i+1), kv[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(infoSheet, fmt.Sprintf("B%d", i+1), kv[1]); err != nil {
			return err
		}
	}
	return f.SetColWidth(infoSheet, "A", "B", 24)
}

func mediaTypeSummary(rows []models.APODData) string {
	counts := map[string]int{}
	var order []string
	for _, r := range rows {
		mt := models.Deref(r.MediaType)
		if mt == "" {
			mt = "unknown"
		}
		if _, seen := counts[mt]; !seen {
			order = append(order, mt)
		}
		counts[mt]++
	}

	var buf bytes.Buffer
	for i, mt := range order {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s=%d", mt, counts[mt])
	}
	return buf.String()
}
