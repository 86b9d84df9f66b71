package contactfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Row is one data row keyed by normalized header names. Blank cells are absent.
type Row map[string]string

// Parse reads a .csv or .xlsx contact file. The first line is the header.
func Parse(fileName string, r io.Reader) ([]Row, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), ".")); ext {
	case "csv":
		return parseCSV(r)
	case "xlsx":
		return parseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: Unsupported file type: %s", domain.ErrValidation, ext)
	}
}

func parseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read csv header: %v", domain.ErrValidation, err)
	}
	headers := normalizeHeaders(header)

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read csv: %v", domain.ErrValidation, err)
		}
		rows = append(rows, toRow(headers, record))
	}
	return rows, nil
}

func parseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", domain.ErrValidation, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %v", domain.ErrValidation, sheet, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := normalizeHeaders(records[0])
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, toRow(headers, record))
	}
	return rows, nil
}

func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = h
	}
	return out
}

func toRow(headers, record []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i >= len(record) {
			break
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			row[h] = v
		}
	}
	return row
}
