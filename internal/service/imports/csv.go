package importService

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/nikhil/doussel/internal/apperrors"
)

// MaxRows bounds a single import.
const MaxRows = 5000

// Row is one imported record, keyed by lowercase column name.
type Row map[string]interface{}

// ParseCSV reads a header line followed by records. The separator is ';'
// when the header uses it, as spreadsheets exported in French do, and ','
// otherwise. Empty cells are left out of the row.
func ParseCSV(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	header := string(first)
	if i := strings.IndexByte(header, '\n'); i >= 0 {
		header = header[:i]
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if strings.Count(header, ";") > strings.Count(header, ",") {
		reader.Comma = ';'
	}

	columns, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.Validation("csv file is empty")
	}
	if err != nil {
		return nil, apperrors.Validation("invalid csv header: %v", err)
	}
	for i, c := range columns {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Validation("invalid csv line %d: %v", line, err)
		}
		row := Row{}
		for i, value := range record {
			value = strings.TrimSpace(value)
			if i >= len(columns) || columns[i] == "" || value == "" {
				continue
			}
			row[columns[i]] = value
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
		if len(rows) > MaxRows {
			return nil, apperrors.Validation("imports are limited to %d rows", MaxRows)
		}
	}
	if len(rows) == 0 {
		return nil, apperrors.Validation("csv file has no data rows")
	}
	return rows, nil
}
