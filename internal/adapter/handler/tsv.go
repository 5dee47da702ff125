package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

var (
	inventoryColumns = []string{"barcode", "quantity"}
	productColumns   = []string{"barcode", "client_email", "name", "mrp"}
)

// tsvReader maps tab separated records onto header names. Line numbers are
// those of the uploaded file, so the header is line 1.
type tsvReader struct {
	r       *csv.Reader
	columns map[string]int
	width   int
}

func newTSVReader(r io.Reader, required []string) (*tsvReader, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.Validation("upload is empty, a header row is required")
	}
	if err != nil {
		return nil, domain.Validation("read header: %v", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; dup {
			return nil, domain.Validation("header column %q appears more than once", name)
		}
		columns[name] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, domain.Validation("header is missing column(s): %s", strings.Join(missing, ", "))
	}

	return &tsvReader{r: cr, columns: columns, width: len(header)}, nil
}

// next returns the fields of the next non-blank record. A malformed record is
// reported through parseErr instead of err so the caller can keep a
// placeholder row for it.
func (t *tsvReader) next() (fields map[string]string, line int, parseErr string, err error) {
	for {
		record, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return nil, 0, "", io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, pe.StartLine, fmt.Sprintf("malformed line: %v", pe.Err), nil
			}
			return nil, 0, "", err
		}
		line, _ := t.r.FieldPos(0)
		if isBlank(record) {
			continue
		}

		if len(record) != t.width {
			return nil, line, fmt.Sprintf("expected %d columns, got %d", t.width, len(record)), nil
		}
		fields = make(map[string]string, len(t.columns))
		for name, i := range t.columns {
			fields[name] = strings.TrimSpace(record[i])
		}
		return fields, line, "", nil
	}
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParseInventoryTSV reads barcode and quantity delta columns.
func ParseInventoryTSV(r io.Reader) ([]domain.InventoryDeltaRow, error) {
	tr, err := newTSVReader(r, inventoryColumns)
	if err != nil {
		return nil, err
	}

	var rows []domain.InventoryDeltaRow
	for {
		fields, line, parseErr, err := tr.next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read inventory upload: %w", err)
		}

		row := domain.InventoryDeltaRow{Line: line, ParseError: parseErr}
		if parseErr == "" {
			row.Barcode = fields["barcode"]
			delta, convErr := strconv.ParseInt(fields["quantity"], 10, 32)
			switch {
			case errors.Is(convErr, strconv.ErrRange):
				row.ParseError = fmt.Sprintf("quantity %s is out of range", fields["quantity"])
			case convErr != nil:
				row.ParseError = fmt.Sprintf("quantity %q is not an integer", fields["quantity"])
			default:
				row.Delta = int(delta)
			}
		}
		rows = append(rows, row)
	}
}

// ParseProductTSV reads product rows. Field level validation is left to the
// bulk service so every problem is reported against its row.
func ParseProductTSV(r io.Reader) ([]domain.ProductRow, error) {
	tr, err := newTSVReader(r, productColumns)
	if err != nil {
		return nil, err
	}

	var rows []domain.ProductRow
	for {
		fields, line, parseErr, err := tr.next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read product upload: %w", err)
		}

		row := domain.ProductRow{Line: line, ParseError: parseErr}
		if parseErr == "" {
			row.Barcode = fields["barcode"]
			row.ClientEmail = strings.ToLower(fields["client_email"])
			row.Name = fields["name"]
			row.MRP = fields["mrp"]
		}
		rows = append(rows, row)
	}
}

// WriteResultsTSV renders row results in the same tabular format as the
// uploads.
func WriteResultsTSV(w io.Writer, results []domain.RowResult) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"line", "key", "status", "comment"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write([]string{strconv.Itoa(r.Line), r.Key, string(r.Status), r.Comment}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
