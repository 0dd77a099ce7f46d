// Package catalog loads product items from spreadsheet exports. It is the
// caller-side collaborator of the sourcing pipeline: the pipeline itself
// only ever sees the resulting []Item.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Item is one row of the product catalog. SKU is the stable identifier;
// Name is the match target for image validation. Immutable once loaded.
type Item struct {
	SKU  string
	Name string
	// HasImage is set when the source row already carries an image
	// reference, letting callers drop rows that need no sourcing.
	HasImage bool
}

// Load reads items from path, dispatching on the file extension.
// Supported formats are .csv, .xls and .xlsx.
func Load(path string) ([]Item, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening catalog: %w", err)
		}
		defer f.Close()
		return LoadCSV(f)
	case ".xls", ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}
}

// LoadCSV parses a CSV export. The first row must be a header containing
// a SKU column; Name and Images/Image columns are optional. Header
// matching is case-insensitive and whitespace-tolerant.
func LoadCSV(r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var items []Item
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading catalog row: %w", err)
		}
		if item, ok := rowToItem(record, cols); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// LoadXLSX parses the first sheet of an Excel workbook using the same
// column rules as LoadCSV.
func LoadXLSX(path string) ([]Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, record := range rows[1:] {
		if item, ok := rowToItem(record, cols); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// Truncate returns at most n items, used by dry runs to smoke-test the
// pipeline on a prefix of the catalog.
func Truncate(items []Item, n int) []Item {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}

type columns struct {
	sku   int
	name  int
	image int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{sku: -1, name: -1, image: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "sku":
			cols.sku = i
		case "name":
			cols.name = i
		case "images", "image":
			// First image-ish column wins
			if cols.image < 0 {
				cols.image = i
			}
		}
	}
	if cols.sku < 0 {
		return cols, fmt.Errorf("missing required column: SKU")
	}
	return cols, nil
}

func rowToItem(record []string, cols columns) (Item, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	item := Item{
		SKU:  cell(cols.sku),
		Name: cell(cols.name),
	}
	if item.SKU == "" {
		return Item{}, false
	}
	if img := cell(cols.image); img != "" {
		item.HasImage = true
	}
	return item, true
}
