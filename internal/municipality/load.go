package municipality

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Column identifiers. Header cells are matched against the aliases below
// after Unicode normalisation and case folding.
const (
	colName    = "name"
	colXMin    = "xmin"
	colYMin    = "ymin"
	colXMax    = "xmax"
	colYMax    = "ymax"
	colContact = "contact"
)

var headerAliases = map[string][]string{
	colName:    {"gemeinde", "name", "municipality", "gemeindename"},
	colXMin:    {"xmin", "x_min", "minx"},
	colYMin:    {"ymin", "y_min", "miny"},
	colXMax:    {"xmax", "x_max", "maxx"},
	colYMax:    {"ymax", "y_max", "maxy"},
	colContact: {"kontakt", "contact", "email", "e-mail", "contact email", "kontakt e-mail"},
}

var requiredColumns = []string{colName, colXMin, colYMin, colXMax, colYMax, colContact}

// LoadResult is the outcome of parsing a source.
type LoadResult struct {
	Municipalities []Municipality
	Skipped        []*RowError
}

// LoadDefault parses the embedded municipality list.
func LoadDefault() (LoadResult, error) {
	return Load(bytes.NewReader(defaultCSV))
}

// LoadFile parses the CSV file at path.
func LoadFile(path string) (LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("municipality: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a CSV source with a header row. Comma and semicolon
// separators are both accepted. Rows that fail to parse are collected in
// LoadResult.Skipped; ErrEmpty is returned only when no row survives.
func Load(r io.Reader) (LoadResult, error) {
	br := bufio.NewReader(r)
	comma, err := sniffComma(br)
	if err != nil {
		return LoadResult{}, fmt.Errorf("municipality: read header: %w", err)
	}

	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return LoadResult{}, fmt.Errorf("%w: source is empty", ErrEmpty)
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("municipality: read header: %w", err)
	}

	index, missing := mapHeader(header)
	if len(missing) > 0 {
		return LoadResult{}, fmt.Errorf("%w: header is missing column(s) %s", ErrEmpty, strings.Join(missing, ", "))
	}

	var res LoadResult
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Skipped = append(res.Skipped, &RowError{Row: pe.StartLine, Reason: "malformed CSV", Err: err})
				continue
			}
			return res, fmt.Errorf("municipality: read rows: %w", err)
		}
		if isBlank(record) {
			continue
		}
		row, _ := reader.FieldPos(0)

		m, rowErr := parseRow(row, record, index)
		if rowErr != nil {
			res.Skipped = append(res.Skipped, rowErr)
			continue
		}
		res.Municipalities = append(res.Municipalities, m)
	}

	if len(res.Municipalities) == 0 {
		return res, fmt.Errorf("%w: %d row(s) skipped", ErrEmpty, len(res.Skipped))
	}
	return res, nil
}

func parseRow(row int, record []string, index map[string]int) (Municipality, *RowError) {
	cell := func(col string) (string, *RowError) {
		i := index[col]
		if i >= len(record) {
			return "", &RowError{Row: row, Column: col, Reason: "missing value"}
		}
		return strings.TrimSpace(record[i]), nil
	}
	// required treats an empty cell like an absent one.
	required := func(col string) (string, *RowError) {
		v, rowErr := cell(col)
		if rowErr == nil && v == "" {
			rowErr = &RowError{Row: row, Column: col, Reason: "missing value"}
		}
		return v, rowErr
	}

	name, rowErr := cell(colName)
	if rowErr != nil {
		return Municipality{}, rowErr
	}
	if name == "" {
		return Municipality{}, &RowError{Row: row, Column: colName, Reason: "empty name"}
	}

	var coords [4]float64
	for i, col := range []string{colXMin, colYMin, colXMax, colYMax} {
		raw, rowErr := required(col)
		if rowErr != nil {
			return Municipality{}, rowErr
		}
		v, err := parseCoordinate(raw)
		if err != nil {
			return Municipality{}, &RowError{Row: row, Column: col, Reason: fmt.Sprintf("invalid number %q", raw), Err: err}
		}
		coords[i] = v
	}

	bbox := BBox{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]}
	if err := bbox.Validate(); err != nil {
		return Municipality{}, &RowError{Row: row, Reason: err.Error(), Err: err}
	}

	contact, rowErr := required(colContact)
	if rowErr != nil {
		return Municipality{}, rowErr
	}

	return Municipality{
		Name:    norm.NFC.String(name),
		BBox:    bbox,
		Contact: contact,
	}, nil
}

// parseCoordinate accepts plain decimals and Swiss thousands separators
// (2'635'000).
func parseCoordinate(raw string) (float64, error) {
	cleaned := strings.NewReplacer("'", "", "’", "", " ", "").Replace(raw)
	return strconv.ParseFloat(cleaned, 64)
}

func mapHeader(header []string) (map[string]int, []string) {
	fold := cases.Fold()
	lookup := make(map[string]string)
	for col, aliases := range headerAliases {
		for _, a := range aliases {
			lookup[a] = col
		}
	}

	index := make(map[string]int, len(requiredColumns))
	for i, h := range header {
		key := fold.String(norm.NFC.String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))))
		if col, ok := lookup[key]; ok {
			if _, seen := index[col]; !seen {
				index[col] = i
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	return index, missing
}

// sniffComma peeks at the header line and picks ';' when it contains
// semicolons but no commas.
func sniffComma(br *bufio.Reader) (rune, error) {
	line, err := peekLine(br)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, err
	}
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if bytes.IndexByte(line, ';') >= 0 && bytes.IndexByte(line, ',') < 0 {
		return ';', nil
	}
	return ',', nil
}

func peekLine(br *bufio.Reader) ([]byte, error) {
	for n := 64; ; n *= 2 {
		buf, err := br.Peek(n)
		if bytes.IndexByte(buf, '\n') >= 0 || err != nil {
			return buf, err
		}
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
