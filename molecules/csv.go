package molecules

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ReadCSVFile reads a CSV table from path.
func ReadCSVFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	t, err := ReadCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return t, nil
}

// ReadCSV reads a table with a header row. The Z and D cells hold JSON
// arrays, which is what pandas DataFrame.to_csv writes for list cells.
// Columns whose cells all parse as numbers (empty cells count as NaN) are
// properties; other columns are ignored.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(ErrSchema, "missing header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	colIndex := make(map[string]int, len(header))
	names := make([]string, len(header))
	for i, col := range header {
		names[i] = strings.TrimSpace(col)
		colIndex[names[i]] = i
	}
	for _, col := range []string{ColumnZ, ColumnD} {
		if _, ok := colIndex[col]; !ok {
			return nil, errors.Wrapf(ErrSchema, "column %q not found", col)
		}
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "row %d: %v", len(records), err)
		}
		records = append(records, record)
	}

	candidates := propertyNames(names)
	values := make([]map[string]float64, len(records))
	for i := range records {
		values[i] = make(map[string]float64, len(candidates))
	}
	props := make([]string, 0, len(candidates))
	for _, name := range candidates {
		col := colIndex[name]
		numeric := true
		for i, record := range records {
			v, err := parseCell(record[col])
			if err != nil {
				numeric = false
				break
			}
			values[i][name] = v
		}
		if numeric {
			props = append(props, name)
		} else {
			for i := range values {
				delete(values[i], name)
			}
		}
	}

	t := &Table{
		Molecules:  make([]Molecule, len(records)),
		Properties: props,
	}
	for i, record := range records {
		var z []float64
		if err := json.Unmarshal([]byte(record[colIndex[ColumnZ]]), &z); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "row %d: Z: %v", i, err)
		}
		var d [][]float64
		if err := json.Unmarshal([]byte(record[colIndex[ColumnD]]), &d); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "row %d: D: %v", i, err)
		}
		flat, err := flattenSquare(i, len(z), d)
		if err != nil {
			return nil, err
		}
		m, err := newMolecule(i, z, flat, values[i])
		if err != nil {
			return nil, err
		}
		t.Molecules[i] = m
	}
	return t, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
