package molecules

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ReadJSONFile reads a pandas JSON table from path.
func ReadJSONFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	t, err := ReadJSON(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return t, nil
}

// ReadJSON reads a table written by pandas DataFrame.to_json. Both the
// "columns" orient ({"Z": {"0": [...], ...}, ...}) and the "records" orient
// ([{"Z": [...], "D": [[...]], ...}, ...]) are accepted.
//
// Rows of the "columns" orient are ordered by their index label, numerically
// when every label is an integer.
func ReadJSON(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read JSON")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.Wrap(ErrMalformed, "empty JSON document")
	}

	var rows []map[string]json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, errors.Wrap(ErrMalformed, err.Error())
		}
	case '{':
		rows, err = columnsToRows(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrapf(ErrMalformed, "unexpected JSON document starting with %q", data[0])
	}
	return tableFromJSONRows(rows)
}

// columnsToRows turns the "columns" orient into a slice of rows.
func columnsToRows(data []byte) ([]map[string]json.RawMessage, error) {
	var columns map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &columns); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	labels := make(map[string]struct{})
	for _, col := range columns {
		for label := range col {
			labels[label] = struct{}{}
		}
	}
	index := make([]string, 0, len(labels))
	for label := range labels {
		index = append(index, label)
	}
	sortIndexLabels(index)

	rows := make([]map[string]json.RawMessage, len(index))
	for i, label := range index {
		row := make(map[string]json.RawMessage, len(columns))
		for name, col := range columns {
			if v, ok := col[label]; ok {
				row[name] = v
			}
		}
		rows[i] = row
	}
	return rows, nil
}

func sortIndexLabels(index []string) {
	numeric := make(map[string]int, len(index))
	for _, label := range index {
		v, err := strconv.Atoi(label)
		if err != nil {
			sort.Strings(index)
			return
		}
		numeric[label] = v
	}
	sort.Slice(index, func(i, j int) bool {
		return numeric[index[i]] < numeric[index[j]]
	})
}

func tableFromJSONRows(rows []map[string]json.RawMessage) (*Table, error) {
	if len(rows) == 0 {
		return &Table{}, nil
	}
	for _, col := range []string{ColumnZ, ColumnD} {
		if _, ok := rows[0][col]; !ok {
			return nil, errors.Wrapf(ErrSchema, "column %q not found", col)
		}
	}

	names := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		names = append(names, name)
	}
	candidates := propertyNames(names)

	// A property column must hold a number (or null) in every row.
	values := make([]map[string]float64, len(rows))
	for i := range rows {
		values[i] = make(map[string]float64, len(candidates))
	}
	props := make([]string, 0, len(candidates))
	for _, name := range candidates {
		numeric := true
		for i, row := range rows {
			v, ok := jsonNumber(row[name])
			if !ok {
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
		Molecules:  make([]Molecule, len(rows)),
		Properties: props,
	}
	for i, row := range rows {
		var z []float64
		if err := json.Unmarshal(row[ColumnZ], &z); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "row %d: Z: %v", i, err)
		}
		var d [][]float64
		if err := json.Unmarshal(row[ColumnD], &d); err != nil {
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

// jsonNumber decodes a number or null (NaN) cell.
func jsonNumber(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	if v == nil {
		return math.NaN(), true
	}
	return *v, true
}
