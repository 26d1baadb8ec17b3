package molecules

import (
	"io"
	"math"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
)

const parquetReadBatch = 64

// ReadParquetFile reads a Parquet table from path.
func ReadParquetFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	t, err := ReadParquet(file, stat.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return t, nil
}

// ReadParquet reads a table whose Z column is a repeated integer column and
// whose D column is a repeated floating point column holding the n x n
// distance matrix row-major. Both plain repeated columns and LIST annotated
// columns (as written by pyarrow) are accepted. Every other top level
// numeric column is a property; null property values become NaN.
func ReadParquet(input io.ReaderAt, size int64) (*Table, error) {
	pf, err := parquet.OpenFile(input, size)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	reader := parquet.NewReader(pf)
	defer reader.Close()
	schema := reader.Schema()

	zCol, ok := lookupListLeaf(schema, ColumnZ)
	if !ok {
		return nil, errors.Wrapf(ErrSchema, "column %q not found", ColumnZ)
	}
	dCol, ok := lookupListLeaf(schema, ColumnD)
	if !ok {
		return nil, errors.Wrapf(ErrSchema, "column %q not found", ColumnD)
	}

	propCols := make(map[int]string)
	names := make([]string, 0)
	for _, field := range schema.Fields() {
		if !field.Leaf() || field.Repeated() || !numericKind(field.Type().Kind()) {
			continue
		}
		name := field.Name()
		if name == ColumnZ || name == ColumnD {
			continue
		}
		leaf, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		propCols[leaf.ColumnIndex] = name
		names = append(names, name)
	}
	sort.Strings(names)

	t := &Table{Properties: names}
	buf := make([]parquet.Row, parquetReadBatch)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			i := len(t.Molecules)
			var z, d []float64
			props := make(map[string]float64, len(propCols))
			for _, v := range row {
				col := v.Column()
				switch {
				case col == zCol:
					if !v.IsNull() {
						z = append(z, valueFloat(v))
					}
				case col == dCol:
					if !v.IsNull() {
						d = append(d, valueFloat(v))
					}
				default:
					name, ok := propCols[col]
					if !ok {
						continue
					}
					if v.IsNull() {
						props[name] = math.NaN()
					} else {
						props[name] = valueFloat(v)
					}
				}
			}
			m, err := newMolecule(i, z, d, props)
			if err != nil {
				return nil, err
			}
			t.Molecules = append(t.Molecules, m)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "row %d: %v", len(t.Molecules), err)
		}
	}
	return t, nil
}

// WriteParquetFile writes t to path in the layout ReadParquet expects.
func WriteParquetFile(path string, t *Table) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := WriteParquet(file, t); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(file.Close(), "failed to close %s", path)
}

// WriteParquet writes t as Parquet: Z as repeated int32, D as repeated
// double (row-major) and one required double column per property.
func WriteParquet(w io.Writer, t *Table) error {
	group := parquet.Group{
		ColumnZ: parquet.Repeated(parquet.Int(32)),
		ColumnD: parquet.Repeated(parquet.Leaf(parquet.DoubleType)),
	}
	for _, name := range t.Properties {
		group[name] = parquet.Leaf(parquet.DoubleType)
	}
	schema := parquet.NewSchema("molecule", group)

	columnOf := func(name string) (int, error) {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return 0, errors.Wrapf(ErrSchema, "column %q missing from generated schema", name)
		}
		return leaf.ColumnIndex, nil
	}
	zCol, err := columnOf(ColumnZ)
	if err != nil {
		return err
	}
	dCol, err := columnOf(ColumnD)
	if err != nil {
		return err
	}
	propCols := make([]int, len(t.Properties))
	for i, name := range t.Properties {
		if propCols[i], err = columnOf(name); err != nil {
			return err
		}
	}
	numColumns := len(schema.Columns())

	writer := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, 0, len(t.Molecules))
	for _, m := range t.Molecules {
		// Values must be laid out in column order.
		columns := make([][]parquet.Value, numColumns)

		z := make([]parquet.Value, 0, len(m.Z))
		for i, a := range m.Z {
			z = append(z, parquet.ValueOf(a).Level(repetitionLevel(i), 1, zCol))
		}
		columns[zCol] = orNull(z, zCol)

		raw := m.D.RawMatrix()
		n := m.NumAtoms()
		d := make([]parquet.Value, 0, n*n)
		for i := range n {
			for j := range n {
				v := raw.Data[i*raw.Stride+j]
				d = append(d, parquet.ValueOf(v).Level(repetitionLevel(i*n+j), 1, dCol))
			}
		}
		columns[dCol] = orNull(d, dCol)

		for i, name := range t.Properties {
			v, ok := m.Props[name]
			if !ok {
				v = math.NaN()
			}
			columns[propCols[i]] = []parquet.Value{parquet.ValueOf(v).Level(0, 0, propCols[i])}
		}

		row := make(parquet.Row, 0, len(z)+len(d)+len(t.Properties))
		for _, values := range columns {
			row = append(row, values...)
		}
		rows = append(rows, row)
	}

	if _, err := writer.WriteRows(rows); err != nil {
		writer.Close()
		return errors.Wrap(err, "failed to write rows")
	}
	return errors.Wrap(writer.Close(), "failed to flush parquet writer")
}

// lookupListLeaf finds the leaf column of a repeated field, either stored
// directly or wrapped in a LIST group.
func lookupListLeaf(schema *parquet.Schema, name string) (int, bool) {
	for _, path := range [][]string{
		{name},
		{name, "list", "element"},
		{name, "list", "item"},
	} {
		if leaf, ok := schema.Lookup(path...); ok {
			return leaf.ColumnIndex, true
		}
	}
	return 0, false
}

func numericKind(k parquet.Kind) bool {
	switch k {
	case parquet.Int32, parquet.Int64, parquet.Float, parquet.Double:
		return true
	}
	return false
}

func valueFloat(v parquet.Value) float64 {
	switch v.Kind() {
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Float:
		return float64(v.Float())
	default:
		return v.Double()
	}
}

func repetitionLevel(i int) int {
	if i == 0 {
		return 0
	}
	return 1
}

func orNull(values []parquet.Value, col int) []parquet.Value {
	if len(values) > 0 {
		return values
	}
	return []parquet.Value{parquet.NullValue().Level(0, 0, col)}
}
