// Package molecules holds the source table of a molecular property dataset:
// per molecule the atomic numbers, the pairwise distance matrix and the
// scalar properties that can serve as regression targets.
//
// Tables can be read from three layouts:
//   - JSON as written by pandas DataFrame.to_json, in "columns" (the pandas
//     default) or "records" orient
//   - CSV with a header row, where the Z and D cells hold JSON arrays
//   - Parquet with repeated Z and D columns, D stored row-major
//
// Every layout uses the column names Z (atomic numbers) and D (distances).
// Any other numeric column is a property.
package molecules

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// ColumnZ holds the atomic numbers of a molecule.
	ColumnZ = "Z"
	// ColumnD holds the pairwise distance matrix of a molecule.
	ColumnD = "D"
)

var (
	// ErrSchema is returned when a required column is missing.
	ErrSchema = errors.New("schema error")
	// ErrMalformed is returned when a record cannot be decoded or its
	// distance matrix does not match its atom count.
	ErrMalformed = errors.New("malformed record")
	// ErrUnknownFormat is returned by Load for unsupported file extensions.
	ErrUnknownFormat = errors.New("unknown source format")
)

// Molecule is one record of the source table.
type Molecule struct {
	// Z are the atomic numbers, one per atom.
	Z []int32
	// D is the n x n distance matrix, n = len(Z).
	D *mat.Dense
	// Props maps property column name to value. Missing values are NaN.
	Props map[string]float64
}

// NumAtoms returns the number of atoms in the molecule.
func (m Molecule) NumAtoms() int {
	return len(m.Z)
}

// Validate checks that the molecule has atoms and an n x n distance matrix.
func (m Molecule) Validate() error {
	n := m.NumAtoms()
	if n == 0 {
		return errors.Wrap(ErrMalformed, "no atoms")
	}
	if m.D == nil {
		return errors.Wrap(ErrMalformed, "missing distance matrix")
	}
	if r, c := m.D.Dims(); r != n || c != n {
		return errors.Wrapf(ErrMalformed, "distance matrix is %d x %d, want %d x %d", r, c, n, n)
	}
	return nil
}

// Table is an ordered, read-only collection of molecules.
type Table struct {
	Molecules []Molecule
	// Properties lists the property columns present for every molecule.
	Properties []string
}

// Len returns the number of molecules.
func (t *Table) Len() int {
	return len(t.Molecules)
}

// HasProperty reports whether name is a property column of the table.
func (t *Table) HasProperty(name string) bool {
	for _, p := range t.Properties {
		if p == name {
			return true
		}
	}
	return false
}

// Property returns the values of a property column in table order.
func (t *Table) Property(name string) ([]float64, error) {
	if !t.HasProperty(name) {
		return nil, errors.Wrapf(ErrSchema, "property %q not found, available: %s",
			name, strings.Join(t.Properties, ", "))
	}
	out := make([]float64, len(t.Molecules))
	for i, m := range t.Molecules {
		v, ok := m.Props[name]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out, nil
}

// MaxAtoms returns the largest atom count in the table, the smallest usable
// padding size.
func (t *Table) MaxAtoms() int {
	maxAtoms := 0
	for _, m := range t.Molecules {
		maxAtoms = max(maxAtoms, m.NumAtoms())
	}
	return maxAtoms
}

// AtomCounts returns how many molecules have each atom count.
func (t *Table) AtomCounts() map[int]int {
	counts := make(map[int]int)
	for _, m := range t.Molecules {
		counts[m.NumAtoms()]++
	}
	return counts
}

// Load reads a table, choosing the layout from the file extension.
func Load(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ReadJSONFile(path)
	case ".csv":
		return ReadCSVFile(path)
	case ".parquet", ".pq":
		return ReadParquetFile(path)
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%s", path)
	}
}

// newMolecule validates and assembles one record. d holds the distance
// matrix row-major.
func newMolecule(row int, z []float64, d []float64, props map[string]float64) (Molecule, error) {
	n := len(z)
	if n == 0 {
		return Molecule{}, errors.Wrapf(ErrMalformed, "row %d: no atoms", row)
	}
	atoms := make([]int32, n)
	for i, v := range z {
		if v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
			return Molecule{}, errors.Wrapf(ErrMalformed, "row %d: atomic number %v is not a non-negative integer", row, v)
		}
		atoms[i] = int32(v)
	}
	if len(d) != n*n {
		return Molecule{}, errors.Wrapf(ErrMalformed, "row %d: distance matrix has %d entries, want %d x %d", row, len(d), n, n)
	}
	return Molecule{
		Z:     atoms,
		D:     mat.NewDense(n, n, d),
		Props: props,
	}, nil
}

// flattenSquare flattens a nested matrix, checking that it is n x n.
func flattenSquare(row int, n int, d [][]float64) ([]float64, error) {
	if len(d) != n {
		return nil, errors.Wrapf(ErrMalformed, "row %d: distance matrix has %d rows, want %d", row, len(d), n)
	}
	flat := make([]float64, 0, n*n)
	for i, r := range d {
		if len(r) != n {
			return nil, errors.Wrapf(ErrMalformed, "row %d: distance matrix row %d has %d entries, want %d", row, i, len(r), n)
		}
		flat = append(flat, r...)
	}
	return flat, nil
}

// propertyNames returns the sorted property names, excluding Z, D and
// unnamed (index) columns.
func propertyNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == ColumnZ || n == ColumnD || n == "" {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
