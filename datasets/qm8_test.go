package datasets

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Noofbiz/qm8/molecules"
	"github.com/Noofbiz/qm8/rbf"
)

const fixtureJSON = `{
  "Z": {"0": [6, 1, 1], "1": [8, 1], "2": [7]},
  "D": {
    "0": [[0.0, 1.09, 1.09], [1.09, 0.0, 1.78], [1.09, 1.78, 0.0]],
    "1": [[0.0, 0.96], [0.96, 0.0]],
    "2": [[0.0]]
  },
  "E1-CC2": {"0": 0.43, "1": 0.21, "2": 0.37},
  "E2-CC2": {"0": 0.51, "1": 0.33, "2": 0.40}
}`

// quietLogger discards dataset logs in tests.
func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testTable builds n molecules with 1..maxN atoms and distinct distances.
func testTable(n, maxN int) *molecules.Table {
	t := &molecules.Table{Properties: []string{"gap"}}
	for i := range n {
		atoms := i%maxN + 1
		z := make([]int32, atoms)
		d := mat.NewDense(atoms, atoms, nil)
		for a := range atoms {
			z[a] = int32(1 + (i+a)%9)
			for b := range atoms {
				if a != b {
					d.Set(a, b, 0.1*float64(a+b+1)+0.01*float64(i))
				}
			}
		}
		t.Molecules = append(t.Molecules, molecules.Molecule{
			Z:     z,
			D:     d,
			Props: map[string]float64{"gap": float64(i) / 10},
		})
	}
	return t
}

func newTestDataset(t *testing.T, table *molecules.Table, maxAtoms int, opts ...Option) *QM8Dataset {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	ds, err := NewQM8Dataset(table, "gap", maxAtoms, opts...)
	require.NoError(t, err)
	return ds
}

func TestQM8Dataset_PadsAtomicNumbers(t *testing.T) {
	table := &molecules.Table{
		Properties: []string{"gap"},
		Molecules: []molecules.Molecule{{
			Z:     []int32{6, 1, 1},
			D:     mat.NewDense(3, 3, []float64{0, 1.09, 1.09, 1.09, 0, 1.78, 1.09, 1.78, 0}),
			Props: map[string]float64{"gap": 0.25},
		}},
	}
	ds := newTestDataset(t, table, 5)

	item, err := ds.Example(0)
	require.NoError(t, err)
	assert.Equal(t, []int32{6, 1, 1, 0, 0}, item.Z)
	assert.Equal(t, 3, item.Size)
	assert.Equal(t, float32(0.25), item.Target)
	assert.Len(t, item.D, 5*5*11)
}

func TestQM8Dataset_PaddedBlockMatchesExpansion(t *testing.T) {
	const maxAtoms = 6
	table := testTable(12, 5)
	ds := newTestDataset(t, table, maxAtoms)
	k := ds.NumCenters()
	require.Equal(t, 11, k)

	for i, m := range table.Molecules {
		item, err := ds.Example(i)
		require.NoError(t, err)
		n := m.NumAtoms()
		require.Equal(t, n, item.Size)

		for a := range maxAtoms {
			if a < n {
				assert.Equal(t, m.Z[a], item.Z[a])
			} else {
				assert.Zero(t, item.Z[a])
			}
		}

		e := rbf.Expand(m.D, rbf.DefaultParams())
		for a := range maxAtoms {
			for b := range maxAtoms {
				for c := range k {
					got := item.D[(a*maxAtoms+b)*k+c]
					if a < n && b < n {
						assert.Equal(t, e.At(a, b, c), got, "molecule %d (%d,%d,%d)", i, a, b, c)
					} else if got != 0 {
						t.Fatalf("molecule %d: padding (%d,%d,%d) = %v, want 0", i, a, b, c, got)
					}
				}
			}
		}
	}
}

func TestQM8Dataset_LenAndIndexing(t *testing.T) {
	ds := newTestDataset(t, testTable(7, 3), 3)
	assert.Equal(t, 7, ds.Len())

	for _, idx := range []int{-1, 7, 100} {
		_, err := ds.Example(idx)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "index %d: %v", idx, err)
	}
	_, err := ds.Batch([]int{0, 7})
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))

	first, err := ds.Example(4)
	require.NoError(t, err)
	second, err := ds.Example(4)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Mutating a returned example must not leak into the dataset.
	first.Z[0] = 99
	first.D[0] = 99
	third, err := ds.Example(4)
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestQM8Dataset_Errors(t *testing.T) {
	table := testTable(4, 4)

	_, err := NewQM8Dataset(table, "E1-CC2", 4, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrSchema), "got %v", err)

	_, err = NewQM8Dataset(table, "gap", 3, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrCapacity), "got %v", err)

	_, err = NewQM8Dataset(table, "gap", 0, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrCapacity), "got %v", err)

	_, err = NewQM8Dataset(table, "gap", 4, WithLogger(quietLogger()),
		WithBasis(rbf.Params{MuMin: 0, DeltaMu: 0, MuMax: 1, Sigma: 1}))
	assert.True(t, errors.Is(err, rbf.ErrInvalidParams), "got %v", err)

	_, err = NewQM8Dataset(table, "gap", 4, WithLogger(quietLogger()), WithNumGauss(1))
	assert.True(t, errors.Is(err, rbf.ErrInvalidParams), "got %v", err)
}

func TestQM8Dataset_MalformedMolecules(t *testing.T) {
	cases := []struct {
		name string
		z    []int32
		d    *mat.Dense
	}{
		{"distances larger than atoms", []int32{6, 1}, mat.NewDense(3, 3, nil)},
		{"distances smaller than atoms", []int32{6, 1, 1}, mat.NewDense(2, 2, nil)},
		{"non-square distances", []int32{6, 1}, mat.NewDense(2, 3, nil)},
		{"no distances", []int32{6, 1}, nil},
		{"no atoms", nil, mat.NewDense(1, 1, nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			table := testTable(5, 3)
			table.Molecules[3] = molecules.Molecule{
				Z:     tc.z,
				D:     tc.d,
				Props: map[string]float64{"gap": 1},
			}
			ds, err := NewQM8Dataset(table, "gap", 3, WithLogger(quietLogger()), WithWorkers(4))
			assert.Nil(t, ds)
			assert.True(t, errors.Is(err, molecules.ErrMalformed), "got %v", err)
			assert.Contains(t, err.Error(), "molecule 3")
		})
	}
}

func TestQM8Dataset_BasisOptions(t *testing.T) {
	table := testTable(3, 2)

	ds := newTestDataset(t, table, 2, WithNumGauss(21))
	assert.Equal(t, 21, ds.NumCenters())
	assert.InDelta(t, 0.1, ds.Basis().DeltaMu, 1e-12)

	p := rbf.Params{MuMin: 0, DeltaMu: 0.5, MuMax: 2, Sigma: 0.1}
	ds = newTestDataset(t, table, 2, WithBasis(p))
	assert.Equal(t, 5, ds.NumCenters())
	assert.Equal(t, p, ds.Basis())

	item, err := ds.Example(1)
	require.NoError(t, err)
	assert.Len(t, item.D, 2*2*5)
}

func TestQM8Dataset_WorkersDoNotChangeResult(t *testing.T) {
	table := testTable(40, 6)
	serial := newTestDataset(t, table, 6, WithWorkers(1))
	parallel := newTestDataset(t, table, 6, WithWorkers(8))

	indices := make([]int, table.Len())
	for i := range indices {
		indices[i] = i
	}
	a, err := serial.Batch(indices)
	require.NoError(t, err)
	b, err := parallel.Batch(indices)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQM8Dataset_Batch(t *testing.T) {
	ds := newTestDataset(t, testTable(6, 4), 4)

	b, err := ds.Batch([]int{5, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, b.BatchSize)
	assert.Equal(t, 4, b.MaxAtoms)
	assert.Equal(t, 11, b.NumCenters)
	assert.Equal(t, []int32{2, 1, 3}, b.Sizes)
	assert.Equal(t, []float32{0.5, 0, 0.2}, b.Targets)

	for pos, idx := range []int{5, 0, 2} {
		fromBatch, err := b.Item(pos)
		require.NoError(t, err)
		direct, err := ds.Example(idx)
		require.NoError(t, err)
		assert.Equal(t, direct, fromBatch)
	}
	_, err = b.Item(3)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))

	assert.Equal(t, []float32{
		1, 1, 0, 0,
		1, 0, 0, 0,
		1, 1, 1, 0,
	}, b.Mask())
}

func TestBatch_ToGomlxTensors(t *testing.T) {
	ds := newTestDataset(t, testTable(5, 3), 3)
	b, err := ds.Batch([]int{0, 1, 2, 3})
	require.NoError(t, err)

	inputs, labels, err := b.ToGomlxTensors()
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	require.Len(t, labels, 1)
	assert.Equal(t, []int{4, 3}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int{4, 3, 3, 11}, inputs[1].Shape().Dimensions)
	assert.Equal(t, []int{4}, inputs[2].Shape().Dimensions)
	assert.Equal(t, []int{4}, labels[0].Shape().Dimensions)

	_, _, err = (&Batch{}).ToGomlxTensors()
	assert.Error(t, err)

	b.Sizes = b.Sizes[:2]
	_, _, err = b.ToGomlxTensors()
	assert.Error(t, err)
}

// drainEpoch yields until io.EOF and returns the sizes of the yielded batches.
func drainEpoch(t *testing.T, ds *QM8Dataset) []int {
	t.Helper()
	var sizes []int
	for {
		spec, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			return sizes
		}
		require.NoError(t, err)
		require.Equal(t, ds, spec)
		require.Len(t, inputs, 3)
		require.Len(t, labels, 1)
		sizes = append(sizes, labels[0].Shape().Dimensions[0])
	}
}

func TestQM8Dataset_YieldEpochs(t *testing.T) {
	ds := newTestDataset(t, testTable(5, 3), 3, WithBatchSize(2))
	assert.Equal(t, "QM8Dataset/gap", ds.Name())

	assert.Equal(t, []int{2, 2, 1}, drainEpoch(t, ds))

	_, _, _, err := ds.Yield()
	assert.Equal(t, io.EOF, err)

	ds.Reset()
	assert.Equal(t, []int{2, 2, 1}, drainEpoch(t, ds))
}

func TestQM8Dataset_ShuffleVisitsEveryExampleOnce(t *testing.T) {
	const n = 9
	ds := newTestDataset(t, testTable(n, 3), 3, WithShuffle(7))

	visit := func() []int {
		order := append([]int(nil), ds.order...)
		sorted := append([]int(nil), order...)
		sort.Ints(sorted)
		for i, v := range sorted {
			require.Equal(t, i, v)
		}
		return order
	}
	first := visit()
	ds.Reset()
	second := visit()
	assert.Len(t, first, n)
	assert.Len(t, second, n)

	// Same seed, same order.
	other := newTestDataset(t, testTable(n, 3), 3)
	other.Shuffle(7)
	assert.Equal(t, first, other.order)

	// Shuffling never changes what an index refers to.
	plain := newTestDataset(t, testTable(n, 3), 3)
	for i := range n {
		a, err := ds.Example(i)
		require.NoError(t, err)
		b, err := plain.Example(i)
		require.NoError(t, err)
		assert.Equal(t, b, a)
	}
}

func TestLoadQM8Dataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preprocessed.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtureJSON), 0o644))

	for _, source := range []string{path, dir} {
		ds, err := LoadQM8Dataset(source, "E2-CC2", 4, WithLogger(quietLogger()))
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Len())
		assert.Equal(t, "E2-CC2", ds.Target())

		item, err := ds.Example(2)
		require.NoError(t, err)
		assert.Equal(t, []int32{7, 0, 0, 0}, item.Z)
		assert.Equal(t, 1, item.Size)
		assert.Equal(t, float32(0.40), item.Target)
	}

	_, err := LoadQM8Dataset(path, "E3-CC2", 4, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrSchema))

	_, err = LoadQM8Dataset(path, "E1-CC2", 2, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, ErrCapacity))

	_, err = LoadQM8Dataset(filepath.Join(dir, "missing.json"), "E1-CC2", 4)
	assert.Error(t, err)
}
