package datasets

import (
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"

	"github.com/Noofbiz/qm8/molecules"
)

// This package turns a molecule table into fixed-shape training examples.
//
// Every molecule is padded to MaxAtoms atoms:
//   - Z:      atomic numbers, int32 [MaxAtoms], zero past the true atom count
//   - D:      Gaussian basis expansion of the distance matrix,
//     float32 [MaxAtoms, MaxAtoms, NumCenters], zero outside the top-left
//     n x n block
//   - Size:   the true atom count n, so models can mask the padding
//   - Target: the selected property, float32
//
// All data is read and expanded once at construction and kept in flat
// contiguous buffers, laid out as a stack of examples, so batches are plain
// copies. Batches convert to gomlx tensors with Batch.ToGomlxTensors and the
// dataset implements gomlx's train.Dataset for training loops.

var (
	// ErrSchema is returned when the target column is not in the table.
	ErrSchema = molecules.ErrSchema
	// ErrCapacity is returned when a molecule has more atoms than MaxAtoms.
	ErrCapacity = errors.New("molecule exceeds max atoms")
	// ErrIndexOutOfRange is returned for indices outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Dataset is implemented by the padded molecule datasets so training code
// can read single examples, batches or gomlx tensors.
type Dataset interface {
	Len() int
	Example(i int) (Item, error)
	Batch(indices []int) (*Batch, error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	train.Dataset
}

var _ Dataset = (*QM8Dataset)(nil)
