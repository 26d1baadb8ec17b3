package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Batch stores a batch of padded examples in flat contiguous buffers.
type Batch struct {
	// Z is [BatchSize, MaxAtoms].
	Z []int32
	// D is [BatchSize, MaxAtoms, MaxAtoms, NumCenters].
	D []float32
	// Sizes and Targets are [BatchSize].
	Sizes   []int32
	Targets []float32

	BatchSize  int
	MaxAtoms   int
	NumCenters int
}

// Item returns a copy of the example at position pos of the batch.
func (b *Batch) Item(pos int) (Item, error) {
	if pos < 0 || pos >= b.BatchSize {
		return Item{}, errors.Wrapf(ErrIndexOutOfRange, "batch position %d out of range [0, %d)", pos, b.BatchSize)
	}
	zLen := b.MaxAtoms
	dLen := b.MaxAtoms * b.MaxAtoms * b.NumCenters
	item := Item{
		Z:      append([]int32(nil), b.Z[pos*zLen:(pos+1)*zLen]...),
		D:      append([]float32(nil), b.D[pos*dLen:(pos+1)*dLen]...),
		Size:   int(b.Sizes[pos]),
		Target: b.Targets[pos],
	}
	return item, nil
}

// Mask returns a [BatchSize, MaxAtoms] buffer that is 1 for real atoms and 0
// for padding.
func (b *Batch) Mask() []float32 {
	mask := make([]float32, b.BatchSize*b.MaxAtoms)
	for pos, size := range b.Sizes {
		for a := range int(size) {
			mask[pos*b.MaxAtoms+a] = 1
		}
	}
	return mask
}

func (b *Batch) validate() error {
	if b.BatchSize == 0 {
		return errors.New("empty batch")
	}
	want := []struct {
		name     string
		got, len int
	}{
		{"Z", len(b.Z), b.BatchSize * b.MaxAtoms},
		{"D", len(b.D), b.BatchSize * b.MaxAtoms * b.MaxAtoms * b.NumCenters},
		{"Sizes", len(b.Sizes), b.BatchSize},
		{"Targets", len(b.Targets), b.BatchSize},
	}
	for _, w := range want {
		if w.got != w.len {
			return errors.Errorf("inconsistent batch: %s has %d values, expected %d", w.name, w.got, w.len)
		}
	}
	return nil
}

// ToGomlxTensors converts the batch to gomlx tensors. Inputs are
// Z int32 [B, MaxAtoms], D float32 [B, MaxAtoms, MaxAtoms, NumCenters] and
// Sizes int32 [B]; labels are Targets float32 [B].
func (b *Batch) ToGomlxTensors() (inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if err := b.validate(); err != nil {
		return nil, nil, err
	}
	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.Z, b.BatchSize, b.MaxAtoms),
		tensors.FromFlatDataAndDimensions(b.D, b.BatchSize, b.MaxAtoms, b.MaxAtoms, b.NumCenters),
		tensors.FromFlatDataAndDimensions(b.Sizes, b.BatchSize),
	}
	labels = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.Targets, b.BatchSize),
	}
	return inputs, labels, nil
}
