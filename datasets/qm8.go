package datasets

import (
	"io"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/qm8/molecules"
	"github.com/Noofbiz/qm8/rbf"
)

const defaultBatchSize = 32

// Item is one padded example.
type Item struct {
	// Z holds MaxAtoms atomic numbers, zero padded.
	Z []int32
	// D holds the [MaxAtoms, MaxAtoms, NumCenters] expansion row-major.
	D []float32
	// Size is the true atom count.
	Size int
	// Target is the selected property.
	Target float32
}

type config struct {
	basis     rbf.Params
	numGauss  int
	batchSize int
	workers   int
	seed      *int64
	logger    *logrus.Logger
}

// Option configures a QM8Dataset.
type Option func(*config)

// WithBasis sets the basis used to expand distances. Defaults to
// rbf.DefaultParams().
func WithBasis(p rbf.Params) Option {
	return func(c *config) {
		c.basis = p
		c.numGauss = 0
	}
}

// WithNumGauss uses n centers spread over the default basis range and width
// instead of the default spacing.
func WithNumGauss(n int) Option {
	return func(c *config) {
		c.numGauss = n
	}
}

// WithBatchSize sets the number of examples per Yield. Defaults to 32.
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithWorkers bounds how many molecules are expanded concurrently during
// construction. Values below 1 select runtime.NumCPU(), the default.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithShuffle makes Yield visit examples in a seeded random order that is
// redrawn on every Reset.
func WithShuffle(seed int64) Option {
	return func(c *config) {
		c.seed = &seed
	}
}

// WithLogger sets the logger used while building the dataset.
func WithLogger(l *logrus.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// QM8Dataset serves padded molecules by index and as gomlx batches. The
// padded data is immutable after construction, so Example and Batch are
// safe for concurrent use. Yield, Reset and Shuffle share an iteration
// cursor guarded by a mutex.
type QM8Dataset struct {
	// BatchSize for yielding batches
	BatchSize int

	target     string
	maxAtoms   int
	basis      rbf.Params
	numCenters int

	// Stacked per-example buffers.
	zs      []int32
	ds      []float32
	sizes   []int32
	targets []float32

	mu      sync.Mutex
	order   []int
	cursor  int
	shuffle bool
	rand    *rand.Rand
}

// LoadQM8Dataset reads the molecule table at path (a file, or a directory
// searched with FindSource) and builds the dataset from it.
func LoadQM8Dataset(path, target string, maxAtoms int, opts ...Option) (*QM8Dataset, error) {
	source, err := ResolveSource(path)
	if err != nil {
		return nil, err
	}
	table, err := molecules.Load(source)
	if err != nil {
		return nil, err
	}
	return NewQM8Dataset(table, target, maxAtoms, opts...)
}

// NewQM8Dataset expands and pads every molecule of table. target selects the
// property used as label and maxAtoms the padded size, which must be at least
// table.MaxAtoms(). Construction either succeeds for every molecule or
// returns an error.
func NewQM8Dataset(table *molecules.Table, target string, maxAtoms int, opts ...Option) (*QM8Dataset, error) {
	cfg := config{
		basis:     rbf.DefaultParams(),
		batchSize: defaultBatchSize,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.NumCPU()
	}
	if cfg.logger == nil {
		cfg.logger = logrus.StandardLogger()
	}

	basis := cfg.basis
	if cfg.numGauss > 0 {
		def := rbf.DefaultParams()
		p, err := rbf.FromCount(def.MuMin, def.MuMax, cfg.numGauss, def.Sigma)
		if err != nil {
			return nil, err
		}
		basis = p
	}
	if err := basis.Validate(); err != nil {
		return nil, err
	}
	if maxAtoms < 1 {
		return nil, errors.Wrapf(ErrCapacity, "max atoms must be positive, got %d", maxAtoms)
	}

	targets, err := table.Property(target)
	if err != nil {
		return nil, err
	}
	for i, m := range table.Molecules {
		if n := m.NumAtoms(); n > maxAtoms {
			return nil, errors.Wrapf(ErrCapacity, "molecule %d has %d atoms, max atoms is %d", i, n, maxAtoms)
		}
	}

	n := table.Len()
	k := basis.NumCenters()
	d := &QM8Dataset{
		BatchSize:  cfg.batchSize,
		target:     target,
		maxAtoms:   maxAtoms,
		basis:      basis,
		numCenters: k,
		zs:         make([]int32, n*maxAtoms),
		ds:         make([]float32, n*maxAtoms*maxAtoms*k),
		sizes:      make([]int32, n),
		targets:    make([]float32, n),
		order:      make([]int, n),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range d.order {
		d.order[i] = i
	}

	log := cfg.logger.WithFields(logrus.Fields{
		"target":      target,
		"max_atoms":   maxAtoms,
		"num_centers": k,
	})
	log.WithField("molecules", n).Debug("expanding molecules")
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(cfg.workers)
	for i, m := range table.Molecules {
		g.Go(func() error {
			return d.fill(i, m, targets[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"molecules": n,
		"took":      time.Since(start),
	}).Info("built QM8 dataset")

	if cfg.seed != nil {
		d.Shuffle(*cfg.seed)
	}
	return d, nil
}

// fill expands molecule m and writes it into slot i. Slots are disjoint, so
// fill runs concurrently for different i.
func (d *QM8Dataset) fill(i int, m molecules.Molecule, target float64) error {
	if err := m.Validate(); err != nil {
		return errors.Wrapf(err, "molecule %d", i)
	}
	n := m.NumAtoms()
	k := d.numCenters
	e := rbf.Expand(m.D, d.basis)

	copy(d.zs[i*d.maxAtoms:], m.Z)
	base := i * d.maxAtoms * d.maxAtoms * k
	for a := range n {
		for b := range n {
			dst := base + (a*d.maxAtoms+b)*k
			src := (a*n + b) * k
			copy(d.ds[dst:dst+k], e.Data[src:src+k])
		}
	}
	d.sizes[i] = int32(n)
	d.targets[i] = float32(target)
	return nil
}

// Len returns the number of molecules.
func (d *QM8Dataset) Len() int {
	return len(d.sizes)
}

// MaxAtoms returns the padded atom count.
func (d *QM8Dataset) MaxAtoms() int {
	return d.maxAtoms
}

// NumCenters returns the length of each expanded distance feature.
func (d *QM8Dataset) NumCenters() int {
	return d.numCenters
}

// Target returns the name of the label property.
func (d *QM8Dataset) Target() string {
	return d.target
}

// Basis returns the parameters used to expand distances.
func (d *QM8Dataset) Basis() rbf.Params {
	return d.basis
}

func (d *QM8Dataset) checkIndex(idx int) error {
	if idx < 0 || idx >= d.Len() {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d out of range [0, %d)", idx, d.Len())
	}
	return nil
}

// Example returns a copy of the padded example at idx.
func (d *QM8Dataset) Example(idx int) (Item, error) {
	if err := d.checkIndex(idx); err != nil {
		return Item{}, err
	}
	zLen := d.maxAtoms
	dLen := d.maxAtoms * d.maxAtoms * d.numCenters

	item := Item{
		Z:      make([]int32, zLen),
		D:      make([]float32, dLen),
		Size:   int(d.sizes[idx]),
		Target: d.targets[idx],
	}
	copy(item.Z, d.zs[idx*zLen:(idx+1)*zLen])
	copy(item.D, d.ds[idx*dLen:(idx+1)*dLen])
	return item, nil
}

// Batch copies the examples at indices into a flat batch, in the order given.
func (d *QM8Dataset) Batch(indices []int) (*Batch, error) {
	for _, idx := range indices {
		if err := d.checkIndex(idx); err != nil {
			return nil, err
		}
	}
	zLen := d.maxAtoms
	dLen := d.maxAtoms * d.maxAtoms * d.numCenters

	b := &Batch{
		Z:          make([]int32, len(indices)*zLen),
		D:          make([]float32, len(indices)*dLen),
		Sizes:      make([]int32, len(indices)),
		Targets:    make([]float32, len(indices)),
		BatchSize:  len(indices),
		MaxAtoms:   d.maxAtoms,
		NumCenters: d.numCenters,
	}
	for pos, idx := range indices {
		copy(b.Z[pos*zLen:], d.zs[idx*zLen:(idx+1)*zLen])
		copy(b.D[pos*dLen:], d.ds[idx*dLen:(idx+1)*dLen])
		b.Sizes[pos] = d.sizes[idx]
		b.Targets[pos] = d.targets[idx]
	}
	return b, nil
}

// Shuffle reseeds the iteration order used by Yield and restarts the epoch.
// Indices passed to Example and Batch are not affected.
func (d *QM8Dataset) Shuffle(seed int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rand = rand.New(rand.NewSource(seed))
	d.shuffle = true
	d.permute()
	d.cursor = 0
}

func (d *QM8Dataset) permute() {
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Name returns the name of the dataset
func (d *QM8Dataset) Name() string {
	return "QM8Dataset/" + d.target
}

// Reset starts a new epoch, drawing a new order when shuffling.
func (d *QM8Dataset) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shuffle {
		d.permute()
	}
	d.cursor = 0
}

// Yield returns the next batch of the epoch for the gomlx Dataset interface.
// Inputs are [Z, D, Sizes] and labels [Targets]; see Batch.ToGomlxTensors.
// The last batch of an epoch may be smaller than BatchSize; after it Yield
// returns io.EOF until Reset is called.
func (d *QM8Dataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	d.mu.Lock()
	if d.cursor >= len(d.order) {
		d.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	size := d.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	end := min(d.cursor+size, len(d.order))
	indices := append([]int(nil), d.order[d.cursor:end]...)
	d.cursor = end
	d.mu.Unlock()

	b, err := d.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, labels, err = b.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return d, inputs, labels, nil
}
