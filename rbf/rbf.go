// Package rbf expands pairwise distances into a fixed radial (Gaussian) basis.
//
// Every distance d becomes a vector with one entry per basis center c_k:
//
//	exp(-(d - c_k)^2 / (2*sigma))
//
// The exponent is divided by 2*sigma and not 2*sigma^2. Models trained on
// these features depend on that exact form, so it must not be "fixed".
package rbf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidParams is returned when basis parameters cannot describe a basis.
var ErrInvalidParams = errors.New("invalid basis parameters")

// countTolerance absorbs floating point error in (MuMax-MuMin)/DeltaMu, so
// that e.g. 2/0.2 counts as 10 centers apart and not 9.999...
const countTolerance = 1e-9

// Params describes the basis: centers run from MuMin to MuMax inclusive in
// steps of DeltaMu, each with width Sigma.
type Params struct {
	MuMin   float64
	DeltaMu float64
	MuMax   float64
	Sigma   float64
}

// DefaultParams returns the basis used for the QM8 features: 11 centers on
// [-1, 1] with width 0.2.
func DefaultParams() Params {
	return Params{MuMin: -1, DeltaMu: 0.2, MuMax: 1, Sigma: 0.2}
}

// FromCount builds Params with n centers evenly spread over [muMin, muMax].
func FromCount(muMin, muMax float64, n int, sigma float64) (Params, error) {
	if n < 2 {
		return Params{}, errors.Wrapf(ErrInvalidParams, "need at least 2 centers, got %d", n)
	}
	if !(muMax > muMin) {
		return Params{}, errors.Wrapf(ErrInvalidParams, "mu_max %v must be greater than mu_min %v", muMax, muMin)
	}
	p := Params{
		MuMin:   muMin,
		DeltaMu: (muMax - muMin) / float64(n-1),
		MuMax:   muMax,
		Sigma:   sigma,
	}
	return p, p.Validate()
}

// Validate reports whether p describes a usable basis.
func (p Params) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{{"mu_min", p.MuMin}, {"delta_mu", p.DeltaMu}, {"mu_max", p.MuMax}, {"sigma", p.Sigma}}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return errors.Wrapf(ErrInvalidParams, "%s is not finite", f.name)
		}
	}
	if p.DeltaMu <= 0 {
		return errors.Wrapf(ErrInvalidParams, "delta_mu must be positive, got %v", p.DeltaMu)
	}
	if p.MuMax < p.MuMin {
		return errors.Wrapf(ErrInvalidParams, "mu_max %v is below mu_min %v", p.MuMax, p.MuMin)
	}
	if p.Sigma <= 0 {
		return errors.Wrapf(ErrInvalidParams, "sigma must be positive, got %v", p.Sigma)
	}
	return nil
}

// NumCenters returns floor((MuMax-MuMin)/DeltaMu) + 1.
func (p Params) NumCenters() int {
	steps := (p.MuMax - p.MuMin) / p.DeltaMu
	return int(math.Floor(steps*(1+countTolerance))) + 1
}

// Centers returns the basis centers MuMin + k*DeltaMu for k in [0, NumCenters).
func (p Params) Centers() []float64 {
	k := p.NumCenters()
	centers := make([]float64, k)
	for i := range k {
		centers[i] = p.MuMin + float64(i)*p.DeltaMu
	}
	return centers
}

// Expansion is a dense (Rows, Cols, K) tensor stored row-major, so entry
// (i, j, k) lives at Data[(i*Cols+j)*K+k].
type Expansion struct {
	Rows int
	Cols int
	K    int
	Data []float32
}

// At returns entry (i, j, k).
func (e *Expansion) At(i, j, k int) float32 {
	return e.Data[(i*e.Cols+j)*e.K+k]
}

// Shape returns the dimensions of the tensor.
func (e *Expansion) Shape() []int {
	return []int{e.Rows, e.Cols, e.K}
}

// Expand applies the basis to every entry of d. Non-finite distances are not
// rejected: they produce NaN or 0 entries.
func Expand(d mat.Matrix, p Params) *Expansion {
	rows, cols := d.Dims()
	centers := p.Centers()
	k := len(centers)
	out := &Expansion{
		Rows: rows,
		Cols: cols,
		K:    k,
		Data: make([]float32, rows*cols*k),
	}
	width := 2 * p.Sigma
	idx := 0
	for i := range rows {
		for j := range cols {
			v := d.At(i, j)
			for _, c := range centers {
				diff := v - c
				out.Data[idx] = float32(math.Exp(-diff * diff / width))
				idx++
			}
		}
	}
	return out
}

// ExpandDistance returns the basis profile of a single distance.
func ExpandDistance(d float64, p Params) []float64 {
	centers := p.Centers()
	out := make([]float64, len(centers))
	width := 2 * p.Sigma
	for k, c := range centers {
		diff := d - c
		out[k] = math.Exp(-diff * diff / width)
	}
	return out
}
