package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/qm8/molecules"
	"github.com/Noofbiz/qm8/rbf"
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot the atom count distribution and the basis profile of a distance",
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir := viper.GetString("out")
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", outDir)
		}

		table, _, err := loadTable()
		if err != nil {
			return err
		}
		atomsPath := filepath.Join(outDir, "atoms.png")
		if err := plotAtomCounts(table, atomsPath); err != nil {
			return err
		}
		log.WithField("path", atomsPath).Info("wrote plot")

		basis := rbf.DefaultParams()
		if n := viper.GetInt("num-gauss"); n > 0 {
			def := rbf.DefaultParams()
			if basis, err = rbf.FromCount(def.MuMin, def.MuMax, n, def.Sigma); err != nil {
				return err
			}
		}
		basisPath := filepath.Join(outDir, "basis.png")
		if err := plotBasisProfile(basis, viper.GetFloat64("distance"), basisPath); err != nil {
			return err
		}
		log.WithField("path", basisPath).Info("wrote plot")
		return nil
	},
}

func initPlot() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.Flags().String("out", "plots", "output directory for generated plots")
	plotCmd.Flags().Float64("distance", 0.5, "distance whose basis profile is plotted")
	plotCmd.Flags().Int("num-gauss", 0, "number of basis centers over [-1, 1] (0 = default 0.2 spacing)")
}

// plotAtomCounts writes a histogram of molecule sizes.
func plotAtomCounts(table *molecules.Table, outPath string) error {
	if table.Len() == 0 {
		return errors.New("no molecules to plot")
	}
	values := make(plotter.Values, table.Len())
	for i, m := range table.Molecules {
		values[i] = float64(m.NumAtoms())
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Atoms per molecule (%d molecules)", table.Len())
	p.X.Label.Text = "atoms"
	p.Y.Label.Text = "molecules"

	hist, err := plotter.NewHist(values, max(table.MaxAtoms(), 1))
	if err != nil {
		return errors.Wrap(err, "failed to build histogram")
	}
	p.Add(hist)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, outPath); err != nil {
		return errors.Wrapf(err, "failed to save %s", outPath)
	}
	return nil
}

// plotBasisProfile writes the expansion of a single distance against the
// basis centers.
func plotBasisProfile(basis rbf.Params, distance float64, outPath string) error {
	centers := basis.Centers()
	profile := rbf.ExpandDistance(distance, basis)
	xys := make(plotter.XYs, len(centers))
	for k, c := range centers {
		xys[k] = plotter.XY{X: c, Y: profile[k]}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Basis expansion of d=%.3g (sigma=%.3g)", distance, basis.Sigma)
	p.X.Label.Text = "center"
	p.Y.Label.Text = "feature"
	p.Y.Min = 0
	p.Y.Max = 1

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return errors.Wrap(err, "failed to build profile line")
	}
	points.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(line, points, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, outPath); err != nil {
		return errors.Wrapf(err, "failed to save %s", outPath)
	}
	return nil
}
