package connect

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

// Rescale projects a connectivity matrix indexed by the units of cu onto the
// units of pu. With S[i][a] the share of planning unit i covered by
// connectivity unit a and D[b][j] the share of connectivity unit b lying in
// planning unit j, the result is S * CM * D.
//
// Shares are estimated by testing samples×samples grid points per unit.
func Rescale(ctx context.Context, pu, cu *Layer, cm *Matrix, samples int) (*Matrix, error) {
	if samples < 1 {
		samples = 1
	}
	if len(pu.Units) == 0 || len(cu.Units) == 0 {
		return nil, fmt.Errorf("rescaling needs non-empty planning and connectivity layers")
	}
	if cm.Size() != len(cu.Units) {
		return nil, fmt.Errorf("connectivity matrix has %d units but connectivity layer has %d", cm.Size(), len(cu.Units))
	}

	// Reorder the matrix to connectivity layer order
	nCU := len(cu.Units)
	order := make([]int, nCU)
	for a, u := range cu.Units {
		idx := cm.Index(u.ID)
		if idx < 0 {
			return nil, fmt.Errorf("connectivity unit %s is missing from the matrix", u.ID)
		}
		order[a] = idx
	}
	cmOrdered := mat.NewDense(nCU, nCU, nil)
	for a := 0; a < nCU; a++ {
		for b := 0; b < nCU; b++ {
			cmOrdered.Set(a, b, cm.At(order[a], order[b]))
		}
	}

	s, err := overlapShares(ctx, pu, cu, samples)
	if err != nil {
		return nil, err
	}
	d, err := overlapShares(ctx, cu, pu, samples)
	if err != nil {
		return nil, err
	}

	var tmp, out mat.Dense
	tmp.Mul(s, cmOrdered)
	out.Mul(&tmp, d)

	return &Matrix{IDs: pu.IDs(), Data: &out}, nil
}

// RescaleIdentical re-indexes a matrix onto planning unit IDs when the
// planning and connectivity grids are the same.
func RescaleIdentical(pu *Layer, cm *Matrix) (*Matrix, error) {
	if cm.Size() != len(pu.Units) {
		return nil, fmt.Errorf("connectivity matrix has %d units but planning layer has %d", cm.Size(), len(pu.Units))
	}
	return &Matrix{IDs: pu.IDs(), Data: mat.DenseCopyOf(cm.Data)}, nil
}

// overlapShares returns a len(from)×len(to) matrix whose entry (i, k) is the
// estimated share of unit i of from that lies inside unit k of to.
func overlapShares(ctx context.Context, from, to *Layer, samples int) (*mat.Dense, error) {
	shares := mat.NewDense(len(from.Units), len(to.Units), nil)

	for i, u := range from.Units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points := samplePoints(u.Geometry, samples)
		if len(points) == 0 {
			continue
		}
		weight := 1 / float64(len(points))
		for _, pt := range points {
			if k := to.Locate(pt); k >= 0 {
				shares.Set(i, k, shares.At(i, k)+weight)
			}
		}
	}

	return shares, nil
}

// samplePoints returns the cell centres of a samples×samples grid over the
// geometry's bound that fall inside it. Units too small to catch any grid
// point are represented by their centroid.
func samplePoints(mp orb.MultiPolygon, samples int) []orb.Point {
	b := mp.Bound()
	dx := (b.Max.X() - b.Min.X()) / float64(samples)
	dy := (b.Max.Y() - b.Min.Y()) / float64(samples)

	points := make([]orb.Point, 0, samples*samples)
	for r := 0; r < samples; r++ {
		for c := 0; c < samples; c++ {
			pt := orb.Point{
				b.Min.X() + (float64(c)+0.5)*dx,
				b.Min.Y() + (float64(r)+0.5)*dy,
			}
			if planar.MultiPolygonContains(mp, pt) {
				points = append(points, pt)
			}
		}
	}

	if len(points) == 0 && len(mp) > 0 {
		centroid, _ := planar.CentroidArea(mp)
		points = append(points, centroid)
	}
	return points
}

// RescaleFiles reads the project's planning layer, connectivity layer and
// connectivity matrix, rescales the matrix and writes it to
// pucm_filedir/pucm_filename. Missing inputs produce a Warning and no output.
func RescaleFiles(ctx context.Context, p *Project, cfg RescaleConfig) (*Warning, error) {
	puPath := p.Path(KeyPUFilepath)
	cuPath := p.Path(KeyCUFilepath)
	cmPath := p.Path(KeyCMFilepath)
	outPath := p.PUCMFilepath()

	if w := missingFileWarning("planning unit file", puPath); w != nil {
		return w, nil
	}
	if cfg.Enabled {
		if w := missingFileWarning("connectivity unit file", cuPath); w != nil {
			return w, nil
		}
	}
	if w := missingFileWarning("connectivity matrix", cmPath); w != nil {
		return w, nil
	}
	if outPath == "" {
		return &Warning{Message: "No output file name has been set for the planning unit connectivity matrix"}, nil
	}
	if dir := p.Path(KeyPUCMFiledir); dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return &Warning{Path: dir, Message: fmt.Sprintf("The output directory (%s) does not exist", dir)}, nil
		}
	}

	pu, err := LoadLayer(puPath, cfg.IDField)
	if err != nil {
		return nil, err
	}
	cm, err := ReadMatrixCSV(cmPath)
	if err != nil {
		return nil, err
	}

	var out *Matrix
	if cfg.Enabled {
		cu, err := LoadLayer(cuPath, cfg.IDField)
		if err != nil {
			return nil, err
		}
		log.Printf("Rescaling %d connectivity units onto %d planning units", len(cu.Units), len(pu.Units))
		out, err = Rescale(ctx, pu, cu, cm, cfg.Samples)
		if err != nil {
			return nil, err
		}
	} else {
		out, err = RescaleIdentical(pu, cm)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := WriteMatrixCSV(outPath, out); err != nil {
		return nil, err
	}
	log.Printf("Wrote planning unit connectivity matrix to %s", outPath)
	return nil, nil
}
