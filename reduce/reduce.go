package reduce

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/refmodel"
)

// Reducer maps S weighted draws to S' ≤ S weighted representatives.
//
// Implementations must be deterministic for an explicit non-zero seed and safe
// for concurrent use.
type Reducer interface {
	// Reduce returns the representative draw set. The input draws must carry
	// the training linear predictor (see refmodel.Model.Draws).
	Reduce(ctx context.Context, fam family.Family, draws *refmodel.DrawSet) (*refmodel.DrawSet, error)
	// Target returns the requested number of representatives (0 means all draws).
	Target() int
	// Name returns a short name of the reduction method.
	Name() string
}

// identity keeps every draw.
type identity struct{}

// Identity returns a reducer that keeps the draws unchanged.
func Identity() Reducer { return identity{} }

func (identity) Target() int  { return 0 }
func (identity) Name() string { return "identity" }

func (identity) Reduce(_ context.Context, _ family.Family, draws *refmodel.DrawSet) (*refmodel.DrawSet, error) {
	if draws == nil || draws.Len() == 0 {
		return nil, errs.ErrEmptyDraws
	}

	return draws, nil
}

// thin draws a uniform random subsample without replacement.
type thin struct {
	n    int
	seed uint64
}

// Thin returns a reducer that keeps n draws sampled uniformly without
// replacement. A zero seed uses process-local randomness; the seed actually
// used is recorded in the output signature.
func Thin(n int, seed uint64) Reducer {
	return thin{n: n, seed: seed}
}

func (t thin) Target() int  { return t.n }
func (t thin) Name() string { return "thin" }

func (t thin) Reduce(ctx context.Context, _ family.Family, draws *refmodel.DrawSet) (*refmodel.DrawSet, error) {
	if draws == nil || draws.Len() == 0 {
		return nil, errs.ErrEmptyDraws
	}
	if t.n < 0 {
		return nil, fmt.Errorf("%w: thinning target %d", errs.ErrConfiguration, t.n)
	}
	s := draws.Len()
	if t.n == 0 || t.n >= s {
		return draws, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed := seedOrRandom(t.seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := rng.Perm(s)[:t.n]
	slices.Sort(idx)

	return pick(draws, idx, fmt.Sprintf("%s|thin:%d:seed=%d", draws.Signature(), t.n, seed))
}

// pick builds a draw set from a subset of the source draws.
func pick(draws *refmodel.DrawSet, idx []int, signature string) (*refmodel.DrawSet, error) {
	k := len(idx)
	weights := make([]float64, k)
	members := make([][]int, k)
	var disp []float64
	if draws.HasDispersion() {
		disp = make([]float64, k)
	}

	eta := draws.Eta()
	_, n := eta.Dims()
	etaOut := mat.NewDense(k, n, nil)
	for i, s := range idx {
		weights[i] = draws.Weight(s)
		members[i] = draws.Members(s)
		if disp != nil {
			disp[i] = draws.Dispersion(s)
		}
		etaOut.SetRow(i, draws.EtaRow(s))
	}

	opts := []refmodel.DrawOption{
		refmodel.WithDrawWeights(weights),
		refmodel.WithMembers(members),
		refmodel.WithEta(etaOut),
		refmodel.WithSignature(signature),
	}
	if draws.HasCoefficients() {
		coef := draws.Coefficients()
		_, c := coef.Dims()
		coefOut := mat.NewDense(k, c, nil)
		for i, s := range idx {
			coefOut.SetRow(i, coef.RawRowView(s))
		}

		return refmodel.NewDrawSet(coefOut, disp, opts...)
	}

	return refmodel.NewLinearDrawSet(etaOut, disp, opts...)
}

func seedOrRandom(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}
