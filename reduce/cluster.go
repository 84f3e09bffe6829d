package reduce

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/viterin/vek"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/family"
	"github.com/arloliu/projpred/internal/options"
	"github.com/arloliu/projpred/refmodel"
)

// ClusterConfig configures the weighted k-means reduction.
type ClusterConfig struct {
	// MaxIterations bounds the Lloyd iterations per restart.
	MaxIterations int
	// Restarts is the number of k-means++ restarts; the lowest objective wins.
	Restarts int
	// Tolerance is the relative objective improvement below which iterations stop.
	Tolerance float64
	// Seed makes the clustering reproducible; 0 uses process-local randomness.
	Seed uint64
	// Logger receives debug output.
	Logger *zap.Logger
}

// ClusterOption configures a cluster reducer.
type ClusterOption = options.Option[*ClusterConfig]

// WithSeed sets the clustering seed.
func WithSeed(seed uint64) ClusterOption {
	return options.NoError(func(c *ClusterConfig) { c.Seed = seed })
}

// WithRestarts sets the number of k-means++ restarts.
func WithRestarts(n int) ClusterOption {
	return options.New(func(c *ClusterConfig) error {
		if n < 1 {
			return fmt.Errorf("%w: restarts must be positive, got %d", errs.ErrConfiguration, n)
		}
		c.Restarts = n

		return nil
	})
}

// WithMaxIterations sets the Lloyd iteration cap per restart.
func WithMaxIterations(n int) ClusterOption {
	return options.New(func(c *ClusterConfig) error {
		if n < 1 {
			return fmt.Errorf("%w: max iterations must be positive, got %d", errs.ErrConfiguration, n)
		}
		c.MaxIterations = n

		return nil
	})
}

// WithTolerance sets the relative objective convergence threshold.
func WithTolerance(tol float64) ClusterOption {
	return options.New(func(c *ClusterConfig) error {
		if !(tol > 0) {
			return fmt.Errorf("%w: tolerance must be positive, got %g", errs.ErrConfiguration, tol)
		}
		c.Tolerance = tol

		return nil
	})
}

// WithClusterLogger sets the logger.
func WithClusterLogger(logger *zap.Logger) ClusterOption {
	return options.NoError(func(c *ClusterConfig) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

func defaultClusterConfig() *ClusterConfig {
	return &ClusterConfig{
		MaxIterations: 100,
		Restarts:      1,
		// 1000 × float32 machine epsilon
		Tolerance: 1.19e-4,
		Logger:    zap.NewNop(),
	}
}

type cluster struct {
	k   int
	cfg *ClusterConfig
}

// Cluster returns a reducer grouping the draws into k clusters by weighted
// k-means on their training linear predictors.
//
// Each cluster becomes one representative whose linear predictor (and
// coefficients) is the weighted mean of its members and whose weight is the
// members' total weight, so the weighted mean linear predictor is preserved
// exactly. For families with a dispersion parameter the representative's
// dispersion is sqrt(weighted mean σ² + weighted within-cluster variance of η
// averaged over rows).
//
// Example:
//
//	r, err := reduce.Cluster(20, reduce.WithSeed(42))
//	reduced, err := r.Reduce(ctx, ref.Family(), ref.Draws())
func Cluster(k int, opts ...ClusterOption) (Reducer, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: cluster count must be positive, got %d", errs.ErrConfiguration, k)
	}
	cfg, err := options.Build(defaultClusterConfig, opts...)
	if err != nil {
		return nil, err
	}

	return &cluster{k: k, cfg: cfg}, nil
}

func (c *cluster) Target() int  { return c.k }
func (c *cluster) Name() string { return "cluster" }

func (c *cluster) Reduce(ctx context.Context, fam family.Family, draws *refmodel.DrawSet) (*refmodel.DrawSet, error) {
	if draws == nil || draws.Len() == 0 {
		return nil, errs.ErrEmptyDraws
	}
	if draws.Eta() == nil {
		return nil, fmt.Errorf("%w: clustering needs training linear predictors", errs.ErrConfiguration)
	}
	s := draws.Len()
	if c.k >= s {
		return draws, nil
	}

	seed := seedOrRandom(c.cfg.Seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	state := newKMeansState(draws, c.k)

	var best []int
	bestObj := math.Inf(1)
	for r := 0; r < c.cfg.Restarts; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj, err := state.run(ctx, rng, c.cfg)
		if err != nil {
			return nil, err
		}
		if obj < bestObj {
			bestObj = obj
			best = append(best[:0], state.assignments...)
		}
	}

	out, err := summarize(fam, draws, best, c.k, fmt.Sprintf("%s|cluster:%d:seed=%d", draws.Signature(), c.k, seed))
	if err != nil {
		return nil, err
	}

	c.cfg.Logger.Debug("draws clustered",
		zap.Int("draws", s),
		zap.Int("clusters", out.Len()),
		zap.Float64("objective", bestObj),
	)

	return out, nil
}

// kmeansState holds the working memory of one weighted k-means run.
type kmeansState struct {
	n, k, dim   int
	points      [][]float64 // read-only views of the draw rows
	weights     []float64
	norms       []float64
	centroids   [][]float64
	centNorms   []float64
	assignments []int
	dist        []float64
}

func newKMeansState(draws *refmodel.DrawSet, k int) *kmeansState {
	n := draws.Len()
	_, dim := draws.Eta().Dims()
	st := &kmeansState{
		n:           n,
		k:           k,
		dim:         dim,
		points:      make([][]float64, n),
		weights:     draws.Weights(),
		norms:       make([]float64, n),
		centroids:   make([][]float64, k),
		centNorms:   make([]float64, k),
		assignments: make([]int, n),
		dist:        make([]float64, n),
	}
	for i := 0; i < n; i++ {
		st.points[i] = draws.EtaRow(i)
		st.norms[i] = vek.Dot(st.points[i], st.points[i])
	}
	for j := range st.centroids {
		st.centroids[j] = make([]float64, dim)
	}

	return st
}

// sqDist returns ||x_i - c_j||², clamped at zero against cancellation.
func (st *kmeansState) sqDist(i, j int) float64 {
	d := st.norms[i] + st.centNorms[j] - 2*vek.Dot(st.points[i], st.centroids[j])
	if d < 0 {
		return 0
	}

	return d
}

// seed performs weighted k-means++ initialisation.
func (st *kmeansState) seed(rng *rand.Rand) {
	first := sampleIndex(rng, st.weights)
	copy(st.centroids[0], st.points[first])
	st.centNorms[0] = st.norms[first]

	for i := 0; i < st.n; i++ {
		st.dist[i] = st.sqDist(i, 0)
	}

	probs := make([]float64, st.n)
	for j := 1; j < st.k; j++ {
		for i := range probs {
			probs[i] = st.weights[i] * st.dist[i]
		}
		next := sampleIndex(rng, probs)
		copy(st.centroids[j], st.points[next])
		st.centNorms[j] = st.norms[next]
		for i := 0; i < st.n; i++ {
			if d := st.sqDist(i, j); d < st.dist[i] {
				st.dist[i] = d
			}
		}
	}
}

// run executes one restart and returns its weighted objective.
func (st *kmeansState) run(ctx context.Context, rng *rand.Rand, cfg *ClusterConfig) (float64, error) {
	st.seed(rng)

	prev := math.Inf(1)
	obj := math.Inf(1)
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		obj = st.assign()
		st.update()

		if prev-obj <= cfg.Tolerance*math.Max(obj, math.SmallestNonzeroFloat64) {
			break
		}
		prev = obj
	}

	return st.assign(), nil
}

// assign moves every point to its nearest centroid and returns the objective.
func (st *kmeansState) assign() float64 {
	var obj float64
	for i := 0; i < st.n; i++ {
		bestJ, bestD := 0, math.Inf(1)
		for j := 0; j < st.k; j++ {
			if d := st.sqDist(i, j); d < bestD {
				bestJ, bestD = j, d
			}
		}
		st.assignments[i] = bestJ
		st.dist[i] = bestD
		obj += st.weights[i] * bestD
	}

	return obj
}

// update recomputes weighted centroids; empty clusters are reseeded from the
// point farthest from its centroid.
func (st *kmeansState) update() {
	mass := make([]float64, st.k)
	for j := range st.centroids {
		clear(st.centroids[j])
	}
	for i := 0; i < st.n; i++ {
		j := st.assignments[i]
		mass[j] += st.weights[i]
		floats.AddScaled(st.centroids[j], st.weights[i], st.points[i])
	}

	for j := 0; j < st.k; j++ {
		if mass[j] > 0 {
			floats.Scale(1/mass[j], st.centroids[j])
			st.centNorms[j] = vek.Dot(st.centroids[j], st.centroids[j])

			continue
		}

		far := floats.MaxIdx(st.dist)
		copy(st.centroids[j], st.points[far])
		st.centNorms[j] = st.norms[far]
		st.dist[far] = 0
	}
}

func sampleIndex(rng *rand.Rand, weights []float64) int {
	total := floats.Sum(weights)
	if !(total > 0) {
		return rng.IntN(len(weights))
	}
	u := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}

	return len(weights) - 1
}

// summarize turns cluster assignments into representative draws. Clusters
// left empty are dropped, so the result may hold fewer than k draws.
func summarize(fam family.Family, draws *refmodel.DrawSet, assignments []int, k int, signature string) (*refmodel.DrawSet, error) {
	groups := make([][]int, k)
	for i, j := range assignments {
		groups[j] = append(groups[j], i)
	}
	nonEmpty := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	groups = nonEmpty
	m := len(groups)

	_, n := draws.Eta().Dims()
	eta := mat.NewDense(m, n, nil)
	weights := make([]float64, m)
	members := make([][]int, m)
	var coef *mat.Dense
	if draws.HasCoefficients() {
		_, c := draws.Coefficients().Dims()
		coef = mat.NewDense(m, c, nil)
	}
	var disp []float64
	if draws.HasDispersion() {
		disp = make([]float64, m)
	}

	for j, g := range groups {
		var w float64
		for _, s := range g {
			w += draws.Weight(s)
		}
		weights[j] = w

		centre := eta.RawRowView(j)
		for _, s := range g {
			ws := draws.Weight(s) / w
			floats.AddScaled(centre, ws, draws.EtaRow(s))
			if coef != nil {
				floats.AddScaled(coef.RawRowView(j), ws, draws.Coefficients().RawRowView(s))
			}
			members[j] = append(members[j], draws.Members(s)...)
		}

		if disp == nil {
			continue
		}
		var sigma2, spread float64
		for _, s := range g {
			ws := draws.Weight(s) / w
			d := draws.Dispersion(s)
			sigma2 += ws * d * d
			if fam != nil && fam.HasDispersion() {
				row := draws.EtaRow(s)
				var ss float64
				for i, v := range row {
					r := v - centre[i]
					ss += r * r
				}
				spread += ws * ss / float64(n)
			}
		}
		disp[j] = math.Sqrt(sigma2 + spread)
	}

	opts := []refmodel.DrawOption{
		refmodel.WithDrawWeights(weights),
		refmodel.WithMembers(members),
		refmodel.WithEta(eta),
		refmodel.WithSignature(signature),
	}
	if coef != nil {
		return refmodel.NewDrawSet(coef, disp, opts...)
	}

	return refmodel.NewLinearDrawSet(eta, disp, opts...)
}
