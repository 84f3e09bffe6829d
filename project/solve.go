package project

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/errs"
)

// maxJitterAttempts bounds the diagonal jitter retries of a failed Cholesky.
const maxJitterAttempts = 6

// design returns the n × (1+k) design matrix [1, X[:, subset]].
func design(x *mat.Dense, subset []int) *mat.Dense {
	n, _ := x.Dims()
	d := mat.NewDense(n, 1+len(subset), nil)
	for i := 0; i < n; i++ {
		row := d.RawRowView(i)
		src := x.RawRowView(i)
		row[0] = 1
		for j, c := range subset {
			row[1+j] = src[c]
		}
	}

	return d
}

// selectColumns returns x[:, cols] as a dense copy. It returns x itself when
// cols is empty; callers only use it for intercept-only prediction then.
func selectColumns(x mat.Matrix, cols []int) mat.Matrix {
	if len(cols) == 0 {
		return x
	}
	r, _ := x.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for j, c := range cols {
			row[j] = x.At(i, c)
		}
	}

	return out
}

// normalEquations factorises XᵀWX + λD, where D is the identity with a zero
// intercept entry, and solves for any number of right-hand sides.
type normalEquations struct {
	chol mat.Cholesky
	dim  int
}

// factorize builds and factorises the penalised weighted Gram matrix. A
// matrix that is not numerically positive definite gets an increasing
// diagonal jitter before giving up with errs.ErrSingularDesign.
func factorize(xd *mat.Dense, w []float64, lambda float64) (*normalEquations, error) {
	n, k := xd.Dims()
	xw := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		dst := xw.RawRowView(i)
		for j, v := range xd.RawRowView(i) {
			dst[j] = sw * v
		}
	}

	gram := mat.NewSymDense(k, nil)
	gram.SymOuterK(1, xw.T())
	for j := 1; j < k; j++ {
		gram.SetSym(j, j, gram.At(j, j)+lambda)
	}

	ne := &normalEquations{dim: k}
	if ne.chol.Factorize(gram) {
		return ne, nil
	}

	var trace float64
	for j := 0; j < k; j++ {
		trace += gram.At(j, j)
	}
	jitter := 1e-10 * math.Max(1, trace/float64(k))
	for attempt := 0; attempt < maxJitterAttempts; attempt++ {
		jittered := mat.NewSymDense(k, nil)
		jittered.CopySym(gram)
		for j := 0; j < k; j++ {
			jittered.SetSym(j, j, jittered.At(j, j)+jitter)
		}
		if ne.chol.Factorize(jittered) {
			return ne, nil
		}
		jitter *= 100
	}

	return nil, fmt.Errorf("%w: %d×%d gram matrix", errs.ErrSingularDesign, k, k)
}

// solveVec solves for a single right-hand side b = XᵀW z.
func (ne *normalEquations) solveVec(xd *mat.Dense, w, z []float64) ([]float64, error) {
	n, _ := xd.Dims()
	wz := make([]float64, n)
	for i := range wz {
		wz[i] = w[i] * z[i]
	}
	var rhs mat.VecDense
	rhs.MulVec(xd.T(), mat.NewVecDense(n, wz))

	beta := mat.NewVecDense(ne.dim, nil)
	if err := ne.chol.SolveVecTo(beta, &rhs); err != nil {
		// near-singular systems still yield a usable solution
		if _, ok := err.(mat.Condition); !ok {
			return nil, err
		}
	}

	return beta.RawVector().Data, nil
}

// solveDraws solves every row of targets (S × n) at once and returns the
// S × k coefficient matrix.
func (ne *normalEquations) solveDraws(xd *mat.Dense, w []float64, targets *mat.Dense) (*mat.Dense, error) {
	s, n := targets.Dims()
	tw := mat.NewDense(s, n, nil)
	for r := 0; r < s; r++ {
		dst := tw.RawRowView(r)
		for i, v := range targets.RawRowView(r) {
			dst[i] = w[i] * v
		}
	}

	var rhs mat.Dense
	rhs.Mul(xd.T(), tw.T())

	var beta mat.Dense
	if err := ne.chol.SolveTo(&beta, &rhs); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, err
		}
	}

	out := mat.NewDense(s, ne.dim, nil)
	out.Copy(beta.T())

	return out, nil
}

func fittedInto(dst []float64, xd *mat.Dense, beta, offset []float64) {
	for i := range dst {
		row := xd.RawRowView(i)
		v := offset[i]
		for j, b := range beta {
			v += row[j] * b
		}
		dst[i] = v
	}
}

// penalty returns λ‖β₁:‖².
func penalty(beta []float64, lambda float64) float64 {
	if lambda == 0 {
		return 0
	}
	var ss float64
	for _, b := range beta[1:] {
		ss += b * b
	}

	return lambda * ss
}
