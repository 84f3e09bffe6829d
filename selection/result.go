package selection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/eval"
	"github.com/arloliu/projpred/project"
	"github.com/arloliu/projpred/search"
)

// Evaluation method names reported by a Result.
const (
	EvalTraining = "training"
	EvalKFold    = "kfold"
	EvalLOO      = "loo"
)

// RankStability records, per path position and variable, the fraction of
// validation paths (folds or left-out observations) that selected the
// variable at or before that position.
type RankStability struct {
	// Fraction[k][v] refers to position k+1 (submodel size k+1) and variable v.
	Fraction [][]float64
	// Paths is the number of validation paths summarised.
	Paths int
}

// NewRankStability summarises validation paths over p variables up to size nvMax.
func NewRankStability(paths []*search.Path, p, nvMax int) *RankStability {
	rs := &RankStability{Fraction: make([][]float64, nvMax)}
	for k := range rs.Fraction {
		rs.Fraction[k] = make([]float64, p)
	}
	for _, path := range paths {
		if path == nil {
			continue
		}
		rs.Paths++
		for pos, v := range path.Order {
			for k := pos; k < nvMax; k++ {
				rs.Fraction[k][v]++
			}
		}
	}
	if rs.Paths > 0 {
		for _, row := range rs.Fraction {
			for v := range row {
				row[v] /= float64(rs.Paths)
			}
		}
	}

	return rs
}

// At returns the fraction of paths selecting variable v within the first size positions.
func (rs *RankStability) At(size, v int) float64 {
	if size < 1 || size > len(rs.Fraction) || v < 0 || v >= len(rs.Fraction[size-1]) {
		return 0
	}

	return rs.Fraction[size-1][v]
}

// ResultParams collects the pieces of a Result.
type ResultParams struct {
	Method        string
	Path          *search.Path
	Statistics    []eval.Statistic
	Curves        map[string][]eval.Estimate
	Diffs         map[string][]eval.Estimate
	Reference     map[string]eval.Estimate
	Submodels     []*project.Submodel
	Warnings      errs.Warnings
	RankStability *RankStability
	Partial       bool
	Suggest       SuggestOptions
}

// Result is the outcome of a selection run: the search path, per-size
// performance curves, the suggested size and the projected submodels.
type Result struct {
	p         ResultParams
	suggested int
}

// NewResult assembles a result and computes the suggested size from the
// paired differences of the primary (first) statistic.
func NewResult(p ResultParams) *Result {
	r := &Result{p: p, suggested: -1}
	if len(p.Statistics) > 0 {
		r.suggested = SuggestFromDiffs(p.Diffs[p.Statistics[0].Name()], p.Suggest)
	}

	return r
}

// Method returns how the curves were evaluated: training, kfold or loo.
func (r *Result) Method() string { return r.p.Method }

// Path returns the search path, or nil when the run was cancelled before it finished.
func (r *Result) Path() *search.Path { return r.p.Path }

// Statistics returns the reported statistic names, primary first.
func (r *Result) Statistics() []string {
	out := make([]string, len(r.p.Statistics))
	for i, st := range r.p.Statistics {
		out[i] = st.Name()
	}

	return out
}

// Curve returns the per-size estimates (index = size) of a statistic.
func (r *Result) Curve(stat string) ([]eval.Estimate, error) {
	c, ok := r.p.Curves[stat]
	if !ok {
		return nil, fmt.Errorf("%w: %q not computed", errs.ErrUnknownStatistic, stat)
	}

	return append([]eval.Estimate(nil), c...), nil
}

// Diff returns the per-size paired differences to the reference model.
func (r *Result) Diff(stat string) ([]eval.Estimate, error) {
	d, ok := r.p.Diffs[stat]
	if !ok {
		return nil, fmt.Errorf("%w: %q not computed", errs.ErrUnknownStatistic, stat)
	}

	return append([]eval.Estimate(nil), d...), nil
}

// Reference returns the reference model's estimate of a statistic.
func (r *Result) Reference(stat string) (eval.Estimate, error) {
	e, ok := r.p.Reference[stat]
	if !ok {
		return eval.Estimate{}, fmt.Errorf("%w: %q not computed", errs.ErrUnknownStatistic, stat)
	}

	return e, nil
}

// SuggestedSize returns the suggested submodel size, or -1 when no size was
// evaluated. When no evaluated size is close enough to the reference model it
// is the number of candidate variables, which exceeds the path when nv_max
// truncated it.
func (r *Result) SuggestedSize() int { return r.suggested }

// Sizes returns the number of evaluated sizes (intercept-only included).
func (r *Result) Sizes() int { return len(r.p.Submodels) }

// Submodel returns the projected submodel of the given size on the full data.
func (r *Result) Submodel(size int) (*project.Submodel, error) {
	if size < 0 || size >= len(r.p.Submodels) || r.p.Submodels[size] == nil {
		return nil, fmt.Errorf("%w: no submodel of size %d", errs.ErrConfiguration, size)
	}

	return r.p.Submodels[size], nil
}

// Warnings returns every warning collected during the run.
func (r *Result) Warnings() errs.Warnings { return append(errs.Warnings(nil), r.p.Warnings...) }

// RankStability returns the rank stability of validated searches, or nil.
func (r *Result) RankStability() *RankStability { return r.p.RankStability }

// Partial reports whether the run was cancelled before completing.
func (r *Result) Partial() bool { return r.p.Partial }

// Summary renders the per-size curve of every statistic as a table.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "evaluation: %s", r.p.Method)
	if r.p.Path != nil {
		fmt.Fprintf(&b, ", search: %s", r.p.Path.Method)
	}
	fmt.Fprintf(&b, ", suggested size: %d", r.suggested)
	if r.p.Partial {
		b.WriteString(" (partial)")
	}
	b.WriteString("\n")

	headers := []string{"size", "variable"}
	for _, st := range r.p.Statistics {
		name := st.Name()
		headers = append(headers, name, name+".se", "diff", "diff.se")
	}

	t := table.New().Border(lipgloss.NormalBorder()).Headers(headers...)
	for size := range r.p.Submodels {
		row := []string{strconv.Itoa(size), "(intercept)"}
		if size > 0 && r.p.Path != nil && size <= r.p.Path.Size() {
			row[1] = strconv.Itoa(r.p.Path.Order[size-1])
		}
		for _, st := range r.p.Statistics {
			name := st.Name()
			row = append(row, cell(r.p.Curves[name], size, false), cell(r.p.Curves[name], size, true),
				cell(r.p.Diffs[name], size, false), cell(r.p.Diffs[name], size, true))
		}
		t.Row(row...)
	}
	refRow := []string{"ref", ""}
	for _, st := range r.p.Statistics {
		est := r.p.Reference[st.Name()]
		refRow = append(refRow, formatFloat(est.Value), formatFloat(est.SE), "", "")
	}
	t.Row(refRow...)
	b.WriteString(t.String())
	b.WriteString("\n")

	return b.String()
}

func cell(ests []eval.Estimate, i int, se bool) string {
	if i >= len(ests) {
		return "-"
	}
	if se {
		return formatFloat(ests[i].SE)
	}

	return formatFloat(ests[i].Value)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
