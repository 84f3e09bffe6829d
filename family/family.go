package family

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/combin"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/arloliu/projpred/errs"
)

// Kind represents the response distribution of a family.
type Kind int

const (
	// KindGaussian is the normal response distribution.
	KindGaussian Kind = iota
	// KindBinomial is the binomial response; y is a proportion and the observation weight holds the trials.
	KindBinomial
	// KindPoisson is the Poisson count response.
	KindPoisson
)

var kindNames = map[Kind]string{
	KindGaussian: "gaussian",
	KindBinomial: "binomial",
	KindPoisson:  "poisson",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}

	return "unknown"
}

// Link represents the link function of a family.
type Link int

const (
	// LinkIdentity is η = μ.
	LinkIdentity Link = iota
	// LinkLogit is η = log(μ / (1 - μ)).
	LinkLogit
	// LinkLog is η = log(μ).
	LinkLog
)

var linkNames = map[Link]string{
	LinkIdentity: "identity",
	LinkLogit:    "logit",
	LinkLog:      "log",
}

// String returns the string representation of the link.
func (l Link) String() string {
	if name, exists := linkNames[l]; exists {
		return name
	}

	return "unknown"
}

// Family describes an exponential-family response distribution with a link
// function, and exposes the quantities needed by the projection and the
// evaluation code.
//
// All methods are pure and safe for concurrent use.
type Family interface {
	// Kind returns the response distribution.
	Kind() Kind
	// Link returns the link function.
	Link() Link
	// LinkFun maps a mean to the linear predictor scale.
	LinkFun(mu float64) float64
	// LinkInv maps a linear predictor to the mean.
	LinkInv(eta float64) float64
	// MuEta returns dμ/dη evaluated at eta.
	MuEta(eta float64) float64
	// Variance returns the variance function V(μ).
	Variance(mu float64) float64
	// Deviance returns the weighted unit deviance of y under mean mu.
	Deviance(y, mu, weight float64) float64
	// LogDensity returns the log predictive density of y given mean, dispersion and weight.
	LogDensity(y, mu, dispersion, weight float64) float64
	// HasDispersion reports whether the family carries a free dispersion parameter.
	HasDispersion() bool
	// ValidateResponse checks y and its weight against the family support.
	ValidateResponse(y, weight float64) error
}

// String formats a family as "kind(link)".
func String(f Family) string {
	return fmt.Sprintf("%s(%s)", f.Kind(), f.Link())
}

// New returns the family for the given kind and link names.
//
// An empty link selects the canonical link. Unknown names or a link without a
// closed-form projection return errs.ErrUnsupportedFamily.
//
// Example:
//
//	fam, err := family.New("binomial", "logit")
func New(kind, link string) (Family, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	link = strings.ToLower(strings.TrimSpace(link))

	switch kind {
	case "gaussian", "normal":
		if link == "" || link == "identity" {
			return Gaussian(), nil
		}
	case "binomial", "bernoulli":
		if link == "" || link == "logit" {
			return Binomial(), nil
		}
	case "poisson":
		if link == "" || link == "log" {
			return Poisson(), nil
		}
	}

	return nil, fmt.Errorf("%w: %s(%s)", errs.ErrUnsupportedFamily, kind, link)
}

// Gaussian returns the normal family with identity link.
func Gaussian() Family { return gaussian{} }

// Binomial returns the binomial family with logit link.
func Binomial() Family { return binomial{} }

// Poisson returns the Poisson family with log link.
func Poisson() Family { return poisson{} }

const (
	// muEpsilon keeps binomial means away from 0 and 1.
	muEpsilon = 1e-12
	// etaMax bounds the linear predictor before exponentiation.
	etaMax = 700.0
)

type gaussian struct{}

func (gaussian) Kind() Kind                 { return KindGaussian }
func (gaussian) Link() Link                 { return LinkIdentity }
func (gaussian) LinkFun(mu float64) float64 { return mu }
func (gaussian) LinkInv(eta float64) float64 {
	return eta
}
func (gaussian) MuEta(float64) float64    { return 1 }
func (gaussian) Variance(float64) float64 { return 1 }
func (gaussian) HasDispersion() bool      { return true }

func (gaussian) Deviance(y, mu, weight float64) float64 {
	r := y - mu
	return weight * r * r
}

func (gaussian) LogDensity(y, mu, dispersion, weight float64) float64 {
	if dispersion <= 0 {
		return math.Inf(-1)
	}

	return weight * distuv.Normal{Mu: mu, Sigma: dispersion}.LogProb(y)
}

func (gaussian) ValidateResponse(y, weight float64) error {
	if math.IsNaN(y) || math.IsInf(y, 0) || weight < 0 {
		return fmt.Errorf("%w: gaussian y=%g weight=%g", errs.ErrInvalidResponse, y, weight)
	}

	return nil
}

type binomial struct{}

func (binomial) Kind() Kind { return KindBinomial }
func (binomial) Link() Link { return LinkLogit }

func (binomial) LinkFun(mu float64) float64 {
	mu = clampMu(mu)
	return math.Log(mu / (1 - mu))
}

func (binomial) LinkInv(eta float64) float64 {
	return clampMu(sigmoid(eta))
}

func (binomial) MuEta(eta float64) float64 {
	p := sigmoid(eta)
	d := p * (1 - p)
	if d < muEpsilon {
		return muEpsilon
	}

	return d
}

func (binomial) Variance(mu float64) float64 {
	mu = clampMu(mu)
	return mu * (1 - mu)
}

func (binomial) HasDispersion() bool { return false }

func (binomial) Deviance(y, mu, weight float64) float64 {
	mu = clampMu(mu)
	return 2 * weight * (xlogy(y, y/mu) + xlogy(1-y, (1-y)/(1-mu)))
}

func (binomial) LogDensity(y, mu, _, weight float64) float64 {
	mu = clampMu(mu)
	if weight <= 0 {
		return 0
	}
	successes := weight * y
	if r := math.Round(successes); math.Abs(successes-r) < 1e-9 {
		successes = r
	}
	if weight == math.Trunc(weight) && successes == math.Trunc(successes) {
		return distuv.Binomial{N: weight, P: mu}.LogProb(successes)
	}
	// fractional trials use the generalized coefficient
	successes = math.Min(successes, weight)

	return combin.LogGeneralizedBinomial(weight, successes) + successes*math.Log(mu) + (weight-successes)*math.Log1p(-mu)
}

func (binomial) ValidateResponse(y, weight float64) error {
	if math.IsNaN(y) || y < 0 || y > 1 || weight < 0 {
		return fmt.Errorf("%w: binomial proportion y=%g trials=%g", errs.ErrInvalidResponse, y, weight)
	}

	return nil
}

type poisson struct{}

func (poisson) Kind() Kind { return KindPoisson }
func (poisson) Link() Link { return LinkLog }

func (poisson) LinkFun(mu float64) float64 {
	if mu < muEpsilon {
		mu = muEpsilon
	}

	return math.Log(mu)
}

func (poisson) LinkInv(eta float64) float64 {
	return math.Max(math.Exp(math.Min(eta, etaMax)), muEpsilon)
}

func (p poisson) MuEta(eta float64) float64 {
	return p.LinkInv(eta)
}

func (poisson) Variance(mu float64) float64 {
	return math.Max(mu, muEpsilon)
}

func (poisson) HasDispersion() bool { return false }

func (poisson) Deviance(y, mu, weight float64) float64 {
	mu = math.Max(mu, muEpsilon)
	return 2 * weight * (xlogy(y, y/mu) - (y - mu))
}

func (poisson) LogDensity(y, mu, _, weight float64) float64 {
	mu = math.Max(mu, muEpsilon)

	return weight * distuv.Poisson{Lambda: mu}.LogProb(y)
}

func (poisson) ValidateResponse(y, weight float64) error {
	if math.IsNaN(y) || y < 0 || weight < 0 || y != math.Trunc(y) {
		return fmt.Errorf("%w: poisson count y=%g", errs.ErrInvalidResponse, y)
	}

	return nil
}

func sigmoid(eta float64) float64 {
	if eta >= 0 {
		return 1 / (1 + math.Exp(-eta))
	}
	e := math.Exp(eta)

	return e / (1 + e)
}

func clampMu(mu float64) float64 {
	switch {
	case mu < muEpsilon:
		return muEpsilon
	case mu > 1-muEpsilon:
		return 1 - muEpsilon
	default:
		return mu
	}
}

// xlogy returns x*log(y) with the convention 0*log(0) = 0.
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}

	return x * math.Log(y)
}
