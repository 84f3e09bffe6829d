// Package family provides the closed set of exponential-family response
// distributions supported by the projection: gaussian with identity link,
// binomial with logit link and poisson with log link.
//
// A Family exposes the link, its inverse and derivative, the variance
// function, the unit deviance (used as the projection divergence) and the
// log predictive density (used by the evaluation and the importance sampling
// code).
//
// Binomial responses are proportions in [0, 1]; the number of trials is passed
// as the observation weight, so Bernoulli data uses weight 1.
//
//	fam, err := family.New("poisson", "")
//	if err != nil {
//	    return err
//	}
//	mu := fam.LinkInv(0.3)
package family
