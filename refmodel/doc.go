// Package refmodel holds the reference model consumed by the projection
// predictive selection: an exponential family, the training data, the
// posterior draws and a Predictor capability mapping covariates and draws to
// linear predictor values.
//
// # Draw sets
//
// A DrawSet is an immutable, weighted collection of posterior draws. Draws are
// either coefficient vectors (GLM reference models, intercept in column 0) or
// linear predictor rows over the training data (any other reference model,
// paired with a custom Predictor via PredictorFunc).
//
// # Reference models
//
//	draws, err := refmodel.NewDrawSet(coef, sigma)
//	if err != nil {
//	    return err
//	}
//	ref, err := refmodel.New(family.Gaussian(), x, y, draws,
//	    refmodel.WithLogger(logger),
//	)
//
// The constructor validates every shape and the response support and never
// returns a partially built model. Models are read-only afterwards and are
// shared by reference across all workers; Restrict derives the per-fold
// models used by K-fold cross-validation.
package refmodel
