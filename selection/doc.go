// Package selection runs projection predictive variable selection and
// suggests a submodel size.
//
// A Selector wires the projector, the search strategy, the draw reducers and
// the evaluator from one Config. Selector.Run searches the full data, projects
// every prefix of the path and evaluates the submodels on the training data;
// package cv reuses the same Selector for K-fold and leave-one-out curves.
//
// The suggested size is the smallest one whose paired difference to the
// reference model, allowing SEMultiplier standard errors and Threshold, is
// not worse than zero.
package selection
