// Package prediction defines the optional external score contributor used by
// the scoring function. A predictor receives a feature vector built from a
// case, its patient and a candidate doctor, and returns a real-valued
// estimate. Predictors are never required: a missing predictor or a failed
// prediction leaves the base score untouched.
package prediction
