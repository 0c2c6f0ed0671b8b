// Package timemodel provides performance models for the execution time of
// network layers.
package timemodel

// A TimeEstimatorInput represents the input of a time estimator.
type TimeEstimatorInput struct {
	Name string
	// Features is the normalized feature vector of the layer.
	Features         []float64
	RecordedTimeInMs float64
}

// A TimeEstimatorOutput represents the output of a time estimator.
type TimeEstimatorOutput struct {
	// The estimated execution time in milliseconds.
	TimeInMs float64
}

// TimeEstimator estimates the execution time of a layer.
type TimeEstimator interface {
	// Estimate estimates the execution time of a layer.
	Estimate(input TimeEstimatorInput) (TimeEstimatorOutput, error)
}

// A AlwaysOneTimeEstimator always returns 1 as the estimated execution time.
type AlwaysOneTimeEstimator struct{}

// Estimate always returns 1 as the estimated execution time.
func (e *AlwaysOneTimeEstimator) Estimate(
	input TimeEstimatorInput,
) (TimeEstimatorOutput, error) {
	return TimeEstimatorOutput{
		TimeInMs: 1,
	}, nil
}

// A RecordedTimeEstimator estimates the execution time of a layer as a
// previously recorded or predicted time.
type RecordedTimeEstimator struct{}

// Estimate returns the recorded time.
func (e *RecordedTimeEstimator) Estimate(
	input TimeEstimatorInput,
) (TimeEstimatorOutput, error) {
	return TimeEstimatorOutput{
		TimeInMs: input.RecordedTimeInMs,
	}, nil
}
