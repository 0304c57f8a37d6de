package workflow

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// SagaStep is one unit of the provisioning state machine. Compensate is
// registered only after Run succeeds and is invoked when a LATER step fails
// with a failure tagging this step for compensation.
type SagaStep struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// sagaFailure tags a step error with the names of prior steps whose
// compensations must run. An untagged error compensates nothing (the
// persistence step relies on this).
type sagaFailure struct {
	err        error
	compensate []string
}

func (f *sagaFailure) Error() string { return f.err.Error() }
func (f *sagaFailure) Unwrap() error { return f.err }

// FailCompensating wraps err so the saga runner compensates the named prior
// steps before propagating it.
func FailCompensating(err error, steps ...string) error {
	return &sagaFailure{err: err, compensate: steps}
}

// RunSaga executes steps in order, recording completed step handles. On a
// tagged failure it runs the named compensations in reverse completion order,
// then returns the underlying error. Compensation errors are logged, never
// returned; the original failure is what the caller must see.
func RunSaga(ctx context.Context, logger *logrus.Logger, steps []SagaStep) error {
	var completed []SagaStep
	for _, step := range steps {
		err := step.Run(ctx)
		if err == nil {
			completed = append(completed, step)
			continue
		}

		var failure *sagaFailure
		if errors.As(err, &failure) {
			wanted := make(map[string]bool, len(failure.compensate))
			for _, name := range failure.compensate {
				wanted[name] = true
			}
			for i := len(completed) - 1; i >= 0; i-- {
				prior := completed[i]
				if !wanted[prior.Name] || prior.Compensate == nil {
					continue
				}
				if cerr := prior.Compensate(ctx); cerr != nil && logger != nil {
					logger.WithFields(logrus.Fields{
						"module":     "workflow",
						"failedStep": step.Name,
						"compensate": prior.Name,
					}).Errorf("compensation failed: %v", cerr)
				}
			}
			return failure.err
		}
		return err
	}
	return nil
}
