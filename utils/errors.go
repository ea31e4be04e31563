package utils

import "errors"

// RunAndWrapOnError runs runnable and joins its error, if any, with existingErr.
func RunAndWrapOnError(runnable func() error, existingErr error) error {
	if runnable == nil {
		return existingErr
	}
	if runErr := runnable(); runErr != nil {
		return errors.Join(existingErr, runErr)
	}
	return existingErr
}
