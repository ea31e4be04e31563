package service

import "context"

// Service is a long-running part of the node. Run blocks until ctx is cancelled or the
// service fails; a service that stops on its own returns nil.
type Service interface {
	Run(ctx context.Context) error
}

// Func adapts a function to a Service.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}
