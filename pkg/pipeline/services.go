package pipeline

import (
	"context"
	"fmt"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/message"
)

// ServiceList runs services in order. Services that are lifecycle components
// are also its children and follow its lifecycle.
type ServiceList struct {
	lifecycle.Container
	services []Service
}

// NewServiceList creates a service list.
func NewServiceList(name string, services ...Service) (*ServiceList, error) {
	l := &ServiceList{}
	l.Setup(name, nil)
	for _, s := range services {
		if err := l.Append(s); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append adds s to the end of the list.
func (l *ServiceList) Append(s Service) error {
	if s == nil {
		return configError("%s: nil service", l.Name())
	}
	if c, ok := s.(lifecycle.Component); ok {
		if err := l.Add(c); err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}
	l.services = append(l.services, s)
	return nil
}

// Len returns the number of services.
func (l *ServiceList) Len() int {
	return len(l.services)
}

// Process runs msg through every service. It returns a nil message when a
// service drops the message or processing is halted with the stop sentinel.
func (l *ServiceList) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if l.State() != lifecycle.StateStarted {
		return nil, ErrNotStarted
	}

	cur := msg
	for i, s := range l.services {
		if cur.StopProcessing() {
			return nil, nil
		}
		out, err := s.Process(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: service %d: %w", l.Name(), i, err)
		}
		if out == nil {
			return nil, nil
		}
		cur = out
	}
	if cur.StopProcessing() {
		return nil, nil
	}
	return cur, nil
}
