package shipper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry manages registered shipping carriers. Iteration follows registration order.
type Registry struct {
	shippers map[string]Shipper
	order    []string
	mu       sync.RWMutex
}

// NewRegistry creates a new shipper registry.
func NewRegistry() *Registry {
	return &Registry{
		shippers: make(map[string]Shipper),
	}
}

// Register adds a shipper to the registry, replacing one with the same name.
func (r *Registry) Register(s Shipper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shippers[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.shippers[s.Name()] = s
}

// Get returns a shipper by name.
func (r *Registry) Get(name string) (Shipper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.shippers[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCarrierNotFound, name)
}

// All returns all registered shippers in registration order.
func (r *Registry) All() []Shipper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Shipper, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.shippers[name])
	}
	return result
}

// Names returns the names of all registered shippers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered shippers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shippers)
}

// QuoteAll fetches rates from all registered carriers in parallel, each bounded by timeout.
// Errors from individual carriers are collected but don't fail the entire request.
// Rates are returned grouped in registration order regardless of completion order.
func (r *Registry) QuoteAll(ctx context.Context, req *QuoteRequest, timeout time.Duration) ([]NativeRate, []error) {
	shippers := r.All()
	if len(shippers) == 0 {
		return nil, []error{ErrCarrierNotFound}
	}

	perCarrier := make([][]NativeRate, len(shippers))
	errs := make([]error, 0)
	mu := &sync.Mutex{}

	g, ctx := errgroup.WithContext(ctx)

	for i, s := range shippers {
		g.Go(func() error {
			rates, err := quoteWithTimeout(ctx, s, req, timeout)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
				return nil // Don't fail the group, continue with other carriers
			}
			perCarrier[i] = rates
			return nil
		})
	}

	g.Wait()

	var results []NativeRate
	for _, rates := range perCarrier {
		results = append(results, rates...)
	}
	return results, errs
}

func quoteWithTimeout(ctx context.Context, s Shipper, req *QuoteRequest, timeout time.Duration) ([]NativeRate, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rates, err := s.QuoteRates(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrCarrierUnavailable) && IsTransport(err) {
			return nil, Unavailable(s.Name(), err)
		}
		return nil, err
	}
	return rates, nil
}
