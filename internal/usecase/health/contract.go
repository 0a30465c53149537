package health

import "context"

// StorePinger checks storage availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// CapabilityChecker checks external capability provider availability.
type CapabilityChecker interface {
	HealthCheck(ctx context.Context) error
}
