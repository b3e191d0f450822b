package http

import (
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/monitoring"
)

// Service labels used for handler-level timings
const (
	serviceApps     = "app_manager"
	serviceSandbox  = "sandbox"
	serviceRegistry = "app_registry"
	serviceSettings = "settings"
	serviceBus      = "bus"
	serviceSystem   = "system"
)

// HandlerMetrics wraps handlers with metrics tracking. A nil
// HandlerMetrics records nothing.
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// Track starts timing an operation; the returned func records it with the
// status derived from err
func (hm *HandlerMetrics) Track(service, operation string) func(err error) {
	if hm == nil || hm.metrics == nil {
		return func(error) {}
	}
	timer := monitoring.NewTimer(hm.metrics, service, operation)
	return timer.Done
}

// TrackAppOperation tracks app lifecycle operations
func (hm *HandlerMetrics) TrackAppOperation(operation string) func(err error) {
	return hm.Track(serviceApps, operation)
}

// TrackSandboxOperation tracks calls into running app code
func (hm *HandlerMetrics) TrackSandboxOperation(operation string) func(err error) {
	return hm.Track(serviceSandbox, operation)
}

// TrackRegistryOperation tracks registry operations
func (hm *HandlerMetrics) TrackRegistryOperation(operation string) func(err error) {
	return hm.Track(serviceRegistry, operation)
}
