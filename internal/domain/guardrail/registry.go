package guardrail

import (
	"fmt"

	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
)

// Guardrail type tags. The declaration order here is the registry order
// and therefore the pipeline execution order: cheap denials (RBAC) run
// before expensive scanning, and rate limits run last so blocked
// requests never consume quota.
const (
	TypeRBAC               = "rbac"
	TypePIISSN             = "pii_ssn"
	TypePIICreditCard      = "pii_credit_card"
	TypePIIEmail           = "pii_email"
	TypePIIPhone           = "pii_phone"
	TypePIIIPAddress       = "pii_ip_address"
	TypeContentFilter      = "content_filter"
	TypeCELFilter          = "cel_filter"
	TypeRateLimitPerMinute = "rate_limit_per_minute"
	TypeRateLimitPerHour   = "rate_limit_per_hour"
)

// Registry is the static map from type tag to guardrail factory.
// Population is eager at process start; after that it is read-only and
// safe for unsynchronised concurrent reads.
type Registry struct {
	order     []string
	factories map[string]Factory
}

// NewRegistry builds the default registry. The counter store backs the
// two rate-limit guardrails.
func NewRegistry(counters ratelimit.CounterStore) *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.register(TypeRBAC, newRBAC)
	r.register(TypePIISSN, piiFactory(ssnDetector))
	r.register(TypePIICreditCard, piiFactory(creditCardDetector))
	r.register(TypePIIEmail, piiFactory(emailDetector))
	r.register(TypePIIPhone, piiFactory(phoneDetector))
	r.register(TypePIIIPAddress, piiFactory(ipAddressDetector))
	r.register(TypeContentFilter, newContentFilter)
	r.register(TypeCELFilter, newCELFilter)
	r.register(TypeRateLimitPerMinute, rateLimitFactory(TypeRateLimitPerMinute, counters))
	r.register(TypeRateLimitPerHour, rateLimitFactory(TypeRateLimitPerHour, counters))

	return r
}

func (r *Registry) register(guardrailType string, f Factory) {
	if _, exists := r.factories[guardrailType]; exists {
		panic(fmt.Sprintf("guardrail type %q registered twice", guardrailType))
	}
	r.order = append(r.order, guardrailType)
	r.factories[guardrailType] = f
}

// Types returns the registered type tags in registration order.
// Callers must not mutate the returned slice.
func (r *Registry) Types() []string {
	return r.order
}

// Contains reports whether a type tag is registered.
func (r *Registry) Contains(guardrailType string) bool {
	_, ok := r.factories[guardrailType]
	return ok
}

// Build constructs a guardrail instance from an effective config.
// Construction failures are ConfigErrors.
func (r *Registry) Build(guardrailType string, config map[string]any) (Guardrail, error) {
	factory, ok := r.factories[guardrailType]
	if !ok {
		return nil, &ConfigError{GuardrailType: guardrailType, Err: fmt.Errorf("unknown guardrail type")}
	}
	g, err := factory(config)
	if err != nil {
		if _, ok := err.(*ConfigError); ok {
			return nil, err
		}
		return nil, &ConfigError{GuardrailType: guardrailType, Err: err}
	}
	return g, nil
}
