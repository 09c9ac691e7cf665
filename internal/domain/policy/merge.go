package policy

// Reserved keys the merge injects into every effective config so
// guardrails and audit records can attribute behaviour to a policy.
const (
	ConfigKeyAction     = "action"
	ConfigKeyPolicyID   = "policy_id"
	ConfigKeyPolicyName = "policy_name"
	ConfigKeyLevel      = "level"
	ConfigKeyEnabled    = "enabled"
)

// EffectiveConfigs collapses a collected policy set into the per-type
// config map consumed by the pipeline. When the same guardrail type is
// bound at multiple scopes, the most specific scope wins outright
// (agent > workspace > organisation); configs are never merged across
// scopes. Within the winner, policy config keys replace definition
// default keys at the top level.
func EffectiveConfigs(policies []Policy) map[string]map[string]any {
	winners := make(map[string]*Policy)
	for i := range policies {
		p := &policies[i]
		if !p.Enabled || p.GuardrailType == "" {
			continue
		}
		current, ok := winners[p.GuardrailType]
		if !ok || p.Scope().Priority() > current.Scope().Priority() {
			winners[p.GuardrailType] = p
		}
	}

	out := make(map[string]map[string]any, len(winners))
	for guardrailType, p := range winners {
		cfg := make(map[string]any, len(p.GuardrailDefaults)+len(p.Config)+5)
		for k, v := range p.GuardrailDefaults {
			cfg[k] = v
		}
		for k, v := range p.Config {
			cfg[k] = v
		}
		cfg[ConfigKeyAction] = string(p.Action)
		cfg[ConfigKeyPolicyID] = p.ID
		cfg[ConfigKeyPolicyName] = p.Name
		cfg[ConfigKeyLevel] = string(p.Scope())
		cfg[ConfigKeyEnabled] = true
		out[guardrailType] = cfg
	}
	return out
}
