package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// detector pairs an anchored regex with a semantic validator. Matches
// the validator rejects are discarded; this keeps false-positive rates
// workable (an SSN-shaped number with area 666 is not an SSN).
type detector struct {
	typeTag   string
	label     string
	pattern   *regexp.Regexp
	validator func(match string) bool
}

var (
	ssnDetector = detector{
		typeTag:   TypePIISSN,
		label:     "SSN",
		pattern:   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		validator: validSSN,
	}
	creditCardDetector = detector{
		typeTag:   TypePIICreditCard,
		label:     "CREDIT_CARD",
		pattern:   regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`),
		validator: validCreditCard,
	}
	emailDetector = detector{
		typeTag:   TypePIIEmail,
		label:     "EMAIL",
		pattern:   regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		validator: validEmail,
	}
	phoneDetector = detector{
		typeTag:   TypePIIPhone,
		label:     "PHONE",
		pattern:   regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
		validator: validPhone,
	}
	ipAddressDetector = detector{
		typeTag:   TypePIIIPAddress,
		label:     "IP_ADDRESS",
		pattern:   regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		validator: validIPAddress,
	}
)

// validSSN rejects impossible area, group, and serial numbers.
func validSSN(match string) bool {
	parts := strings.Split(match, "-")
	if len(parts) != 3 {
		return false
	}
	area, _ := strconv.Atoi(parts[0])
	group, _ := strconv.Atoi(parts[1])
	serial, _ := strconv.Atoi(parts[2])
	if area == 0 || area == 666 || area >= 900 {
		return false
	}
	return group != 0 && serial != 0
}

// validCreditCard strips separators and checks length plus Luhn.
func validCreditCard(match string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validEmail(match string) bool {
	at := strings.Index(match, "@")
	if at <= 0 || at == len(match)-1 {
		return false
	}
	return strings.Contains(match[at+1:], ".")
}

func validPhone(match string) bool {
	count := 0
	for _, r := range match {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count >= 10
}

func validIPAddress(match string) bool {
	for _, part := range strings.Split(match, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// DefaultRedactionPattern interpolates the detector label for {TYPE}.
const DefaultRedactionPattern = "[REDACTED:{TYPE}]"

// piiGuardrail scans message content for one PII category and either
// blocks or redacts findings.
type piiGuardrail struct {
	det        detector
	directions DirectionSet
	action     string
	redaction  string
}

// piiFactory binds a detector into a guardrail factory.
func piiFactory(det detector) Factory {
	return func(config map[string]any) (Guardrail, error) {
		action := cfgString(config, "action", "redact")
		// Policy-level "block" maps onto the guardrail action; every
		// other policy action keeps the redact behaviour.
		if action != "block" && action != "redact" {
			action = "redact"
		}
		return &piiGuardrail{
			det:        det,
			directions: ParseDirection(cfgString(config, "direction", ""), DirResponse),
			action:     action,
			redaction:  cfgString(config, "redaction_pattern", DefaultRedactionPattern),
		}, nil
	}
}

func (g *piiGuardrail) Type() string             { return g.det.typeTag }
func (g *piiGuardrail) Directions() DirectionSet { return g.directions }

func (g *piiGuardrail) Evaluate(_ context.Context, msg *mcp.Message, _ *EvalContext) (Outcome, error) {
	if !g.directions.Supports(msg.Direction) {
		return Allow(nil), nil
	}

	findings := g.findings(scanContent(msg))
	if len(findings) == 0 {
		return Allow(nil), nil
	}

	if g.action == "block" {
		return Block(
			fmt.Sprintf("PII detected: %s", g.det.label),
			SeverityCritical,
			map[string]any{"pii_type": g.det.label, "findings": len(findings)},
		), nil
	}

	modified, err := g.redact(msg, findings)
	if err != nil {
		return Outcome{}, err
	}
	return Modify(
		modified,
		fmt.Sprintf("PII redacted: %s", g.det.label),
		map[string]any{"pii_type": g.det.label, "findings": len(findings)},
	), nil
}

// findings returns validated matches, deduplicated.
func (g *piiGuardrail) findings(content string) []string {
	if content == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, match := range g.det.pattern.FindAllString(content, -1) {
		if !g.det.validator(match) || seen[match] {
			continue
		}
		seen[match] = true
		out = append(out, match)
	}
	return out
}

// redact replaces each finding through a deep copy of the message value.
// Responses are redacted through result, requests through params; the
// original message is never mutated.
func (g *piiGuardrail) redact(msg *mcp.Message, findings []string) (*mcp.Message, error) {
	replacement := strings.ReplaceAll(g.redaction, "{TYPE}", g.det.label)
	value := msg.CloneValue()
	if value == nil {
		return msg, nil
	}

	target := "result"
	if msg.Direction == mcp.DirectionRequest {
		target = "params"
	}
	if sub, ok := value[target]; ok {
		value[target] = redactValue(sub, findings, replacement)
	}

	return mcp.FromValue(value, msg.Direction)
}

// redactValue walks strings, maps, and lists recursively, replacing each
// finding. Other value types pass through untouched.
func redactValue(v any, findings []string, replacement string) any {
	switch val := v.(type) {
	case string:
		for _, finding := range findings {
			val = strings.ReplaceAll(val, finding, replacement)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = redactValue(item, findings, replacement)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = redactValue(item, findings, replacement)
		}
		return val
	default:
		return v
	}
}

var _ Guardrail = (*piiGuardrail)(nil)
