package honeyguard

import (
	"regexp"
	"strings"
)

// patternRule is one stateless signature detector. Fields selects which event
// fields the expressions run against; the rule fires when any expression
// matches any non-empty selected field.
type patternRule struct {
	Kind     ThreatKind
	Severity Severity
	Reason   string
	Fields   func(Event) []string
	Exprs    []*regexp.Regexp
}

func inputFields(ev Event) []string {
	return []string{ev.Identity, ev.Secret, ev.Payload}
}

func identityField(ev Event) []string {
	return []string{ev.Identity}
}

// Signature tables are declarative so new expressions are additive and
// independently testable. Order only controls the order findings are
// reported in; the checks are independent.
var patternRules = []patternRule{
	{
		Kind:     ThreatSQLInjection,
		Severity: SeverityHigh,
		Reason:   "SQL injection patterns detected in input",
		Fields:   inputFields,
		Exprs: []*regexp.Regexp{
			regexp.MustCompile(`(?i)('|\\')|(;)|(--)|(\s*(union|select|insert|delete|update|drop|create|alter|exec|execute)\s+)`),
			regexp.MustCompile(`(?i)((%27)|('))\s*((%6f)|o)\s*((%72)|r)`),
			regexp.MustCompile(`(?i)\w*((%27)|('))((%6f)|o)((%72)|r)`),
		},
	},
	{
		Kind:     ThreatXSSAttempt,
		Severity: SeverityHigh,
		Reason:   "Cross-site scripting patterns detected",
		Fields:   inputFields,
		Exprs: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)on\w+\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
		},
	},
	{
		Kind:     ThreatDirectoryTraversal,
		Severity: SeverityMedium,
		Reason:   "Directory traversal patterns detected",
		Fields:   inputFields,
		Exprs: []*regexp.Regexp{
			regexp.MustCompile(`\.\.[/\\]`),
			regexp.MustCompile(`(?i)%2e%2e[/\\]`),
			regexp.MustCompile(`(?i)%252e%252e[/\\]`),
		},
	},
	{
		Kind:     ThreatAdminTargeting,
		Severity: SeverityHigh,
		Reason:   "Attempt to access administrative account",
		Fields:   identityField,
		Exprs: []*regexp.Regexp{
			// Whole-word only: "administration" must not match.
			regexp.MustCompile(`(?i)\b(admin|administrator|root|superuser|sa)\b`),
		},
	},
}

// Bot heuristics run against the client signature in fixed order; the first
// matching rule supplies the reason.
var (
	botTokenExpr = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|curl|wget|python|java|automated|script)`)

	genericClientSigs = []string{
		"Mozilla/4.0",              // legacy browser long out of circulation
		"Mozilla/5.0 (compatible;", // generic bot prefix
	}
)

const (
	minClientSigLen = 20
	maxClientSigLen = 500
)

// MatchPatterns runs every stateless detector against the event. Pure
// function: no shared state, no I/O. An event can produce multiple findings
// (e.g. SQL injection and bot scanning at once); severity aggregation happens
// downstream.
func MatchPatterns(ev Event) []Finding {
	var findings []Finding
	for _, rule := range patternRules {
		if matchAny(rule, ev) {
			findings = append(findings, Finding{
				Kind:     rule.Kind,
				Severity: rule.Severity,
				Reason:   rule.Reason,
			})
		}
	}
	if reason, bot := classifyClientSig(ev.ClientSig); bot {
		findings = append(findings, Finding{
			Kind:     ThreatBotScanning,
			Severity: SeverityMedium,
			Reason:   reason,
		})
	}
	return findings
}

func matchAny(rule patternRule, ev Event) bool {
	for _, input := range rule.Fields(ev) {
		if input == "" {
			continue
		}
		for _, expr := range rule.Exprs {
			if expr.MatchString(input) {
				return true
			}
		}
	}
	return false
}

func classifyClientSig(sig string) (reason string, bot bool) {
	if sig == "" {
		return "Missing client signature", true
	}
	if botTokenExpr.MatchString(sig) {
		return "Bot-like client signature detected", true
	}
	for _, generic := range genericClientSigs {
		if strings.Contains(sig, generic) {
			return "Suspicious client signature pattern", true
		}
	}
	if len(sig) < minClientSigLen || len(sig) > maxClientSigLen {
		return "Abnormal client signature length", true
	}
	return "", false
}
