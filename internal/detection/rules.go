package detection

import (
	"strings"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

// Rule names as recorded on classifications
const (
	RuleBruteForce       = "AUTH_FAIL_BRUTE_FORCE"
	RuleAccountEnum      = "ACCOUNT_ENUM"
	RuleWebSensitivePath = "WEBSCAN_SENSITIVE_PATH"
	RuleWebErrorNoise    = "WEBSCAN_ERROR_NOISE"
	RulePrivEscalation   = "UNAUTH_PRIV_ESC"
	RuleNoMatch          = "NO_MATCH"
)

// Rule is one keyword detector. Rules are tried in order and the first match wins.
type Rule interface {
	Name() string
	IsActive(cfg models.DetectionConfig) bool
	Evaluate(ev *models.RawEvidence) (models.Verdict, bool)
}

// KeywordRule matches when the lower-cased message contains any keyword and,
// if SourceHints is set, the lower-cased source contains any hint
type KeywordRule struct {
	RuleName    string
	AttackType  models.AttackType
	Severity    models.Severity
	Notes       string
	Keywords    []string
	SourceHints []string
	Toggle      func(cfg models.DetectionConfig) bool
}

func (r *KeywordRule) Name() string {
	return r.RuleName
}

// IsActive reports whether the rule's config toggle allows it to run. Rules
// without a toggle are always active.
func (r *KeywordRule) IsActive(cfg models.DetectionConfig) bool {
	if r.Toggle == nil {
		return true
	}
	return r.Toggle(cfg)
}

func (r *KeywordRule) Evaluate(ev *models.RawEvidence) (models.Verdict, bool) {
	if len(r.SourceHints) > 0 && !containsAny(strings.ToLower(ev.Source), r.SourceHints) {
		return models.Verdict{}, false
	}
	if !containsAny(strings.ToLower(ev.Message), r.Keywords) {
		return models.Verdict{}, false
	}
	return models.Verdict{
		AttackType:   r.AttackType,
		Severity:     r.Severity,
		IsSuspicious: true,
		RuleName:     r.RuleName,
		Notes:        r.Notes,
	}, true
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

var httpSourceHints = []string{"http", "nginx", "apache"}

// DefaultRules returns the built-in rule set in priority order
func DefaultRules() []Rule {
	return []Rule{
		&KeywordRule{
			RuleName:   RuleBruteForce,
			AttackType: models.AttackBruteForce,
			Severity:   models.SeverityHigh,
			Notes:      "Repeated or suspicious authentication failures detected in auth logs.",
			Keywords:   []string{"failed password", "authentication failure", "invalid password"},
			Toggle:     func(cfg models.DetectionConfig) bool { return cfg.EnableBruteForce },
		},
		&KeywordRule{
			RuleName:   RuleAccountEnum,
			AttackType: models.AttackAccountEnum,
			Severity:   models.SeverityMedium,
			Notes:      "Login attempts against non-existent accounts may indicate enumeration.",
			Keywords:   []string{"user does not exist", "unknown user", "invalid username"},
		},
		&KeywordRule{
			RuleName:    RuleWebSensitivePath,
			AttackType:  models.AttackWebScanning,
			Severity:    models.SeverityMedium,
			Notes:       "Requests to sensitive or probing paths suggest web scanning.",
			Keywords:    []string{"/wp-admin", "/phpmyadmin", "/.git", "/.env", "/xmlrpc.php"},
			SourceHints: httpSourceHints,
			Toggle:      func(cfg models.DetectionConfig) bool { return cfg.EnableScanning },
		},
		&KeywordRule{
			RuleName:    RuleWebErrorNoise,
			AttackType:  models.AttackWebScanning,
			Severity:    models.SeverityLow,
			Notes:       "High volume of HTTP errors may be reconnaissance.",
			Keywords:    []string{" 404 ", " 400 ", " 401 "},
			SourceHints: httpSourceHints,
			Toggle:      func(cfg models.DetectionConfig) bool { return cfg.EnableScanning },
		},
		&KeywordRule{
			RuleName:   RulePrivEscalation,
			AttackType: models.AttackUnauthorizedAccess,
			Severity:   models.SeverityCritical,
			Notes:      "Potential unauthorized privileged access.",
			Keywords:   []string{"sudo:", "privilege escalation", "su: authentication succeeded"},
			Toggle:     func(cfg models.DetectionConfig) bool { return cfg.EnableUnauthorizedAccess },
		},
	}
}

var defaultRules = DefaultRules()

// Classify runs the default rules against ev
func Classify(ev *models.RawEvidence, cfg models.DetectionConfig) models.Verdict {
	return ClassifyWith(defaultRules, ev, cfg)
}

// ClassifyWith returns the verdict of the first active rule that matches, or
// an unknown, non-suspicious verdict
func ClassifyWith(rules []Rule, ev *models.RawEvidence, cfg models.DetectionConfig) models.Verdict {
	for _, rule := range rules {
		if !rule.IsActive(cfg) {
			continue
		}
		if v, ok := rule.Evaluate(ev); ok {
			return v
		}
	}
	return models.Verdict{
		AttackType:   models.AttackUnknown,
		Severity:     models.SeverityLow,
		IsSuspicious: false,
		RuleName:     RuleNoMatch,
		Notes:        "No detection rule matched; treated as benign/unknown.",
	}
}
