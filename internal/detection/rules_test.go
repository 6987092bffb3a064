package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
)

func TestClassify(t *testing.T) {
	cfg := models.DefaultDetectionConfig()

	tests := []struct {
		name     string
		source   string
		message  string
		attack   models.AttackType
		severity models.Severity
		rule     string
	}{
		{"brute force over invalid user", "sshd", "Failed password for invalid user admin from 10.0.0.5", models.AttackBruteForce, models.SeverityHigh, RuleBruteForce},
		{"ssh brute force", "sshd", "Failed password for root from 10.0.0.1 port 22", models.AttackBruteForce, models.SeverityHigh, RuleBruteForce},
		{"pam failure upper case", "auth", "PAM: Authentication Failure for bob", models.AttackBruteForce, models.SeverityHigh, RuleBruteForce},
		{"account enumeration", "sshd", "Invalid username admin from 10.0.0.2", models.AttackAccountEnum, models.SeverityMedium, RuleAccountEnum},
		{"sensitive path on nginx", "nginx-access", "GET /wp-admin/setup.php HTTP/1.1", models.AttackWebScanning, models.SeverityMedium, RuleWebSensitivePath},
		{"error noise on apache", "Apache", "GET /missing HTTP/1.1 404 512", models.AttackWebScanning, models.SeverityLow, RuleWebErrorNoise},
		{"sensitive path outranks error code", "http", "GET /.env HTTP/1.1 404 0", models.AttackWebScanning, models.SeverityMedium, RuleWebSensitivePath},
		{"web path on non-http source", "sshd", "GET /wp-admin 404 ", models.AttackUnknown, models.SeverityLow, RuleNoMatch},
		{"privilege escalation", "auth", "sudo: bob : TTY=pts/0 ; COMMAND=/bin/sh", models.AttackUnauthorizedAccess, models.SeverityCritical, RulePrivEscalation},
		{"no match", "app", "user logged in successfully", models.AttackUnknown, models.SeverityLow, RuleNoMatch},
		{"first match wins", "sshd", "failed password then sudo: escalation", models.AttackBruteForce, models.SeverityHigh, RuleBruteForce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(&models.RawEvidence{Source: tt.source, Message: tt.message}, cfg)
			assert.Equal(t, tt.attack, v.AttackType)
			assert.Equal(t, tt.severity, v.Severity)
			assert.Equal(t, tt.rule, v.RuleName)
			assert.Equal(t, tt.attack != models.AttackUnknown, v.IsSuspicious)
		})
	}
}

func TestClassifyHonorsToggles(t *testing.T) {
	cfg := models.DefaultDetectionConfig()
	cfg.EnableBruteForce = false

	// brute force disabled falls through to the next matching rule
	v := Classify(&models.RawEvidence{Source: "sshd", Message: "Failed password for unknown user bob"}, cfg)
	assert.Equal(t, models.AttackAccountEnum, v.AttackType)

	v = Classify(&models.RawEvidence{Source: "sshd", Message: "Failed password for root"}, cfg)
	assert.Equal(t, RuleNoMatch, v.RuleName)
	assert.False(t, v.IsSuspicious)

	cfg = models.DefaultDetectionConfig()
	cfg.EnableScanning = false
	v = Classify(&models.RawEvidence{Source: "nginx", Message: "GET /phpmyadmin 404 "}, cfg)
	assert.Equal(t, RuleNoMatch, v.RuleName)

	cfg = models.DefaultDetectionConfig()
	cfg.EnableUnauthorizedAccess = false
	v = Classify(&models.RawEvidence{Source: "auth", Message: "possible privilege escalation"}, cfg)
	assert.Equal(t, RuleNoMatch, v.RuleName)

	// account enumeration has no toggle
	cfg = models.DetectionConfig{}
	v = Classify(&models.RawEvidence{Source: "sshd", Message: "user does not exist"}, cfg)
	assert.Equal(t, RuleAccountEnum, v.RuleName)
}

func TestClassifyIsDeterministic(t *testing.T) {
	ev := &models.RawEvidence{Source: "nginx", Message: "GET /xmlrpc.php"}
	cfg := models.DefaultDetectionConfig()
	assert.Equal(t, Classify(ev, cfg), Classify(ev, cfg))
}
