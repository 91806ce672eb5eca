package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationResult_HasCritical(t *testing.T) {
	r := ValidationResult{Violations: []Violation{
		{Description: "style nit", Severity: SeverityMinor},
		{Description: "layer breach", Severity: SeverityMajor},
	}}
	assert.False(t, r.HasCritical())

	r.Violations = append(r.Violations, Violation{Description: "taint flow", Severity: SeverityCritical})
	assert.True(t, r.HasCritical())
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "minor", SeverityMinor.String())
	assert.Equal(t, "major", SeverityMajor.String())
	assert.Equal(t, "critical", SeverityCritical.String())
}
