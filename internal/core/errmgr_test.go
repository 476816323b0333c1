package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySentinels(t *testing.T) {
	tests := []struct {
		err error
		cat ErrorCategory
		sev Severity
	}{
		{fmt.Errorf("%w: bad params", ErrValidation), CategoryValidation, SeverityError},
		{fmt.Errorf("%w: %w: blocked", ErrSecurity, ErrValidation), CategorySecurity, SeverityCritical},
		{fmt.Errorf("%w: need pattern", ErrInference), CategoryValidation, SeverityWarning},
		{fmt.Errorf("%w: shell", ErrTimeout), CategoryTimeout, SeverityError},
		{fmt.Errorf("%w: cooling", ErrCircuitOpen), CategoryResource, SeverityWarning},
		{fmt.Errorf("%w: exit 1", ErrExecution), CategoryExecution, SeverityError},
	}
	for _, tt := range tests {
		cat, sev := Classify(tt.err)
		assert.Equal(t, tt.cat, cat, tt.err.Error())
		assert.Equal(t, tt.sev, sev, tt.err.Error())
	}
}

func TestClassifyHeuristics(t *testing.T) {
	tests := []struct {
		msg string
		cat ErrorCategory
	}{
		{"injection pattern detected", CategorySecurity},
		{"permission denied opening file", CategoryPermission},
		{"connection refused by host", CategoryNetwork},
		{"no space left on device", CategoryResource},
		{"config key missing", CategoryConfiguration},
		{"context deadline exceeded", CategoryTimeout},
		{"something odd happened", CategoryUnknown},
	}
	for _, tt := range tests {
		cat, _ := Classify(errors.New(tt.msg))
		assert.Equal(t, tt.cat, cat, tt.msg)
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityFatal.AtLeast(SeverityCritical))
	assert.True(t, SeverityCritical.AtLeast(SeverityError))
	assert.True(t, SeverityError.AtLeast(SeverityError))
	assert.False(t, SeverityWarning.AtLeast(SeverityError))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))
}

func TestRecordCountsAndMessages(t *testing.T) {
	m := NewErrorManager()

	rec := m.Record(fmt.Errorf("%w: shell after 30s", ErrTimeout), "shell", "subprocess", "req-1")
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, CategoryTimeout, rec.Category)
	assert.Equal(t, "shell", rec.Tool)
	assert.Contains(t, rec.TechnicalDetails, "30s")
	// The user message never carries technical detail.
	assert.NotContains(t, rec.UserMessage, "30s")
	assert.NotEmpty(t, rec.UserMessage)

	m.Record(fmt.Errorf("%w: bad", ErrValidation), "shell", "subprocess", "req-2")
	m.Record(fmt.Errorf("%w: bad again", ErrValidation), "shell", "subprocess", "req-3")

	counts := m.Counts()
	assert.Equal(t, 1, counts[CategoryTimeout])
	assert.Equal(t, 2, counts[CategoryValidation])
	assert.Equal(t, 3, m.Total())

	sev := m.SeverityCounts()
	assert.Equal(t, 3, sev[SeverityError])
}

func TestSummary(t *testing.T) {
	m := NewErrorManager()
	assert.Equal(t, "no errors recorded", m.Summary())

	m.Record(fmt.Errorf("%w: x", ErrValidation), "t", "r", "")
	out := m.Summary()
	assert.Contains(t, out, "1 error(s) recorded")
	assert.Contains(t, out, "validation")
}
