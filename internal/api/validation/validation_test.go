package validation_test

import (
	"strings"
	"testing"

	"github.com/oakpoint/schoolhub/internal/api/validation"
	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@school.edu",
		"teacher+math@sub.domain.org",
	}
	for _, email := range valid {
		assert.True(t, validation.IsValidEmail(email), email)
	}

	invalid := []string{
		"",
		"plainstring",
		"@nodomain.com",
		"user@",
		"user@nodot",
		"user with spaces@example.com",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, email := range invalid {
		assert.False(t, validation.IsValidEmail(email), email)
	}
}
