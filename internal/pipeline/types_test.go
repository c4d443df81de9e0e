package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskLevelBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0, "Low"},
		{2.99, "Low"},
		{3, "Medium"},
		{5.99, "Medium"},
		{6, "High"},
		{7.99, "High"},
		{8, "Critical"},
		{10, "Critical"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, RiskLevel(c.score), "score %v", c.score)
	}
}

func TestClampDreadBoundsToOneAndTen(t *testing.T) {
	assert.Equal(t, 1.0, clampDread(0))
	assert.Equal(t, 1.0, clampDread(-5))
	assert.Equal(t, 10.0, clampDread(11))
	assert.Equal(t, 5.5, clampDread(5.5))
}

func TestRound2RoundsToTwoDecimals(t *testing.T) {
	assert.Equal(t, 3.14, round2(3.14159))
	assert.Equal(t, 3.0, round2(3.0))
}

func TestRejectedErrorMessageIncludesReason(t *testing.T) {
	err := &RejectedError{Reason: "it's a photo, not a diagram"}
	assert.Contains(t, err.Error(), "it's a photo, not a diagram")
}
