package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
)

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" LO ")
	assert.NoError(t, err)
	assert.Equal(t, TierLO, tier)

	_, err = ParseTier("xx")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestEdgeKindTiers(t *testing.T) {
	assert.Equal(t, TierAC, ACToLO.Source())
	assert.Equal(t, TierLO, ACToLO.Target())
	assert.Equal(t, TierLO, LOToRO.Source())
	assert.Equal(t, TierRO, LOToRO.Target())

	k, ok := KindInto(TierRO)
	assert.True(t, ok)
	assert.Equal(t, LOToRO, k)
	_, ok = KindInto(TierAC)
	assert.False(t, ok)
}

func TestScopeValidate(t *testing.T) {
	err := Scope{Subject: "math"}.Validate()
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "classname")

	assert.NoError(t, Scope{Subject: "math", Year: "2024", Quarter: "1", Class: "5"}.Validate())
}
