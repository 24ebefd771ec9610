package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odo-protocol/odo-go/pkg/log"
)

func TestSessionStartsAtAppStart(t *testing.T) {
	s := NewSession(log.RoleDevice, nil)
	assert.Equal(t, StateAppStart, s.State())
	assert.NotEmpty(t, s.ID())
}

func TestSessionAdvancesForwardOnly(t *testing.T) {
	s := NewSession(log.RoleDevice, nil)

	order := []State{StateSetCredentials, StateSetHMAC, StateDone, StateComplete}
	for _, next := range order {
		require.NoError(t, s.advance(next, ""))
		assert.Equal(t, next, s.State())
	}

	// Terminal state has no successor.
	err := s.advance(StateAppStart, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateComplete, s.State())
}

func TestSessionRejectsSkippedStep(t *testing.T) {
	s := NewSession(log.RoleManufacturer, nil)

	err := s.advance(StateSetHMAC, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateAppStart, s.State(), "failed transition must not move state")

	err = s.advance(StateAppStart, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSessionZeroClearsSensitiveState(t *testing.T) {
	s := NewSession(log.RoleDevice, nil)
	s.hmacSecret = []byte{1, 2, 3}
	s.ownerHeader = []byte{4, 5, 6}

	s.Zero()
	assert.Nil(t, s.hmacSecret)
	assert.Nil(t, s.ownerHeader)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "APP_START", StateAppStart.String())
	assert.Equal(t, "SET_CREDENTIALS", StateSetCredentials.String())
	assert.Equal(t, "SET_HMAC", StateSetHMAC.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "COMPLETE", StateComplete.String())
}
