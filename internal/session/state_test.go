package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "live_detecting", StateLiveDetecting.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		to    State
		legal bool
	}{
		{"idle to active", StateIdle, StateActive, true},
		{"idle to live", StateIdle, StateLiveDetecting, false},
		{"idle to stopped", StateIdle, StateStopped, false},
		{"active to live", StateActive, StateLiveDetecting, true},
		{"active to stopped", StateActive, StateStopped, true},
		{"active to idle", StateActive, StateIdle, false},
		{"live to active", StateLiveDetecting, StateActive, true},
		{"live to stopped", StateLiveDetecting, StateStopped, true},
		{"live to idle", StateLiveDetecting, StateIdle, false},
		{"stopped to idle", StateStopped, StateIdle, true},
		{"stopped to active", StateStopped, StateActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.legal, tt.from.CanTransitionTo(tt.to))
		})
	}
}
