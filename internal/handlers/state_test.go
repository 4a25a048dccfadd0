package handlers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MegaGrindStone/llama-web-ui/internal/handlers"
)

func TestPhaseNext(t *testing.T) {
	tests := []struct {
		from    handlers.Phase
		to      handlers.Phase
		wantErr bool
	}{
		{from: handlers.PhaseIdle, to: handlers.PhaseAwaitingResponse},
		{from: handlers.PhaseDone, to: handlers.PhaseAwaitingResponse},
		{from: handlers.PhaseFailed, to: handlers.PhaseAwaitingResponse},
		{from: handlers.PhaseAwaitingResponse, to: handlers.PhaseStreaming},
		{from: handlers.PhaseAwaitingResponse, to: handlers.PhaseFailed},
		{from: handlers.PhaseStreaming, to: handlers.PhaseStreaming},
		{from: handlers.PhaseStreaming, to: handlers.PhaseDone},
		{from: handlers.PhaseStreaming, to: handlers.PhaseFailed},

		{from: handlers.PhaseIdle, to: handlers.PhaseStreaming, wantErr: true},
		{from: handlers.PhaseIdle, to: handlers.PhaseDone, wantErr: true},
		{from: handlers.PhaseAwaitingResponse, to: handlers.PhaseAwaitingResponse, wantErr: true},
		{from: handlers.PhaseAwaitingResponse, to: handlers.PhaseDone, wantErr: true},
		{from: handlers.PhaseStreaming, to: handlers.PhaseAwaitingResponse, wantErr: true},
		{from: handlers.PhaseDone, to: handlers.PhaseStreaming, wantErr: true},
		{from: handlers.PhaseFailed, to: handlers.PhaseDone, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := tt.from.Next(tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, handlers.ErrInvalidTransition)
				assert.Equal(t, tt.from, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}

func TestPhaseLoading(t *testing.T) {
	loading := map[handlers.Phase]bool{
		handlers.PhaseIdle:             false,
		handlers.PhaseAwaitingResponse: true,
		handlers.PhaseStreaming:        true,
		handlers.PhaseDone:             false,
		handlers.PhaseFailed:           false,
	}
	for phase, want := range loading {
		assert.Equal(t, want, phase.Loading(), phase)
	}
}
