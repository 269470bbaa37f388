package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{
			name:      "production",
			cfg:       Config{},
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:      "debug",
			cfg:       Config{Debug: true},
			wantLevel: zapcore.DebugLevel,
		},
		{
			name:      "level override",
			cfg:       Config{Debug: true, Level: "warn"},
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:    "invalid level",
			cfg:     Config{Level: "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Initialize(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, Default())
			assert.True(t, Default().Core().Enabled(tt.wantLevel))
			assert.False(t, Default().Core().Enabled(tt.wantLevel-1))

			// helpers must not panic once initialized
			Info("info")
			Warn("warn")
			Debug("debug")
			Error(errors.New("boom"))
		})
	}
}
