package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBuildsBothModes(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync() //nolint:errcheck // best-effort flush
		logger.Info("logger ready")
	}
}

func TestConfigStampsServiceField(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		cfg := config(development)
		require.Equal(t, Service, cfg.InitialFields["service"])
		require.Equal(t, "ts", cfg.EncoderConfig.TimeKey)
	}
}
