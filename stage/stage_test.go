package stage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultBuilders(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		status Status
		marker string
	}{
		{"success", Success(QBittorrent, "12345 -> 54321"), StatusSuccess, "✅"},
		{"skipped", Skipped(DockerEnv, "docker disabled"), StatusSkipped, "➖"},
		{"failed", Failed(Restart, errors.New("gluetun unhealthy")), StatusFailed, "❌"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.result.Status)
			assert.Equal(t, tt.marker, tt.result.Marker())
		})
	}

	assert.Equal(t, "gluetun unhealthy", Failed(Restart, errors.New("gluetun unhealthy")).Error)
	assert.Empty(t, Failed(Restart, nil).Error)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "portal login", Authentication.Label())
	assert.Equal(t, "restart docker containers", Restart.Label())
	assert.Equal(t, "custom", Name("custom").Label())
}
