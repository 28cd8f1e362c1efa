package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllFields(t *testing.T) {
	cfg, err := Parse([]byte(`
listen_addr: "127.0.0.1:6000"
idle_timeout: "45s"
metrics_addr: ":9100"
audit_db: "/tmp/graphline.db"
`))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.ListenAddr)
	assert.Equal(t, 45*time.Second, cfg.IdleTimeout)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "/tmp/graphline.db", cfg.AuditDB)
}

func TestParse_EmptyFileYieldsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":50000", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
}

func TestParse_PartialFileKeepsOtherDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`idle_timeout: "2m"`))
	require.NoError(t, err)
	assert.Equal(t, ":50000", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.IdleTimeout)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.AuditDB)
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`listen_adr: ":1234"`))
	assert.Error(t, err, "typoed field names must be rejected")
}

func TestParse_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"bad listen addr":  `listen_addr: "no-port"`,
		"bad timeout unit": `idle_timeout: "45 parsecs"`,
		"bare number":      `idle_timeout: "45"`,
		"empty audit path": `audit_db: ""`,
		"wrong type":       `listen_addr: 50000`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":50001"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":50001", cfg.ListenAddr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
