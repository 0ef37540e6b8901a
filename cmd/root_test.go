package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"expire", "reconcile", "serve", "hosts", "user"}, names)

	user, _, err := root.Find([]string{"user", "add"})
	require.NoError(t, err)
	assert.Equal(t, "add", user.Name())
	assert.NotNil(t, user.Flags().Lookup("rounds"))
}

func TestRootCmd_ValidatesBeforeCallingAWS(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		args    []string
		wantErr []string
	}{
		{
			name:    "expire without bucket or zone",
			config:  "store: s3\n",
			args:    []string{"expire"},
			wantErr: []string{"bucket is required", "zone_id is required", "domain_root is required"},
		},
		{
			name:    "reconcile without policy",
			config:  "zone_id: Z1\ndomain_root: dyn.example.com\n",
			args:    []string{"reconcile", "--dry-run"},
			wantErr: []string{"policy_key is required"},
		},
		{
			name:    "unknown store",
			config:  "store: dynamo\n",
			args:    []string{"hosts"},
			wantErr: []string{`unknown store "dynamo"`},
		},
		{
			name:    "bad log level flag",
			config:  "bucket: b\n",
			args:    []string{"--log-level", "loud", "user", "list"},
			wantErr: []string{"setting up logging"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRootCmd()
			root.SetArgs(append([]string{"--config", writeConfig(t, tt.config)}, tt.args...))

			err := root.Execute()
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestSetup_FlagsOverrideConfig(t *testing.T) {
	a := &app{
		configPath: writeConfig(t, "log_level: error\nlog_format: json\nbucket: records\n"),
		logLevel:   "debug",
		logFormat:  "text",
	}
	require.NoError(t, a.setup())

	assert.Equal(t, "debug", a.cfg.LogLevel)
	assert.Equal(t, "text", a.cfg.LogFormat)
	assert.Equal(t, "records", a.cfg.Bucket)
	assert.NotNil(t, a.log)
}
