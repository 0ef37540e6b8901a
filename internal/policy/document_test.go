package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePolicy = `
# office access
{
  "security_groups": {
    "web": {"ports": [{"port": 443}, {"port": 8000, "last_port": 8010, "ip_protocol": "UDP"}]},  # public
    "ssh": {}
  },
  "hosts": [
    {"host": "alice*", "groups": ["web", "ssh"]},
    {"ip": "203.0.113.0/24", "groups": ["web"]}
  ]
}
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(samplePolicy))
	require.NoError(t, err)

	require.Len(t, doc.SecurityGroups, 2)
	web := doc.SecurityGroups["web"]
	require.Len(t, web.Ports, 2)
	assert.Equal(t, PortRange{Begin: 443, End: 443, Protocol: "tcp"}, web.Ports[0].Range())
	assert.Equal(t, PortRange{Begin: 8000, End: 8010, Protocol: "udp"}, web.Ports[1].Range())
	assert.Empty(t, doc.SecurityGroups["ssh"].Ports)

	assert.Equal(t, []HostRule{
		{Host: "alice*", Groups: []string{"web", "ssh"}},
		{IP: "203.0.113.0/24", Groups: []string{"web"}},
	}, doc.Hosts)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"security_groups": `))
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	_, err = Parse([]byte(`{"hosts": []}`))
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestStripComments(t *testing.T) {
	got := StripComments([]byte("{ # a\n\"x\": 1 #b\n}"))
	assert.Equal(t, "{ \n\"x\": 1 \n}", string(got))
}

func TestHostRuleValidate(t *testing.T) {
	assert.NoError(t, HostRule{Host: "a", Groups: []string{"g"}}.Validate())
	assert.NoError(t, HostRule{IP: "1.2.3.4", Groups: []string{"g"}}.Validate())
	assert.Error(t, HostRule{Groups: []string{"g"}}.Validate())
	assert.Error(t, HostRule{Host: "a"}.Validate())
}

type mockGetter struct {
	getFunc func(ctx context.Context, bucket, key string) ([]byte, error)
}

func (m *mockGetter) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	return m.getFunc(ctx, bucket, key)
}

func TestNewSource(t *testing.T) {
	getter := &mockGetter{getFunc: func(ctx context.Context, bucket, key string) ([]byte, error) {
		assert.Equal(t, "conf-bucket", bucket)
		assert.Equal(t, "dynips/sgs.json", key)
		return []byte(samplePolicy), nil
	}}

	src, err := NewSource("conf-bucket/dynips/sgs.json", getter)
	require.NoError(t, err)
	doc, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, doc.Hosts, 2)

	_, err = NewSource("no-key", getter)
	assert.Error(t, err)
	_, err = NewSource("bucket/key", nil)
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sgs.json")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o600))

	src, err := NewSource("file:"+path, nil)
	require.NoError(t, err)
	doc, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, doc.SecurityGroups, "ssh")

	_, err = Load(context.Background(), FileSource(filepath.Join(t.TempDir(), "missing.json")))
	assert.Error(t, err)
}
