package redis

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/finrouter/pkg/utils/json"
)

func TestOptionsJSONMarshal_PasswordRedacted(t *testing.T) {
	opts := &Options{Host: "localhost", Port: 6379, Password: "supersecret"}

	data, err := json.Marshal(opts)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "supersecret")
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestOptionsJSONMarshal_EmptyPassword(t *testing.T) {
	opts := &Options{Host: "localhost", Port: 6379}

	data, err := json.Marshal(opts)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "[REDACTED]")
	assert.Contains(t, string(data), `"password":""`)
}

func TestOptionsString_PasswordRedacted(t *testing.T) {
	opts := &Options{Host: "localhost", Port: 6379, Password: "supersecret"}

	s := opts.String()
	assert.NotContains(t, s, "supersecret")
	assert.Contains(t, s, "[REDACTED]")
}

func TestOptionsValidate(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "from-env")

	opts := NewOptions()
	assert.Empty(t, opts.Validate())
	assert.Equal(t, "from-env", opts.Password)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr())

	opts.Port = 0
	assert.Len(t, opts.Validate(), 1)
}

func TestAddFlagsWithPrefix(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs, "session")

	require.NoError(t, fs.Parse([]string{"--session.redis.host=cache", "--session.redis.port=6380"}))
	assert.Equal(t, "cache:6380", opts.Addr())
}
