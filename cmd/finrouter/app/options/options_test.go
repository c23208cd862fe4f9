package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/finrouter/internal/finrouter"
	ragopts "github.com/kart-io/finrouter/pkg/options/rag"
)

func validOptions() *ServerOptions {
	o := NewServerOptions()
	o.ChatOptions.APIKey = "test-key"
	return o
}

func TestDefaultsValidate(t *testing.T) {
	o := validOptions()
	require.NoError(t, o.Complete())
	require.NoError(t, o.Validate())

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Equal(t, finrouter.ModeServe, cfg.Mode)
	assert.Same(t, o.RAGOptions, cfg.RAGOptions)
}

func TestValidateAggregatesErrors(t *testing.T) {
	o := validOptions()
	o.Mode = "batch"
	o.RAGOptions.TopK = 0
	o.ChatOptions.Model = ""

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode must be serve or chat")
	assert.Contains(t, err.Error(), "rag.top-k must be positive")
	assert.Contains(t, err.Error(), "chat.model is required")
}

func TestMilvusValidatedOnlyWhenSelected(t *testing.T) {
	o := validOptions()
	o.MilvusOptions.Address = ""
	require.NoError(t, o.Validate())

	o.RAGOptions.VectorStore = ragopts.StoreMilvus
	assert.Error(t, o.Validate())
}

func TestFlagsRegistered(t *testing.T) {
	fss := NewServerOptions().Flags()
	for _, name := range []string{
		"mode",
		"http.addr",
		"chat.model",
		"embedding.provider",
		"rag.documents-dir",
		"session.backend",
		"websearch.max-results",
		"db.driver",
	} {
		found := false
		for _, fs := range fss.FlagSets {
			if fs.Lookup(name) != nil {
				found = true
				break
			}
		}
		assert.True(t, found, name)
	}
}
