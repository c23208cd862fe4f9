package structured

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/finrouter/pkg/llm"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

type scriptedChat struct {
	replies []string
	err     error
	prompts []string
	opts    []llm.GenerateOptions
}

func (s *scriptedChat) Name() string { return "scripted" }

func (s *scriptedChat) Generate(_ context.Context, prompt string, opts llm.GenerateOptions) (*llm.GenerateResponse, error) {
	s.prompts = append(s.prompts, prompt)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &llm.GenerateResponse{Text: reply}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "financial.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE companies (id INTEGER PRIMARY KEY, name TEXT, sector TEXT, revenue REAL)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO companies (name, sector, revenue) VALUES
		('Acme', 'Technology', 1200.5),
		('Globex', 'Healthcare', 800),
		('Initech', 'Technology', 450)`).Error)
	return db
}

func TestCleanSQL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 1;", "SELECT 1"},
		{"  SELECT 1  ", "SELECT 1"},
		{"```sql\nSELECT name FROM companies;\n```", "SELECT name FROM companies"},
		{"```\nSELECT 1\n```\n", "SELECT 1"},
		{"SELECT 1;;", "SELECT 1"},
		{"```", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanSQL(tt.in), tt.in)
	}
}

func TestGormStoreSchemaAndExecute(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	schema, err := s.Schema(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(schema, "\nTable: companies\nColumns: "))
	assert.Contains(t, schema, "name (TEXT)")
	assert.Contains(t, schema, "revenue (REAL)")

	table, err := s.Execute(ctx, "SELECT name, revenue FROM companies ORDER BY revenue DESC LIMIT 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "revenue"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "Acme", table.Rows[0][0])

	out := table.String()
	assert.True(t, strings.HasPrefix(out, "name"))
	assert.Contains(t, out, "Globex")

	_, err = s.Execute(ctx, "SELECT nope FROM missing")
	assert.Error(t, err)
}

func TestHandlerNarratesRows(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		"```sql\nSELECT name, revenue FROM companies ORDER BY revenue DESC LIMIT 5;\n```",
		"Acme leads with 1200.5.",
	}}
	h := NewHandler(NewGormStore(newTestDB(t)), chat)

	r := h.Handle(context.Background(), "Show top 5 companies by revenue")
	require.NoError(t, r.Err)
	assert.Equal(t, "Acme leads with 1200.5.", r.Answer)
	assert.Equal(t, "SELECT name, revenue FROM companies ORDER BY revenue DESC LIMIT 5", r.Query)
	assert.Equal(t, 3, r.Table.Len())

	require.Len(t, chat.prompts, 2)
	assert.Contains(t, chat.prompts[0], "Table: companies")
	assert.Contains(t, chat.prompts[0], "User Question: Show top 5 companies by revenue")
	assert.Equal(t, 1024, chat.opts[0].MaxTokens)
	assert.Contains(t, chat.prompts[1], "Initech")
	assert.Equal(t, 2048, chat.opts[1].MaxTokens)
}

func TestHandlerNoRowsSkipsNarration(t *testing.T) {
	chat := &scriptedChat{replies: []string{"SELECT name FROM companies WHERE revenue > 1e9"}}
	h := NewHandler(NewGormStore(newTestDB(t)), chat)

	r := h.Handle(context.Background(), "Which companies earn over a billion?")
	require.NoError(t, r.Err)
	assert.Equal(t, NoResultsAnswer, r.Answer)
	assert.Len(t, chat.prompts, 1)
}

func TestHandlerExecutionFailure(t *testing.T) {
	chat := &scriptedChat{replies: []string{"SELECT missing_column FROM companies"}}
	h := NewHandler(NewGormStore(newTestDB(t)), chat)

	r := h.Handle(context.Background(), "q")
	require.Error(t, r.Err)
	assert.True(t, errors.Is(r.Err, apierrors.ErrQueryExecution))
	assert.True(t, strings.HasPrefix(r.Answer, "I encountered an error: "))
	assert.Equal(t, "SELECT missing_column FROM companies", r.Query)
	assert.Len(t, chat.prompts, 1)
}

func TestHandlerGenerationFailure(t *testing.T) {
	chat := &scriptedChat{err: llm.NewGatewayError("anthropic", "generate", errors.New("overloaded"))}
	h := NewHandler(NewGormStore(newTestDB(t)), chat)

	r := h.Handle(context.Background(), "q")
	assert.True(t, errors.Is(r.Err, apierrors.ErrGenerationFailure))
	assert.True(t, errors.Is(r.Err, llm.ErrGateway))
	assert.Contains(t, r.Answer, "overloaded")
	assert.Empty(t, r.Query)
}

type failingSchema struct{ Store }

func (failingSchema) Schema(context.Context) (string, error) { return "", errors.New("db down") }

func TestHandlerSchemaFailure(t *testing.T) {
	h := NewHandler(failingSchema{}, &scriptedChat{})
	r := h.Handle(context.Background(), "q")
	assert.True(t, errors.Is(r.Err, apierrors.ErrQueryExecution))
	assert.Contains(t, r.Answer, "db down")
}

// countingSchema 记录 Schema 调用次数。
type countingSchema struct {
	Store
	loads int
}

func (c *countingSchema) Schema(ctx context.Context) (string, error) {
	c.loads++
	return c.Store.Schema(ctx)
}

func TestHandlerSchemaCacheExpires(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := &countingSchema{Store: NewGormStore(db)}
	now := time.Unix(1000, 0)
	h := NewHandler(store, &scriptedChat{}).WithSchemaTTL(time.Minute)
	h.now = func() time.Time { return now }

	schema, err := h.Schema(ctx)
	require.NoError(t, err)
	assert.NotContains(t, schema, "Table: filings")
	_, _ = h.Schema(ctx)
	assert.Equal(t, 1, store.loads)

	require.NoError(t, db.Exec(`CREATE TABLE filings (id INTEGER PRIMARY KEY, company TEXT)`).Error)
	now = now.Add(2 * time.Minute)
	schema, err = h.Schema(ctx)
	require.NoError(t, err)
	assert.Contains(t, schema, "Table: filings")
	assert.Equal(t, 2, store.loads)
}

func TestHandlerExecutionFailureRefreshesSchema(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := &countingSchema{Store: NewGormStore(db)}
	chat := &scriptedChat{replies: []string{
		"SELECT company FROM filings",
		"SELECT company FROM filings",
		"Acme filed.",
	}}
	h := NewHandler(store, chat)

	r := h.Handle(ctx, "Which companies filed?")
	assert.True(t, errors.Is(r.Err, apierrors.ErrQueryExecution))

	require.NoError(t, db.Exec(`CREATE TABLE filings (id INTEGER PRIMARY KEY, company TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO filings (company) VALUES ('Acme')`).Error)

	r = h.Handle(ctx, "Which companies filed?")
	require.NoError(t, r.Err)
	assert.Equal(t, "Acme filed.", r.Answer)
	assert.Equal(t, 2, store.loads)
	assert.Contains(t, chat.prompts[1], "Table: filings")
}
