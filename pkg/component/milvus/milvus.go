// Package milvus is a thin wrapper over the Milvus v2 SDK for collections
// keyed by a caller-chosen VARCHAR id with a single float vector field.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/finrouter/pkg/options/milvus"
)

const (
	FieldID     = "id"
	FieldVector = "embedding"

	defaultIDLen = 256
)

// Client wraps *milvusclient.Client.
type Client struct {
	mc     *milvusclient.Client
	nlist  int
	nprobe string
}

// New dials Milvus using opts.Timeout as the connect deadline.
func New(opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	mc, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", opts.Address, err)
	}
	return &Client{mc: mc, nlist: opts.NList, nprobe: strconv.Itoa(opts.NProbe)}, nil
}

// Field describes a scalar column next to the id and vector.
type Field struct {
	Name   string
	Type   entity.FieldType
	MaxLen int
}

// Collection describes a collection to create.
type Collection struct {
	Name        string
	Description string
	Dim         int
	IDLen       int
	Fields      []Field
}

func (coll *Collection) schema() *entity.Schema {
	idLen := coll.IDLen
	if idLen <= 0 {
		idLen = defaultIDLen
	}

	s := entity.NewSchema().
		WithName(coll.Name).
		WithDescription(coll.Description).
		WithAutoID(false).
		WithField(entity.NewField().WithName(FieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(idLen)).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(coll.Dim)))

	for _, f := range coll.Fields {
		ef := entity.NewField().WithName(f.Name).WithDataType(f.Type)
		if f.Type == entity.FieldTypeVarChar {
			ef.WithMaxLength(int64(f.MaxLen))
		}
		s.WithField(ef)
	}
	return s
}

// Exists reports whether the named collection exists.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := c.mc.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("has collection %s: %w", name, err)
	}
	return ok, nil
}

// Create creates the collection, builds a cosine IVF_FLAT index on the
// vector field and loads it.
func (c *Client) Create(ctx context.Context, coll *Collection) error {
	if err := c.mc.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(coll.Name, coll.schema())); err != nil {
		return fmt.Errorf("create collection %s: %w", coll.Name, err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, c.nlist)
	idxTask, err := c.mc.CreateIndex(ctx, milvusclient.NewCreateIndexOption(coll.Name, FieldVector, idx))
	if err != nil {
		return fmt.Errorf("create index on %s: %w", coll.Name, err)
	}
	if err := idxTask.Await(ctx); err != nil {
		return fmt.Errorf("await index on %s: %w", coll.Name, err)
	}
	return c.Load(ctx, coll.Name)
}

// Load loads the collection (or alias) into query nodes and waits for it.
func (c *Client) Load(ctx context.Context, name string) error {
	task, err := c.mc.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("load collection %s: %w", name, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("await load of %s: %w", name, err)
	}
	return nil
}

// Resolve returns the collection behind name, which may be an alias or a
// collection. It returns "" when neither exists.
func (c *Client) Resolve(ctx context.Context, name string) (string, error) {
	ok, err := c.Exists(ctx, name)
	if err != nil || !ok {
		return "", err
	}
	coll, err := c.mc.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return "", fmt.Errorf("describe collection %s: %w", name, err)
	}
	return coll.Name, nil
}

// CreateAlias points a new alias at collection.
func (c *Client) CreateAlias(ctx context.Context, alias, collection string) error {
	if err := c.mc.CreateAlias(ctx, milvusclient.NewCreateAliasOption(collection, alias)); err != nil {
		return fmt.Errorf("create alias %s -> %s: %w", alias, collection, err)
	}
	return nil
}

// AlterAlias repoints an existing alias at collection.
func (c *Client) AlterAlias(ctx context.Context, alias, collection string) error {
	if err := c.mc.AlterAlias(ctx, milvusclient.NewAlterAliasOption(alias, collection)); err != nil {
		return fmt.Errorf("alter alias %s -> %s: %w", alias, collection, err)
	}
	return nil
}

// Describe returns the collection description.
func (c *Client) Describe(ctx context.Context, name string) (string, error) {
	coll, err := c.mc.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return "", fmt.Errorf("describe collection %s: %w", name, err)
	}
	if coll.Schema == nil {
		return "", nil
	}
	return coll.Schema.Description, nil
}

// Drop drops the collection.
func (c *Client) Drop(ctx context.Context, name string) error {
	if err := c.mc.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

// RowCount returns the row_count statistic.
func (c *Client) RowCount(ctx context.Context, name string) (int64, error) {
	stats, err := c.mc.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(name))
	if err != nil {
		return 0, fmt.Errorf("collection stats %s: %w", name, err)
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Rows is a column-oriented batch. Every slice must have len(IDs) entries.
type Rows struct {
	IDs      []string
	Vectors  [][]float32
	VarChars map[string][]string
	Int64s   map[string][]int64
}

// Len returns the number of rows.
func (r *Rows) Len() int { return len(r.IDs) }

func (r *Rows) columns() ([]column.Column, error) {
	n := r.Len()
	if len(r.Vectors) != n {
		return nil, fmt.Errorf("rows: %d ids but %d vectors", n, len(r.Vectors))
	}

	cols := []column.Column{
		column.NewColumnVarChar(FieldID, r.IDs),
		column.NewColumnFloatVector(FieldVector, len(r.Vectors[0]), r.Vectors),
	}
	for name, vals := range r.VarChars {
		if len(vals) != n {
			return nil, fmt.Errorf("rows: column %s has %d values, want %d", name, len(vals), n)
		}
		cols = append(cols, column.NewColumnVarChar(name, vals))
	}
	for name, vals := range r.Int64s {
		if len(vals) != n {
			return nil, fmt.Errorf("rows: column %s has %d values, want %d", name, len(vals), n)
		}
		cols = append(cols, column.NewColumnInt64(name, vals))
	}
	return cols, nil
}

// Insert writes rows and flushes so the next search sees them.
func (c *Client) Insert(ctx context.Context, name string, rows *Rows) (int64, error) {
	if rows == nil || rows.Len() == 0 {
		return 0, nil
	}
	cols, err := rows.columns()
	if err != nil {
		return 0, err
	}

	res, err := c.mc.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name, cols...))
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", name, err)
	}

	flush, err := c.mc.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return 0, fmt.Errorf("flush %s: %w", name, err)
	}
	if err := flush.Await(ctx); err != nil {
		return 0, fmt.Errorf("await flush of %s: %w", name, err)
	}
	return res.InsertCount, nil
}

// Hit is one search result. Fields holds the requested output columns,
// string for VARCHAR and int64 for INT64.
type Hit struct {
	ID     string
	Score  float32
	Fields map[string]any
}

// Search returns the topK nearest rows to vector. The collection must
// already be loaded.
func (c *Client) Search(ctx context.Context, name string, vector []float32, topK int, fields ...string) ([]Hit, error) {
	opt := milvusclient.NewSearchOption(name, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldVector).
		WithSearchParam("nprobe", c.nprobe).
		WithOutputFields(fields...)

	sets, err := c.mc.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	if len(sets) == 0 {
		return []Hit{}, nil
	}

	set := sets[0]
	ids, _ := set.IDs.(*column.ColumnVarChar)
	hits := make([]Hit, set.ResultCount)
	for i := range hits {
		hits[i] = Hit{Score: set.Scores[i], Fields: make(map[string]any, len(set.Fields))}
		if ids != nil {
			hits[i].ID = ids.Data()[i]
		}
		for _, col := range set.Fields {
			switch typed := col.(type) {
			case *column.ColumnVarChar:
				hits[i].Fields[typed.Name()] = typed.Data()[i]
			case *column.ColumnInt64:
				hits[i].Fields[typed.Name()] = typed.Data()[i]
			}
		}
	}
	return hits, nil
}

// Close releases the connection.
func (c *Client) Close(ctx context.Context) error {
	return c.mc.Close(ctx)
}
