// Package zoo is the Tool Zoo: a persistent vector+keyword index over
// every downstream tool schema, supporting semantic, keyword, and hybrid
// search.
package zoo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ucp-project/ucp/internal/logging"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// snapshot is an immutable view of the index. Reads take the current
// snapshot without locking; writes build a new one and swap it in,
// giving re-index callers "see pre-state or post-state, never a mix".
type snapshot struct {
	tools     map[string]indexedTool
	byServer  map[string][]string // server name -> tool names
	keyword   *keywordIndex
	indexedAt time.Time
}

func emptySnapshot() *snapshot {
	return &snapshot{
		tools:    map[string]indexedTool{},
		byServer: map[string][]string{},
		keyword:  newKeywordIndex(nil),
	}
}

// Zoo is the Tool Zoo.
type Zoo struct {
	store        *vectorStore
	embedder     Embedder
	current      atomic.Pointer[snapshot]
	hybridSemW   float64
	hybridKeyW   float64
	minSimilarity float64
}

// Option configures a Zoo at construction.
type Option func(*Zoo)

// WithEmbedder overrides the default HashingEmbedder.
func WithEmbedder(e Embedder) Option {
	return func(z *Zoo) { z.embedder = e }
}

// WithHybridWeights overrides the default 0.6/0.4 semantic/keyword mix.
func WithHybridWeights(semantic, keyword float64) Option {
	return func(z *Zoo) { z.hybridSemW, z.hybridKeyW = semantic, keyword }
}

// WithMinSimilarity overrides the near-zero match floor.
func WithMinSimilarity(min float64) Option {
	return func(z *Zoo) { z.minSimilarity = min }
}

// New opens (or creates) the sqlite-backed index at dbPath and loads any
// previously persisted tools into the initial snapshot.
func New(ctx context.Context, dbPath string, opts ...Option) (*Zoo, error) {
	store, err := openVectorStore(dbPath)
	if err != nil {
		return nil, err
	}

	z := &Zoo{
		store:         store,
		embedder:      NewHashingEmbedder(384),
		hybridSemW:    0.6,
		hybridKeyW:    0.4,
		minSimilarity: 0.01,
	}
	for _, opt := range opts {
		opt(z)
	}
	z.current.Store(emptySnapshot())

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 {
		z.current.Store(buildSnapshot(loaded, time.Now()))
	}
	return z, nil
}

// Close releases the underlying store handle.
func (z *Zoo) Close() error {
	return z.store.Close()
}

func buildSnapshot(tools []indexedTool, at time.Time) *snapshot {
	s := &snapshot{
		tools:    make(map[string]indexedTool, len(tools)),
		byServer: map[string][]string{},
	}
	for _, t := range tools {
		s.tools[t.schema.Name] = t
		s.byServer[t.schema.ServerName] = append(s.byServer[t.schema.ServerName], t.schema.Name)
	}
	s.keyword = newKeywordIndex(tools)
	s.indexedAt = at
	return s
}

// schemaTokenEstimate implements spec.md §4.1's
// `ceil(schema_serialized_bytes / 4)` token estimate.
func schemaTokenEstimate(t ucp.ToolSchema) int {
	b, err := json.Marshal(t)
	if err != nil {
		return 0
	}
	return int(math.Ceil(float64(len(b)) / 4.0))
}

// Index performs an atomic bulk replace of every tool in the Zoo.
func (z *Zoo) Index(ctx context.Context, tools []ucp.ToolSchema) error {
	indexed, err := z.embedAll(ctx, tools)
	if err != nil {
		return err
	}
	if err := z.store.ReplaceAll(ctx, indexed); err != nil {
		return err
	}
	z.current.Store(buildSnapshot(indexed, time.Now()))
	logging.Infof("zoo: indexed %d tools", len(tools))
	return nil
}

// IndexServer atomically replaces only serverName's tools, leaving every
// other server's vectors untouched.
func (z *Zoo) IndexServer(ctx context.Context, serverName string, tools []ucp.ToolSchema) error {
	indexed, err := z.embedAll(ctx, tools)
	if err != nil {
		return err
	}
	if err := z.store.ReplaceServer(ctx, serverName, indexed); err != nil {
		return err
	}

	cur := z.current.Load()
	merged := make([]indexedTool, 0, len(cur.tools))
	for name, t := range cur.tools {
		if t.schema.ServerName == serverName {
			continue
		}
		_ = name
		merged = append(merged, t)
	}
	merged = append(merged, indexed...)
	z.current.Store(buildSnapshot(merged, time.Now()))
	logging.Infof("zoo: re-indexed server %s with %d tools", serverName, len(tools))
	return nil
}

func (z *Zoo) embedAll(ctx context.Context, tools []ucp.ToolSchema) ([]indexedTool, error) {
	out := make([]indexedTool, 0, len(tools))
	for _, t := range tools {
		t.SchemaTokenEstimate = schemaTokenEstimate(t)
		vec, err := z.embedder.Embed(ctx, t.Name+" "+t.Description+" "+joinTags(t.Tags))
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", t.Name, err)
		}
		out = append(out, indexedTool{schema: t, vector: vec})
	}
	return out, nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// Get returns the ToolSchema for name, or false if not found.
func (z *Zoo) Get(name string) (ucp.ToolSchema, bool) {
	cur := z.current.Load()
	t, ok := cur.tools[name]
	return t.schema, ok
}

// Stats returns the current index summary.
func (z *Zoo) Stats() ucp.ZooStats {
	cur := z.current.Load()
	perServer := make(map[string]int, len(cur.byServer))
	for server, names := range cur.byServer {
		perServer[server] = len(names)
	}
	return ucp.ZooStats{
		ToolCount:     len(cur.tools),
		PerServer:     perServer,
		LastIndexTime: cur.indexedAt,
	}
}

// AllNames returns every tool name currently in the Zoo, for popularity
// fallback selection.
func (z *Zoo) AllNames() []string {
	cur := z.current.Load()
	names := make([]string, 0, len(cur.tools))
	for name := range cur.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search performs a search in the given mode, returning up to top_k
// results sorted by descending score with lexicographic tie-break. It
// never errors on an empty result; it returns an empty sequence.
func (z *Zoo) Search(ctx context.Context, query string, topK int, mode ucp.SearchMode) ([]ucp.ScoredTool, error) {
	cur := z.current.Load()
	if len(cur.tools) == 0 || topK <= 0 {
		return nil, nil
	}

	var scores map[string]float64
	switch mode {
	case ucp.SearchKeyword:
		scores = cur.keyword.score(query)
	case ucp.SearchSemantic:
		sem, err := z.semanticScores(ctx, cur, query)
		if err != nil {
			return nil, err
		}
		scores = sem
	case ucp.SearchHybrid:
		sem, err := z.semanticScores(ctx, cur, query)
		if err != nil {
			return nil, err
		}
		kw := cur.keyword.score(query)
		scores = blend(sem, kw, z.hybridSemW, z.hybridKeyW)
	default:
		return nil, fmt.Errorf("zoo: unknown search mode %q", mode)
	}

	return topKSorted(cur, scores, topK, z.minSimilarity), nil
}

func (z *Zoo) semanticScores(ctx context.Context, cur *snapshot, query string) (map[string]float64, error) {
	qVec, err := z.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("zoo: embedding query: %w", err)
	}
	out := make(map[string]float64, len(cur.tools))
	for name, t := range cur.tools {
		sim := cosineSimilarity(qVec, t.vector)
		out[name] = (sim + 1) / 2 // map cosine [-1,1] to [0,1]
	}
	return out, nil
}

func blend(semantic, keyword map[string]float64, semW, keyW float64) map[string]float64 {
	out := make(map[string]float64, len(semantic))
	for name, s := range semantic {
		out[name] = semW*s + keyW*keyword[name]
	}
	for name, k := range keyword {
		if _, ok := out[name]; !ok {
			out[name] = keyW * k
		}
	}
	return out
}

func topKSorted(cur *snapshot, scores map[string]float64, topK int, minSim float64) []ucp.ScoredTool {
	results := make([]ucp.ScoredTool, 0, len(scores))
	for name, score := range scores {
		if score < minSim {
			continue
		}
		t, ok := cur.tools[name]
		if !ok {
			continue
		}
		results = append(results, ucp.ScoredTool{Tool: t.schema, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Tool.Name < results[j].Tool.Name
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
