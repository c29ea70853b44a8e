// Package router is the Router: the candidate retrieval → rerank →
// budgeted slate → exploration pipeline of spec.md §4.2, with online
// bandit and per-tool bias learning fed by RecordReward.
package router

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ucp-project/ucp/internal/logging"
	"github.com/ucp-project/ucp/pkg/session"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// ToolSearcher is the Tool Zoo surface the Router depends on.
type ToolSearcher interface {
	Search(ctx context.Context, query string, topK int, mode ucp.SearchMode) ([]ucp.ScoredTool, error)
	Get(name string) (ucp.ToolSchema, bool)
	AllNames() []string
}

// ServerStatusSource is the Connection Pool surface the Router consults
// for the bandit's server-load and breaker-state features.
type ServerStatusSource interface {
	Status() map[string]ucp.ConnectionStatus
}

// Config is the Router's tunable parameters, sourced from the `router`,
// `bandit`, and `bias_learning` YAML sections.
type Config struct {
	CandidatePoolSize int
	MaxTools          int
	MinTools          int
	MaxContextTokens  int
	MaxPerServer      int
	ExplorationRate   float64
	ExplorationType   string // "epsilon_greedy" | "thompson" | "none"
	FallbackTools     []string

	BanditEnabled      bool
	BanditLearningRate float64
	BanditL2Reg        float64

	BiasEnabled      bool
	BiasLearningRate float64
	BiasDecay        float64
	MaxBias          float64

	Reward RewardConfig
}

// DefaultConfig holds the Router's built-in defaults. The numeric values
// match internal/config's defaults; BanditEnabled and BiasEnabled are true
// here, while internal/config leaves bandit.enabled and
// bias_learning.enabled false when the YAML omits them.
func DefaultConfig() Config {
	return Config{
		CandidatePoolSize:  50,
		MaxTools:           10,
		MinTools:           1,
		MaxContextTokens:   4000,
		MaxPerServer:       3,
		ExplorationRate:    0.05,
		ExplorationType:    "epsilon_greedy",
		BanditEnabled:      true,
		BanditLearningRate: 0.01,
		BanditL2Reg:        0.001,
		BiasEnabled:        true,
		BiasLearningRate:   0.05,
		BiasDecay:          0.01,
		MaxBias:            0.3,
		Reward:             DefaultRewardConfig(),
	}
}

const thompsonSigma = 0.05

type rewardUpdate struct {
	toolName string
	reward   float64
	features []float64
}

// Router is the Router component.
type Router struct {
	cfg          Config
	zoo          ToolSearcher
	statusSource ServerStatusSource
	params       ParamStore

	weights atomic.Pointer[[]float64]
	bias    atomic.Pointer[map[string]float64]

	lastFeatures sync.Map // tool name -> []float64

	updates chan rewardUpdate
	wg      sync.WaitGroup
}

// New constructs a Router. statusSource may be nil (server-load/breaker
// features then default to zero).
func New(ctx context.Context, zoo ToolSearcher, statusSource ServerStatusSource, params ParamStore, cfg Config) (*Router, error) {
	r := &Router{cfg: cfg, zoo: zoo, statusSource: statusSource, params: params}

	weights, err := params.LoadBanditWeights(ctx)
	if err != nil {
		return nil, err
	}
	if len(weights) != featureDim {
		weights = make([]float64, featureDim)
	}
	r.weights.Store(&weights)

	bias, err := params.LoadAllBias(ctx)
	if err != nil {
		return nil, err
	}
	if bias == nil {
		bias = map[string]float64{}
	}
	r.bias.Store(&bias)

	r.updates = make(chan rewardUpdate, 256)
	r.wg.Add(1)
	go r.runWriter()

	return r, nil
}

// Close stops the single-writer update lane and releases the param store.
func (r *Router) Close() error {
	close(r.updates)
	r.wg.Wait()
	return r.params.Close()
}

func (r *Router) runWriter() {
	defer r.wg.Done()
	ctx := context.Background()
	for u := range r.updates {
		if r.cfg.BiasEnabled {
			cur := *r.bias.Load()
			next := updateBias(cur, u.toolName, u.reward, r.cfg.BiasLearningRate, r.cfg.BiasDecay, r.cfg.MaxBias)
			r.bias.Store(&next)
			if err := r.params.SaveBias(ctx, u.toolName, next[u.toolName]); err != nil {
				logging.Errorf("router: persisting tool bias for %s: %v", u.toolName, err)
			}
		}
		if r.cfg.BanditEnabled && len(u.features) > 0 {
			cur := *r.weights.Load()
			next := sgdStep(cur, u.features, u.reward, r.cfg.BanditLearningRate, r.cfg.BanditL2Reg)
			r.weights.Store(&next)
			if err := r.params.SaveBanditWeights(ctx, next); err != nil {
				logging.Errorf("router: persisting bandit weights: %v", err)
			}
		}
	}
}

// BiasSnapshot returns a read-only copy of the current per-tool bias map,
// for operator introspection. The Gateway's /status endpoint does not
// include it.
func (r *Router) BiasSnapshot() map[string]float64 {
	cur := *r.bias.Load()
	out := make(map[string]float64, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// WeightsSnapshot returns a read-only copy of the current bandit weight
// vector.
func (r *Router) WeightsSnapshot() []float64 {
	cur := *r.weights.Load()
	out := make([]float64, len(cur))
	copy(out, cur)
	return out
}

// RecordReward enqueues one reward observation for the single-writer
// update lane. It never blocks the caller on persistence.
func (r *Router) RecordReward(toolName string, reward float64) {
	var features []float64
	if v, ok := r.lastFeatures.Load(toolName); ok {
		features = v.([]float64)
	}
	select {
	case r.updates <- rewardUpdate{toolName: toolName, reward: reward, features: features}:
	default:
		logging.Warnf("router: reward update lane full, dropping update for %s", toolName)
	}
}

type scoredCandidate struct {
	tool     ucp.ToolSchema
	rerank   float64
	sortKey  float64
	features []float64
}

// Route implements spec.md §4.2's pipeline. It never raises: internal
// failures are caught and fall through the chain described in the spec,
// surfacing only as a Warning on the returned decision.
func (r *Router) Route(ctx context.Context, query string, sess *ucp.SessionState, maxTools, maxContextTokens int) *ucp.RoutingDecision {
	start := time.Now()

	if maxTools < 0 {
		maxTools = r.cfg.MaxTools
	}
	if maxContextTokens < 0 {
		maxContextTokens = r.cfg.MaxContextTokens
	}
	minTools := r.cfg.MinTools
	if minTools > maxTools {
		minTools = maxTools
	}

	candidates, strategy, warning := r.retrieveCandidates(ctx, query, maxTools)

	domain := classifyDomain(query)
	recentDecay := map[string]float64{}
	if sess != nil {
		recentDecay = session.RecentToolDecay(sess)
	}
	weights := *r.weights.Load()
	bias := *r.bias.Load()

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		features := r.featureVector(c, domain, recentDecay)
		r.lastFeatures.Store(c.Tool.Name, features)

		tm := tagMatch(domain, c.Tool.Tags)
		dm := domainMatch(domain, c.Tool.Tags, c.Tool.Description, c.Tool.Name)
		rc := recentDecay[c.Tool.Name]
		bs := 0.0
		if r.cfg.BanditEnabled {
			bs = banditScore(weights, features)
		}
		tb := bias[c.Tool.Name]

		rerank := c.Score + 0.15*tm + 0.10*dm + 0.08*rc + bs + tb
		sortKey := rerank
		if r.cfg.ExplorationType == "thompson" {
			sortKey = rerank + rand.NormFloat64()*thompsonSigma
		}

		scored = append(scored, scoredCandidate{tool: c.Tool, rerank: rerank, sortKey: sortKey, features: features})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].sortKey != scored[j].sortKey {
			return scored[i].sortKey > scored[j].sortKey
		}
		return scored[i].tool.Name < scored[j].tool.Name
	})

	selected, scores := buildSlate(scored, maxTools, minTools, maxContextTokens, r.cfg.MaxPerServer)

	explorationTriggered := false
	if r.cfg.ExplorationType == "thompson" && len(scored) > 0 {
		explorationTriggered = true
	}
	if r.cfg.ExplorationType == "epsilon_greedy" && len(selected) > 0 && rand.Float64() < r.cfg.ExplorationRate {
		if swapped, ok := randomUnchosen(scored, selected); ok {
			delete(scores, selected[len(selected)-1])
			selected[len(selected)-1] = swapped.tool.Name
			scores[swapped.tool.Name] = swapped.rerank
			explorationTriggered = true
		}
	}

	return &ucp.RoutingDecision{
		Selected:             selected,
		Scores:               scores,
		StrategyUsed:         strategy,
		ExplorationTriggered: explorationTriggered,
		SelectionTimeMs:      float64(time.Since(start).Microseconds()) / 1000.0,
		CandidateCount:       len(candidates),
		Warning:              warning,
	}
}

// retrieveCandidates implements the fallback chain: semantic/hybrid ->
// keyword -> configured fallback tools -> highest-ranked-by-popularity
// (approximated here by zoo.AllNames order, since a dedicated popularity
// ranking is outside this component's ownership).
func (r *Router) retrieveCandidates(ctx context.Context, query string, maxTools int) ([]ucp.ScoredTool, string, string) {
	poolSize := max(r.cfg.CandidatePoolSize, 4*max(maxTools, 1))

	if query == "" {
		return r.fallbackCandidates(maxTools, "router: empty query, using fallback tools")
	}

	candidates, err := r.zoo.Search(ctx, query, poolSize, ucp.SearchHybrid)
	if err == nil && len(candidates) > 0 {
		return candidates, "hybrid", ""
	}

	candidates, err = r.zoo.Search(ctx, query, poolSize, ucp.SearchKeyword)
	if err == nil && len(candidates) > 0 {
		return candidates, "keyword", ""
	}

	return r.fallbackCandidates(maxTools, "router: candidate retrieval exhausted, using fallback tools")
}

func (r *Router) fallbackCandidates(maxTools int, warning string) ([]ucp.ScoredTool, string, string) {
	if len(r.cfg.FallbackTools) > 0 {
		out := make([]ucp.ScoredTool, 0, len(r.cfg.FallbackTools))
		for _, name := range r.cfg.FallbackTools {
			if t, ok := r.zoo.Get(name); ok {
				out = append(out, ucp.ScoredTool{Tool: t, Score: 0})
			}
		}
		if len(out) > 0 {
			return out, "fallback_configured", warning
		}
	}

	names := r.zoo.AllNames()
	if len(names) > maxTools && maxTools > 0 {
		names = names[:maxTools]
	}
	out := make([]ucp.ScoredTool, 0, len(names))
	for _, name := range names {
		if t, ok := r.zoo.Get(name); ok {
			out = append(out, ucp.ScoredTool{Tool: t, Score: 0})
		}
	}
	return out, "all_tools", warning
}

func (r *Router) featureVector(c ucp.ScoredTool, domain string, recentDecay map[string]float64) []float64 {
	serverLoad, breakerFeature := 0.0, 0.0
	if r.statusSource != nil {
		if st, ok := r.statusSource.Status()[c.Tool.ServerName]; ok {
			serverLoad = min(float64(st.ToolCount)/10.0, 1.0)
			switch st.Breaker {
			case ucp.BreakerHalfOpen:
				breakerFeature = 0.5
			case ucp.BreakerOpen:
				breakerFeature = 1.0
			}
		}
	}
	return []float64{
		clamp01(c.Score),
		tagMatch(domain, c.Tool.Tags),
		recentDecay[c.Tool.Name],
		domainMatch(domain, c.Tool.Tags, c.Tool.Description, c.Tool.Name),
		serverLoad,
		breakerFeature,
		1.0, // intercept
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// buildSlate is the greedy budgeted selection of spec.md §4.2 step 3.
func buildSlate(scored []scoredCandidate, maxTools, minTools, maxContextTokens, maxPerServer int) ([]string, map[string]float64) {
	selected := make([]string, 0, maxTools)
	scores := map[string]float64{}
	chosen := map[string]bool{}
	perServer := map[string]int{}
	tokenSum := 0

	for _, c := range scored {
		if len(selected) >= maxTools {
			break
		}
		if tokenSum+c.tool.SchemaTokenEstimate > maxContextTokens {
			continue
		}
		if perServer[c.tool.ServerName] >= maxPerServer {
			continue
		}
		selected = append(selected, c.tool.Name)
		chosen[c.tool.Name] = true
		scores[c.tool.Name] = c.rerank
		perServer[c.tool.ServerName]++
		tokenSum += c.tool.SchemaTokenEstimate
	}

	if len(selected) < minTools {
		for _, c := range scored {
			if len(selected) >= minTools || len(selected) >= maxTools {
				break
			}
			if chosen[c.tool.Name] {
				continue
			}
			selected = append(selected, c.tool.Name)
			chosen[c.tool.Name] = true
			scores[c.tool.Name] = c.rerank
		}
	}

	return selected, scores
}

func randomUnchosen(scored []scoredCandidate, selected []string) (scoredCandidate, bool) {
	chosen := make(map[string]bool, len(selected))
	for _, s := range selected {
		chosen[s] = true
	}
	var unchosen []scoredCandidate
	for _, c := range scored {
		if !chosen[c.tool.Name] {
			unchosen = append(unchosen, c)
		}
	}
	if len(unchosen) == 0 {
		return scoredCandidate{}, false
	}
	return unchosen[rand.Intn(len(unchosen))], true
}
