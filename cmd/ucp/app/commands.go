// Package app provides the entry point for the ucp command-line
// application: the cobra command tree wiring the Tool Zoo, Connection
// Pool, Router, Session Manager, Telemetry Store, and Gateway Server
// together from a single YAML configuration file.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ucp-project/ucp/internal/config"
	"github.com/ucp-project/ucp/internal/logging"
	"github.com/ucp-project/ucp/pkg/gateway"
	"github.com/ucp-project/ucp/pkg/pool"
	"github.com/ucp-project/ucp/pkg/router"
	"github.com/ucp-project/ucp/pkg/session"
	"github.com/ucp-project/ucp/pkg/telemetry"
	"github.com/ucp-project/ucp/pkg/ucp"
	"github.com/ucp-project/ucp/pkg/zoo"
)

var rootCmd = &cobra.Command{
	Use:               "ucp",
	DisableAutoGenTag: true,
	Short:             "Universal Context Protocol gateway",
	Long: `ucp is a tool-routing gateway that sits between an LLM client and many
downstream MCP tool servers. It indexes every downstream tool into a
searchable catalog, routes each request to a relevance-budgeted slate of
tools instead of flooding the model's context with all of them, and
records routing/tool-call/reward telemetry for online learning.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logging.Errorf("error displaying help: %v", err)
		}
	},
}

// NewRootCmd builds the ucp root command.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().StringP("config", "c", "ucp.yaml", "path to ucp configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logging.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInitConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func getVersion() string {
	return "dev"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logging.Infof("ucp version: %s", getVersion())
		},
	}
}

// loadAndValidateConfig loads the YAML config at path and validates it,
// returning an aggregated error on the first failure of either step.
func loadAndValidateConfig(path string) (*config.Config, error) {
	loader := config.NewYAMLLoader(path, logging.OSReader{})
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return cfg, nil
}

// deps is the full set of wired subsystems a running gateway needs.
// Commands that only need a subset (index, search, status) still build
// the whole thing: every subsystem here is cheap to construct.
// Construction opens the local sqlite databases and the telemetry
// directory; no downstream server is contacted until the pool connects.
type deps struct {
	cfg       *config.Config
	zoo       *zoo.Zoo
	pool      *pool.Pool
	rtr       *router.Router
	sessions  *session.Manager
	telemetry *telemetry.Store
}

func (d *deps) Close() {
	if d.rtr != nil {
		if err := d.rtr.Close(); err != nil {
			logging.Warnf("closing router: %v", err)
		}
	}
	if d.sessions != nil {
		if err := d.sessions.Close(); err != nil {
			logging.Warnf("closing session manager: %v", err)
		}
	}
	if d.telemetry != nil {
		if err := d.telemetry.Close(); err != nil {
			logging.Warnf("closing telemetry store: %v", err)
		}
	}
	if d.zoo != nil {
		if err := d.zoo.Close(); err != nil {
			logging.Warnf("closing tool zoo: %v", err)
		}
	}
}

// buildDeps wires every subsystem from cfg but does not connect the pool
// or index the zoo from live downstream servers — callers that need a
// live catalog call connectAndIndex afterward.
func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	embedDim := 384
	if cfg.ToolZoo.EmbeddingDim != nil {
		embedDim = *cfg.ToolZoo.EmbeddingDim
	}
	semW, keyW := 0.6, 0.4
	if cfg.ToolZoo.HybridSemanticW != nil {
		semW = *cfg.ToolZoo.HybridSemanticW
	}
	if cfg.ToolZoo.HybridKeywordW != nil {
		keyW = *cfg.ToolZoo.HybridKeywordW
	}
	minSim := 0.01
	if cfg.ToolZoo.MinSimilarity != nil {
		minSim = *cfg.ToolZoo.MinSimilarity
	}

	z, err := zoo.New(ctx, cfg.ToolZoo.DBPath,
		zoo.WithEmbedder(zoo.NewHashingEmbedder(embedDim)),
		zoo.WithHybridWeights(semW, keyW),
		zoo.WithMinSimilarity(minSim),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tool zoo: %w", err)
	}

	p := pool.New(cfg.ToServerDescriptors(), pool.DefaultConfig())

	sessionStore, err := buildSessionStore(cfg)
	if err != nil {
		z.Close() //nolint:errcheck
		return nil, err
	}
	recentToolsN := 10
	if cfg.Session.RecentToolsN != nil {
		recentToolsN = *cfg.Session.RecentToolsN
	}
	sessions := session.New(sessionStore, recentToolsN)

	retentionDays := 7
	if cfg.Telemetry.RetentionDays != nil {
		retentionDays = *cfg.Telemetry.RetentionDays
	}
	store, err := telemetry.New(cfg.Telemetry.JSONLDir, cfg.Telemetry.DBPath, retentionDays)
	if err != nil {
		sessions.Close()  //nolint:errcheck
		z.Close()         //nolint:errcheck
		return nil, fmt.Errorf("creating telemetry store: %w", err)
	}

	rtrCfg := routerConfigFromYAML(cfg)
	paramStore, err := router.NewSQLiteParamStore(cfg.ToolZoo.DBPath)
	if err != nil {
		store.Close()    //nolint:errcheck
		sessions.Close() //nolint:errcheck
		z.Close()        //nolint:errcheck
		return nil, fmt.Errorf("creating router parameter store: %w", err)
	}
	rtr, err := router.New(ctx, z, p, paramStore, rtrCfg)
	if err != nil {
		store.Close()    //nolint:errcheck
		sessions.Close() //nolint:errcheck
		z.Close()        //nolint:errcheck
		return nil, fmt.Errorf("creating router: %w", err)
	}

	return &deps{cfg: cfg, zoo: z, pool: p, rtr: rtr, sessions: sessions, telemetry: store}, nil
}

func buildSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Store {
	case "redis":
		return session.NewRedisStore(cfg.Session.RedisAddr), nil
	default:
		return session.NewSQLiteStore(cfg.Session.DBPath)
	}
}

func routerConfigFromYAML(cfg *config.Config) router.Config {
	rc := router.DefaultConfig()
	if v := cfg.Router.CandidatePoolSize; v != nil {
		rc.CandidatePoolSize = *v
	}
	if v := cfg.Router.MaxTools; v != nil {
		rc.MaxTools = *v
	}
	if v := cfg.Router.MinTools; v != nil {
		rc.MinTools = *v
	}
	if v := cfg.Router.MaxContextTokens; v != nil {
		rc.MaxContextTokens = *v
	}
	if v := cfg.Router.MaxPerServer; v != nil {
		rc.MaxPerServer = *v
	}
	if v := cfg.Router.ExplorationRate; v != nil {
		rc.ExplorationRate = *v
	}
	if cfg.Router.ExplorationType != "" {
		rc.ExplorationType = cfg.Router.ExplorationType
	}
	if len(cfg.Router.FallbackTools) > 0 {
		rc.FallbackTools = cfg.Router.FallbackTools
	}

	rc.BanditEnabled = cfg.Bandit.Enabled
	if v := cfg.Bandit.LearningRate; v != nil {
		rc.BanditLearningRate = *v
	}
	if v := cfg.Bandit.L2Reg; v != nil {
		rc.BanditL2Reg = *v
	}

	rc.BiasEnabled = cfg.BiasLearning.Enabled
	if v := cfg.BiasLearning.LearningRate; v != nil {
		rc.BiasLearningRate = *v
	}
	if v := cfg.BiasLearning.Decay; v != nil {
		rc.BiasDecay = *v
	}
	if v := cfg.BiasLearning.MaxBias; v != nil {
		rc.MaxBias = *v
	}
	return rc
}

// connectAndIndex connects the pool to every configured downstream
// server and (re)indexes the zoo from whatever tools each server
// reports, per server so one bad server doesn't blank out the rest of
// the catalog.
func connectAndIndex(ctx context.Context, d *deps) error {
	if err := d.pool.ConnectAll(ctx); err != nil {
		logging.Warnf("connecting downstream servers: %v", err)
	}

	tools := d.pool.ListTools()
	bySrv := map[string][]ucp.ToolSchema{}
	for _, t := range tools {
		bySrv[t.ServerName] = append(bySrv[t.ServerName], t)
	}
	for _, desc := range d.cfg.DownstreamServers {
		if err := d.zoo.IndexServer(ctx, desc.Name, bySrv[desc.Name]); err != nil {
			return fmt.Errorf("indexing server %s: %w", desc.Name, err)
		}
	}
	return nil
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Connect to every downstream server and rebuild the tool catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadAndValidateConfig(viper.GetString("config"))
			if err != nil {
				return err
			}
			d, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := connectAndIndex(ctx, d); err != nil {
				return err
			}
			defer func() {
				if err := d.pool.DisconnectAll(ctx); err != nil {
					logging.Warnf("disconnecting downstream servers: %v", err)
				}
			}()

			stats := d.zoo.Stats()
			logging.Infof("indexed %d tools across %d servers", stats.ToolCount, len(stats.PerServer))
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the tool catalog without routing a full request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadAndValidateConfig(viper.GetString("config"))
			if err != nil {
				return err
			}
			d, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			results, err := d.zoo.Search(ctx, args[0], topK, ucp.SearchHybrid)
			if err != nil {
				return fmt.Errorf("searching tool catalog: %w", err)
			}
			if len(results) == 0 {
				logging.Infof("no tools matched %q", args[0])
				return nil
			}
			for _, r := range results {
				logging.Infof("%-30s score=%.4f  %s", r.Tool.Name, r.Score, r.Tool.Description)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results to return")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect to every downstream server and print connection status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadAndValidateConfig(viper.GetString("config"))
			if err != nil {
				return err
			}
			d, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.pool.ConnectAll(ctx); err != nil {
				logging.Warnf("connecting downstream servers: %v", err)
			}
			defer func() {
				if err := d.pool.DisconnectAll(ctx); err != nil {
					logging.Warnf("disconnecting downstream servers: %v", err)
				}
			}()

			statuses := d.pool.Status()
			names := make([]string, 0, len(statuses))
			for name := range statuses {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				st := statuses[name]
				logging.Infof("%-20s state=%-12s breaker=%-10s tools=%d", name, st.State, st.Breaker, st.ToolCount)
			}
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a starter ucp configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := os.WriteFile(out, []byte(starterConfigYAML), 0o644); err != nil {
				return fmt.Errorf("writing starter configuration to %s: %w", out, err)
			}
			logging.Infof("wrote starter configuration to %s", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "ucp.yaml", "path to write the starter configuration to")
	return cmd
}

func newServeCmd() *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Start the gateway: connect to every configured downstream MCP server,
build the tool catalog, and begin serving MCP clients over HTTP (default)
or, with --stdio, over a single newline-delimited JSON-RPC stdio session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, stdio)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve a single client over stdio instead of HTTP")
	return cmd
}

func runServe(cmd *cobra.Command, stdio bool) error {
	ctx := cmd.Context()
	cfg, err := loadAndValidateConfig(viper.GetString("config"))
	if err != nil {
		return err
	}

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := connectAndIndex(ctx, d); err != nil {
		return err
	}
	defer func() {
		if err := d.pool.DisconnectAll(context.Background()); err != nil {
			logging.Warnf("disconnecting downstream servers: %v", err)
		}
	}()

	for name, st := range d.pool.Status() {
		d.telemetry.UpdateBreakerGauge(name, st.Breaker)
	}

	gwCfg := gateway.DefaultConfig()
	if cfg.Router.MaxTools != nil {
		gwCfg.MaxTools = *cfg.Router.MaxTools
	}
	if cfg.Router.MaxContextTokens != nil {
		gwCfg.MaxContextTokens = *cfg.Router.MaxContextTokens
	}
	gwCfg.Reward = routerConfigFromYAML(cfg).Reward

	gw := gateway.New(gwCfg, d.pool, d.rtr, d.zoo, d.sessions, d.telemetry)

	if stdio {
		logging.Infof("serving ucp over stdio")
		return gateway.ServeStdio(ctx, gw, os.Stdin, os.Stdout)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("serving ucp at %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("gateway http server: %w", err)
	}
}

const starterConfigYAML = `server:
  host: 127.0.0.1
  port: 4483

tool_zoo:
  db_path: ucp_zoo.db

router:
  max_tools: 10
  max_context_tokens: 4000
  exploration_type: epsilon_greedy

session:
  store: sqlite
  db_path: ucp_sessions.db

telemetry:
  jsonl_dir: ./telemetry
  db_path: ucp_telemetry.db
  retention_days: 7
  metrics_addr: ":9090"

bandit:
  enabled: true

bias_learning:
  enabled: true

downstream_servers: []
`
