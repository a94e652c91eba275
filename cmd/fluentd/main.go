// Command fluentd is the generic Fluent node host: it loads a node's
// configuration (spec.md §6) and assembles a small broadcast/echo node
// exercising every ambient collection kind, grounded on the teacher's
// cmd/cli/network.go (config-driven libp2p node bring-up) and
// cmd/synnergy/main.go (a flat cobra command tree over subsystem verbs).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fluent/collection"
	"fluent/config"
	"fluent/lineage"
	"fluent/node"
	"fluent/pipeline"
	"fluent/rule"
	"fluent/transport"
	"fluent/tuple"
)

func peerSchema() tuple.Schema {
	return tuple.NewSchema([]string{"addr"}, []tuple.ColumnType{tuple.Address})
}

func echoSchema() tuple.Schema {
	return tuple.NewSchema([]string{"addr", "line"}, []tuple.ColumnType{tuple.Address, tuple.String})
}

func stdoutSchema() tuple.Schema {
	return tuple.NewSchema([]string{"line"}, []tuple.ColumnType{tuple.String})
}

func main() {
	var configDir, env string

	root := &cobra.Command{Use: "fluentd", Short: "Fluent node host"}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory containing default.yaml")
	root.PersistentFlags().StringVar(&env, "env", "", "environment-specific config overlay (e.g. \"production\")")

	run := &cobra.Command{
		Use:   "run",
		Short: "assemble and run a node from configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir, env)
			if err != nil {
				return err
			}
			return runNode(cfg)
		},
	}

	nodeCmd := &cobra.Command{Use: "node", Short: "node introspection"}
	peers := &cobra.Command{
		Use:   "peers",
		Short: "list the peer addresses this node would broadcast to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir, env)
			if err != nil {
				return err
			}
			for _, addr := range cfg.Node.RemoteAddrs {
				fmt.Println(addr)
			}
			return nil
		},
	}
	nodeCmd.AddCommand(peers)
	root.AddCommand(run, nodeCmd)

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

// runNode assembles a broadcast/echo node: every line typed at its terminal
// is fanned out over a channel to every configured peer, and every line
// that arrives on that channel is printed. A line typed here is printed only
// if the transport delivers it back on the channel.
func runNode(cfg *config.Config) error {
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(lvl)
	}

	adapter, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("fluentd: %w", err)
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return fmt.Errorf("fluentd: %w", err)
	}

	peers, echo, out := peerSchema(), echoSchema(), stdoutSchema()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	seed := make([]tuple.Tuple, 0, len(cfg.Node.RemoteAddrs))
	for _, addr := range cfg.Node.RemoteAddrs {
		seed = append(seed, tuple.Tuple{addr})
	}

	n, err := node.NewBuilder(cfg.Node.Name, cfg.Node.ID, cfg.Node.ListenAddr, adapter, sink).
		Stdin().
		Stdout(os.Stdout).
		Table("peers", peers).
		Channel("echo", echo).
		WithStdinLines(lines).
		RegisterBootstrapRules(func(cols map[string]collection.Collection) []node.RuleSpec {
			return []node.RuleSpec{
				{Target: "peers", Mode: rule.Merge, Pipeline: pipeline.Iterable(peers, seed), Text: "peers <= consts"},
			}
		}).
		RegisterRules(func(cols map[string]collection.Collection) []node.RuleSpec {
			broadcast := pipeline.Map(
				pipeline.Cross(pipeline.FromCollection(cols["stdin"]), pipeline.FromCollection(cols["peers"])),
				echo,
				func(t tuple.Tuple) tuple.Tuple { return tuple.Tuple{t[1], t[0]} },
			)
			printReceived := pipeline.Map(pipeline.FromCollection(cols["echo"]), out, func(t tuple.Tuple) tuple.Tuple {
				return tuple.Tuple{fmt.Sprintf("[%s] %s", t[0], t[1])}
			})
			return []node.RuleSpec{
				{Target: "echo", Mode: rule.Merge, Pipeline: broadcast, Text: "echo <= cross(stdin, peers)"},
				{Target: "stdout", Mode: rule.Merge, Pipeline: printReceived, Text: "stdout <= map(echo, format_line)"},
			}
		}).
		Build()
	if err != nil {
		return fmt.Errorf("fluentd: build node: %w", err)
	}

	if ps, ok := adapter.(*transport.PubSubAdapter); ok {
		if err := ps.Subscribe("echo"); err != nil {
			return fmt.Errorf("fluentd: subscribe echo topic: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logrus.Infof("fluentd: node %q listening on %s", cfg.Node.Name, cfg.Node.ListenAddr)
	return n.Run(ctx)
}

func buildTransport(cfg *config.Config) (transport.Adapter, error) {
	dialTimeout := time.Duration(cfg.Node.DialTimeoutMS) * time.Millisecond
	switch cfg.Node.Transport {
	case "", "socket":
		return transport.NewSocketAdapter(cfg.Node.ListenAddr, dialTimeout)
	case "pubsub":
		return transport.NewPubSubAdapter(cfg.Node.ListenAddr, cfg.Node.DiscoveryTag)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Node.Transport)
	}
}

func buildSink(cfg *config.Config) (lineage.Sink, error) {
	switch cfg.Lineage.Driver {
	case "", "none":
		return lineage.NoopSink{}, nil
	case "postgres":
		pgCfg := lineage.PostgresConfig{
			Host: cfg.Lineage.Host, Port: cfg.Lineage.Port,
			User: cfg.Lineage.User, Password: cfg.Lineage.Password,
			Database: cfg.Lineage.Database, SSLMode: cfg.Lineage.SSLMode,
		}
		return lineage.NewPostgresSink(cfg.Node.Name, pgCfg, zap.NewNop())
	default:
		return nil, fmt.Errorf("unknown lineage driver %q", cfg.Lineage.Driver)
	}
}
