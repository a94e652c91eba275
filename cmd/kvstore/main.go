// Command kvstore runs a single Fluent node implementing a distributed
// key-value store, ported from
// _examples/original_source/src/black_boxes/key_value_server.cc: four
// channels (set_request, set_response, get_request, get_response) and a
// table kvs(key, value) wired together with rules instead of the original's
// side-channel std::map mutation.
package main

import (
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
	"fluent/lineage"
	"fluent/node"
	"fluent/pipeline"
	"fluent/rule"
	"fluent/transport"
	"fluent/tuple"
)

func setRequestSchema() tuple.Schema {
	return tuple.NewSchema(
		[]string{"dst_addr", "src_addr", "id", "key", "value"},
		[]tuple.ColumnType{tuple.Address, tuple.Address, tuple.Int64, tuple.String, tuple.String},
	)
}

func setResponseSchema() tuple.Schema {
	return tuple.NewSchema([]string{"addr", "id"}, []tuple.ColumnType{tuple.Address, tuple.Int64})
}

func getRequestSchema() tuple.Schema {
	return tuple.NewSchema(
		[]string{"dst_addr", "src_addr", "id", "key"},
		[]tuple.ColumnType{tuple.Address, tuple.Address, tuple.Int64, tuple.String},
	)
}

func getResponseSchema() tuple.Schema {
	return tuple.NewSchema([]string{"addr", "id", "value"}, []tuple.ColumnType{tuple.Address, tuple.Int64, tuple.String})
}

func kvsSchema() tuple.Schema {
	return tuple.NewSchema([]string{"key", "value"}, []tuple.ColumnType{tuple.String, tuple.String})
}

func main() {
	var (
		listenAddr  string
		dialTimeout time.Duration
		dbDriver    string
		dbHost      string
		dbPort      int
		dbUser      string
		dbPassword  string
		dbName      string
		dbSSLMode   string
	)

	root := &cobra.Command{
		Use:   "kvstore",
		Short: "run a Fluent distributed key-value store node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(listenAddr, dialTimeout, dbDriver, dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode)
		},
	}
	root.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9000", "address this node listens on and is addressed by")
	root.Flags().DurationVar(&dialTimeout, "dial-timeout", 5*time.Second, "outbound socket dial timeout")
	root.Flags().StringVar(&dbDriver, "lineage-driver", "none", "lineage sink: \"postgres\" or \"none\"")
	root.Flags().StringVar(&dbHost, "db-host", "localhost", "lineage database host")
	root.Flags().IntVar(&dbPort, "db-port", 5432, "lineage database port")
	root.Flags().StringVar(&dbUser, "db-user", "", "lineage database user")
	root.Flags().StringVar(&dbPassword, "db-password", "", "lineage database password")
	root.Flags().StringVar(&dbName, "db-name", "", "lineage database name")
	root.Flags().StringVar(&dbSSLMode, "db-sslmode", "disable", "lineage database sslmode")

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runServer(listenAddr string, dialTimeout time.Duration, dbDriver, dbHost string, dbPort int, dbUser, dbPassword, dbName, dbSSLMode string) error {
	const nodeName = "key_value_server"

	adapter, err := transport.NewSocketAdapter(listenAddr, dialTimeout)
	if err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}

	sink, err := buildSink(nodeName, dbDriver, dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode)
	if err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}

	setReq, setResp := setRequestSchema(), setResponseSchema()
	getReq, getResp := getRequestSchema(), getResponseSchema()
	kvs := kvsSchema()

	n, err := node.NewBuilder(nodeName, listenAddr, listenAddr, adapter, sink).
		Channel("set_request", setReq).
		Channel("set_response", setResp).
		Channel("get_request", getReq).
		Channel("get_response", getResp).
		Table("kvs", kvs).
		RegisterRules(kvstoreRules).
		Build()
	if err != nil {
		return fmt.Errorf("kvstore: build node: %w", err)
	}

	// Mirrors key_value_server.cc's RegisterBlackBoxLineage<0, 1>: the
	// set_request that most recently wrote a key is the lineage source for
	// any get_response answering with that key's value.
	err = lineage.RegisterBlackBox(sink, nodeName+"_get_request", getReq, nodeName+"_get_response", getResp,
		func(placeholders []string) string {
			return fmt.Sprintf(`
				SELECT CAST('%s_set_request' AS TEXT), hash, time_inserted
				FROM %s_set_request
				WHERE key = %s AND time_inserted <= %s
				ORDER BY time_inserted DESC
				LIMIT 1;
			`, nodeName, nodeName, placeholders[1], placeholders[0])
		})
	if err != nil {
		return fmt.Errorf("kvstore: register black-box lineage: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logrus.Infof("kvstore: listening on %s", listenAddr)
	if err := n.Run(ctx); err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	return nil
}

// kvstoreRules builds the four rules wiring the key-value store's channels
// to its kvs table: a set reply, a delete-then-add pair maintaining kvs's
// key uniqueness, and a get reply via hash-join. Split out from runServer so
// it can be exercised against an in-memory node with no live transport.
func kvstoreRules(cols map[string]collection.Collection) []node.RuleSpec {
	setResp, getResp, kvs := setResponseSchema(), getResponseSchema(), kvsSchema()

	setRequest := pipeline.FromCollection(cols["set_request"])
	getRequest := pipeline.FromCollection(cols["get_request"])
	kvsTable := pipeline.FromCollection(cols["kvs"])

	replySet := pipeline.Map(setRequest, setResp, func(t tuple.Tuple) tuple.Tuple {
		return tuple.Tuple{t[1], t[2]}
	})

	// kvs has arity 2 (key, value); set_request has arity 5, so the
	// join's trailing two columns are the existing (key, value) row
	// that must be retired before the new value is merged in. A row that
	// already holds the new value is kept out of the delete, since
	// Table.Tick applies merges before deletes and would otherwise drop it.
	staleRow := pipeline.Project(
		pipeline.Filter(
			pipeline.HashJoin(setRequest, []int{3}, kvsTable, []int{0}),
			func(t tuple.Tuple) bool { return t[4] != t[6] },
		),
		5, 6,
	)

	freshRow := pipeline.Map(setRequest, kvs, func(t tuple.Tuple) tuple.Tuple {
		return tuple.Tuple{t[3], t[4]}
	})

	replyGet := pipeline.Map(
		pipeline.HashJoin(getRequest, []int{3}, kvsTable, []int{0}),
		getResp,
		func(t tuple.Tuple) tuple.Tuple { return tuple.Tuple{t[1], t[2], t[5]} },
	)

	return []node.RuleSpec{
		{Target: "set_response", Mode: rule.Merge, Pipeline: replySet, Text: "set_response <= map(set_request, t -> (t.src_addr, t.id))"},
		{Target: "kvs", Mode: rule.DeferDelete, Pipeline: staleRow, Text: "kvs -= join(set_request, kvs) on key"},
		{Target: "kvs", Mode: rule.DeferMerge, Pipeline: freshRow, Text: "kvs += map(set_request, t -> (t.key, t.value))"},
		{Target: "get_response", Mode: rule.Merge, Pipeline: replyGet, Text: "get_response <= join(get_request, kvs) on key"},
	}
}

func buildSink(nodeName, driver, host string, port int, user, password, dbname, sslmode string) (lineage.Sink, error) {
	switch driver {
	case "", "none":
		return lineage.NoopSink{}, nil
	case "postgres":
		cfg := lineage.PostgresConfig{Host: host, Port: port, User: user, Password: password, Database: dbname, SSLMode: sslmode}
		return lineage.NewPostgresSink(nodeName, cfg, zap.NewNop())
	default:
		return nil, fmt.Errorf("unknown lineage driver %q", driver)
	}
}
