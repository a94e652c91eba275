// Command kvstore-client is a thin terminal client for the kvstore server,
// ported from
// _examples/original_source/src/examples/distributed_kvs/fluent_client.cc:
// it reads "GET key" and "SET key value" lines from stdin, sends the
// matching request over a channel, and prints whatever response comes back.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

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

func stdoutSchema() tuple.Schema {
	return tuple.NewSchema([]string{"line"}, []tuple.ColumnType{tuple.String})
}

// nextID mints a request id the way the teacher's core/storage.go mints
// listing and deal ids: a fresh uuid.New(), folded down to the int64 the
// channel schemas declare.
func nextID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]))
}

func main() {
	var clientAddr, serverAddr string
	root := &cobra.Command{
		Use:   "kvstore-client",
		Short: "interactive client for a Fluent kvstore server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(clientAddr, serverAddr)
		},
	}
	root.Flags().StringVar(&clientAddr, "listen", "127.0.0.1:9100", "address this client listens on for responses")
	root.Flags().StringVar(&serverAddr, "server", "127.0.0.1:9000", "kvstore server address")
	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(clientAddr, serverAddr string) error {
	adapter, err := transport.NewSocketAdapter(clientAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("kvstore-client: %w", err)
	}

	setReq, setResp := setRequestSchema(), setResponseSchema()
	getReq, getResp := getRequestSchema(), getResponseSchema()
	stdoutSch := stdoutSchema()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	n, err := node.NewBuilder("kvstore_client", clientAddr, clientAddr, adapter, lineage.NoopSink{}).
		Stdin().
		Stdout(os.Stdout).
		Channel("set_request", setReq).
		Channel("set_response", setResp).
		Channel("get_request", getReq).
		Channel("get_response", getResp).
		WithStdinLines(lines).
		RegisterRules(func(cols map[string]collection.Collection) []node.RuleSpec {
			stdinColl := pipeline.FromCollection(cols["stdin"])

			sendGet := pipeline.Map(
				pipeline.Filter(stdinColl, isGetLine),
				getReq,
				func(t tuple.Tuple) tuple.Tuple {
					parts := strings.Fields(t[0].(string))
					return tuple.Tuple{serverAddr, clientAddr, nextID(), parts[1]}
				},
			)
			sendSet := pipeline.Map(
				pipeline.Filter(stdinColl, isSetLine),
				setReq,
				func(t tuple.Tuple) tuple.Tuple {
					parts := strings.Fields(t[0].(string))
					return tuple.Tuple{serverAddr, clientAddr, nextID(), parts[1], parts[2]}
				},
			)
			printGet := pipeline.Map(pipeline.FromCollection(cols["get_response"]), stdoutSch, func(t tuple.Tuple) tuple.Tuple {
				return tuple.Tuple{fmt.Sprintf("value = %s\nid = %d", t[2], t[1])}
			})
			printSet := pipeline.Map(pipeline.FromCollection(cols["set_response"]), stdoutSch, func(tuple.Tuple) tuple.Tuple {
				return tuple.Tuple{"OK"}
			})

			return []node.RuleSpec{
				{Target: "get_request", Mode: rule.Merge, Pipeline: sendGet, Text: "get_request <= map(filter(stdin, is_get), parse_get)"},
				{Target: "set_request", Mode: rule.Merge, Pipeline: sendSet, Text: "set_request <= map(filter(stdin, is_set), parse_set)"},
				{Target: "stdout", Mode: rule.Merge, Pipeline: printGet, Text: "stdout <= map(get_response, format_value)"},
				{Target: "stdout", Mode: rule.Merge, Pipeline: printSet, Text: "stdout <= map(set_response, const(\"OK\"))"},
			}
		}).
		Build()
	if err != nil {
		return fmt.Errorf("kvstore-client: build node: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return n.Run(ctx)
}

func isGetLine(t tuple.Tuple) bool {
	parts := strings.Fields(t[0].(string))
	return len(parts) == 2 && parts[0] == "GET"
}

func isSetLine(t tuple.Tuple) bool {
	parts := strings.Fields(t[0].(string))
	return len(parts) == 3 && parts[0] == "SET"
}
