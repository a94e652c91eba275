package lineage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"fluent/tuple"
)

// PostgresSink is the relational-store lineage sink named by spec.md §4.6
// and §6, grounded on the teacher pack's database/sql + lib/pq sink
// pattern (_examples/DBAShand-cdc-sink-redshift/sink.go): plain
// placeholder-built statements over *sql.DB, no ORM.
type PostgresSink struct {
	db       *sql.DB
	node     string
	log      *zap.SugaredLogger
	columns  map[string][]string // collection name -> declared column names
}

// PostgresConfig carries the connection fields spec.md §6 mandates: host,
// port, user, password, database.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (c PostgresConfig) dsn() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// NewPostgresSink opens a connection pool for node's lineage tables, namespace
// prefixed per spec.md §6 ("one set of tables per node, namespace-prefixed
// by node name").
func NewPostgresSink(node string, cfg PostgresConfig, log *zap.Logger) (*PostgresSink, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("lineage: open postgres: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresSink{db: db, node: node, log: log.Sugar(), columns: make(map[string][]string)}, nil
}

func (s *PostgresSink) table(name string) string {
	return fmt.Sprintf("%s_%s", s.node, name)
}

func (s *PostgresSink) Init() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_rules (
			rule_id INTEGER NOT NULL,
			is_bootstrap BOOLEAN NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (rule_id, is_bootstrap)
		)`, s.node),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_derived_lineage (
			target TEXT NOT NULL,
			target_hash BIGINT NOT NULL,
			source TEXT NOT NULL,
			source_hash BIGINT NOT NULL,
			rule_id INTEGER NOT NULL,
			inserted BOOLEAN NOT NULL,
			logical_time BIGINT NOT NULL
		)`, s.node),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_networked_lineage (
			remote_node_id TEXT NOT NULL,
			remote_time BIGINT NOT NULL,
			local_target TEXT NOT NULL,
			local_hash BIGINT NOT NULL,
			local_time BIGINT NOT NULL
		)`, s.node),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("lineage: init: %w", err)
		}
	}
	return nil
}

func sqlType(t tuple.ColumnType) string {
	switch t {
	case tuple.String, tuple.Address:
		return "TEXT"
	case tuple.Bool:
		return "BOOLEAN"
	case tuple.Int64:
		return "BIGINT"
	case tuple.Float64:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// AddCollection creates {node}_{collection} with the fixed bookkeeping
// columns plus one column per declared tuple column (spec.md §6).
func (s *PostgresSink) AddCollection(name string, kind string, columnNames []string, columnTypes []tuple.ColumnType) error {
	s.columns[name] = columnNames

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", s.table(name))
	fmt.Fprint(&b, "  hash BIGINT NOT NULL,\n")
	fmt.Fprint(&b, "  time_inserted BIGINT NOT NULL,\n")
	fmt.Fprint(&b, "  time_deleted BIGINT,\n")
	fmt.Fprint(&b, "  physical_time_inserted TIMESTAMPTZ NOT NULL\n")
	for i, col := range columnNames {
		fmt.Fprintf(&b, "  , %s %s\n", col, sqlType(columnTypes[i]))
	}
	fmt.Fprint(&b, ")")

	if _, err := s.db.Exec(b.String()); err != nil {
		return fmt.Errorf("lineage: add collection %s: %w", name, err)
	}
	return nil
}

func (s *PostgresSink) AddRule(ruleID int, isBootstrap bool, text string) error {
	_, err := s.db.Exec(fmt.Sprintf("INSERT INTO %s_rules (rule_id, is_bootstrap, text) VALUES ($1, $2, $3)", s.node),
		ruleID, isBootstrap, text)
	if err != nil {
		return fmt.Errorf("lineage: add rule %d: %w", ruleID, err)
	}
	return nil
}

func (s *PostgresSink) insertOrUpdate(collection string, logicalTime int64, t tuple.Tuple, deleted bool) error {
	cols, ok := s.columns[collection]
	if !ok {
		return fmt.Errorf("lineage: unknown collection %s", collection)
	}
	h := tuple.Hash(t)
	if deleted {
		_, err := s.db.Exec(
			fmt.Sprintf("UPDATE %s SET time_deleted = $1 WHERE hash = $2 AND time_deleted IS NULL", s.table(collection)),
			logicalTime, h,
		)
		if err != nil {
			s.log.Errorw("lineage delete failed", "collection", collection, "error", err)
			return fmt.Errorf("lineage: delete %s: %w", collection, err)
		}
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (hash, time_inserted, physical_time_inserted", s.table(collection))
	for _, col := range cols {
		fmt.Fprintf(&b, ", %s", col)
	}
	fmt.Fprint(&b, ") VALUES ($1, $2, $3")
	args := []any{h, logicalTime, time.Now().UTC()}
	for i, v := range t {
		_ = i
		args = append(args, v)
		fmt.Fprintf(&b, ", $%d", len(args))
	}
	fmt.Fprint(&b, ")")

	if _, err := s.db.Exec(b.String(), args...); err != nil {
		s.log.Errorw("lineage insert failed", "collection", collection, "error", err)
		return fmt.Errorf("lineage: insert %s: %w", collection, err)
	}
	return nil
}

func (s *PostgresSink) InsertTuple(collection string, logicalTime int64, t tuple.Tuple) error {
	return s.insertOrUpdate(collection, logicalTime, t, false)
}

func (s *PostgresSink) DeleteTuple(collection string, logicalTime int64, t tuple.Tuple) error {
	return s.insertOrUpdate(collection, logicalTime, t, true)
}

func (s *PostgresSink) AddDerivedLineage(srcName string, srcHash uint64, ruleID int, inserted bool, tgtName string, tgtHash uint64, logicalTime int64) error {
	_, err := s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s_derived_lineage
			(target, target_hash, source, source_hash, rule_id, inserted, logical_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.node),
		tgtName, tgtHash, srcName, srcHash, ruleID, inserted, logicalTime,
	)
	if err != nil {
		return fmt.Errorf("lineage: derived lineage %s -> %s: %w", srcName, tgtName, err)
	}
	return nil
}

func (s *PostgresSink) AddNetworkedLineage(srcNodeID string, srcTime int64, tgtName string, tgtHash uint64, tgtTime int64) error {
	_, err := s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s_networked_lineage
			(remote_node_id, remote_time, local_target, local_hash, local_time)
			VALUES ($1, $2, $3, $4, $5)`, s.node),
		srcNodeID, srcTime, tgtName, tgtHash, tgtTime,
	)
	if err != nil {
		return fmt.Errorf("lineage: networked lineage from %s: %w", srcNodeID, err)
	}
	return nil
}

func (s *PostgresSink) Exec(sqlText string, args ...any) error {
	_, err := s.db.Exec(sqlText, args...)
	if err != nil {
		return fmt.Errorf("lineage: exec: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error { return s.db.Close() }

var _ Sink = (*PostgresSink)(nil)
