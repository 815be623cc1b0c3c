package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"
)

// Column defaults follow the permissions module's trusted table schema.
const (
	DefaultSQLTable    = "trusted"
	DefaultColSource   = "src_ip"
	DefaultColProtocol = "proto"
	DefaultColPattern  = "from_pattern"
	DefaultColTag      = "tag"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrBadIdentifier is returned when a configured table or column name is not
// a plain SQL identifier.
var ErrBadIdentifier = errors.New("loader: invalid SQL identifier")

// SQLConfig names the table and columns holding trust rows.
type SQLConfig struct {
	Table       string
	ColSource   string
	ColProtocol string
	ColPattern  string
	ColTag      string
}

// DefaultSQLConfig returns the standard trusted table layout.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Table:       DefaultSQLTable,
		ColSource:   DefaultColSource,
		ColProtocol: DefaultColProtocol,
		ColPattern:  DefaultColPattern,
		ColTag:      DefaultColTag,
	}
}

func (c SQLConfig) withDefaults() SQLConfig {
	d := DefaultSQLConfig()
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.ColSource == "" {
		c.ColSource = d.ColSource
	}
	if c.ColProtocol == "" {
		c.ColProtocol = d.ColProtocol
	}
	if c.ColPattern == "" {
		c.ColPattern = d.ColPattern
	}
	if c.ColTag == "" {
		c.ColTag = d.ColTag
	}
	return c
}

func (c SQLConfig) query() (string, error) {
	for _, id := range []string{c.Table, c.ColSource, c.ColProtocol, c.ColPattern, c.ColTag} {
		if !identRe.MatchString(id) {
			return "", fmt.Errorf("%w: %q", ErrBadIdentifier, id)
		}
	}
	return fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s",
		c.ColSource, c.ColProtocol, c.ColPattern, c.ColTag, c.Table), nil
}

// SQLSource reads rows from a database/sql handle. NULL pattern and tag
// columns are absent values, distinct from empty strings.
type SQLSource struct {
	db    *sql.DB
	cfg   SQLConfig
	label string
}

// NewSQLSource wraps an open database handle.
func NewSQLSource(db *sql.DB, cfg SQLConfig, label string) (*SQLSource, error) {
	cfg = cfg.withDefaults()
	if _, err := cfg.query(); err != nil {
		return nil, err
	}
	return &SQLSource{db: db, cfg: cfg, label: label}, nil
}

// OpenSQLite opens a SQLite database file with the pure-Go driver.
func OpenSQLite(path string, cfg SQLConfig) (*SQLSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trusted database: %w", err)
	}
	src, err := NewSQLSource(db, cfg, "sqlite:"+path)
	if err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

// Describe implements Source.
func (s *SQLSource) Describe() string {
	return s.label
}

// Close closes the underlying database handle.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Rows implements Source.
func (s *SQLSource) Rows(ctx context.Context) ([]Row, error) {
	q, err := s.cfg.query()
	if err != nil {
		return nil, err
	}
	rs, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query trusted rows: %w", err)
	}
	defer rs.Close()

	var rows []Row
	for rs.Next() {
		var (
			src, proto   sql.NullString
			pattern, tag sql.NullString
		)
		if err := rs.Scan(&src, &proto, &pattern, &tag); err != nil {
			return nil, fmt.Errorf("failed to scan trusted row: %w", err)
		}
		row := Row{Source: src.String, Protocol: proto.String}
		if pattern.Valid {
			row.Pattern = &pattern.String
		}
		if tag.Valid {
			row.Tag = &tag.String
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trusted rows: %w", err)
	}
	return rows, nil
}
