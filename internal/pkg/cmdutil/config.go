// Package cmdutil provides shared utilities for CLI command implementations.
package cmdutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/endorses/trustpeer/internal/pkg/checker"
	"github.com/endorses/trustpeer/internal/pkg/constants"
	"github.com/endorses/trustpeer/internal/pkg/loader"
	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/tagsink"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/spf13/viper"
)

// Config keys shared by every command.
const (
	KeyTrustedFile    = "trusted.file"
	KeyTrustedDB      = "trusted.db"
	KeyTrustedDBTable = "trusted.db_table"
	KeyTagAVP         = "tag_avp"
	KeyMaxURISize     = "max_uri_size"
	KeyStrictPatterns = "strict_patterns"
	KeyLenientLoad    = "lenient_load"
	KeyAdminListen    = "admin.listen"
	KeyLogLevel       = "log.level"
	KeyFailOpen       = "fail_open"
)

// ErrNoSource is returned when neither a trusted file nor a database is
// configured.
var ErrNoSource = errors.New("no trusted source configured: set --trusted-file or --trusted-db")

// SetDefaults registers default values for every shared key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTrustedDBTable, loader.DefaultSQLTable)
	v.SetDefault(KeyMaxURISize, constants.MaxURISize)
	v.SetDefault(KeyAdminListen, "127.0.0.1:9494")
	v.SetDefault(KeyLogLevel, "info")
}

// Settings is the resolved configuration of a command run.
type Settings struct {
	TrustedFile    string
	TrustedDB      string
	TrustedDBTable string
	TagAVP         string
	MaxURISize     int
	StrictPatterns bool
	LenientLoad    bool
	AdminListen    string
	LogLevel       string
	FailOpen       bool
}

// LoadSettings reads settings from v; flags bound to v take precedence over
// the config file.
func LoadSettings(v *viper.Viper) Settings {
	return Settings{
		TrustedFile:    v.GetString(KeyTrustedFile),
		TrustedDB:      v.GetString(KeyTrustedDB),
		TrustedDBTable: v.GetString(KeyTrustedDBTable),
		TagAVP:         v.GetString(KeyTagAVP),
		MaxURISize:     v.GetInt(KeyMaxURISize),
		StrictPatterns: v.GetBool(KeyStrictPatterns),
		LenientLoad:    v.GetBool(KeyLenientLoad),
		AdminListen:    v.GetString(KeyAdminListen),
		LogLevel:       v.GetString(KeyLogLevel),
		FailOpen:       v.GetBool(KeyFailOpen),
	}
}

// LoaderOptions returns the table build options.
func (s Settings) LoaderOptions() loader.Options {
	cfg := trusted.DefaultConfig()
	cfg.StrictPatterns = s.StrictPatterns
	return loader.Options{Table: cfg, Lenient: s.LenientLoad}
}

// Source opens the configured trusted source. The database takes precedence
// over the file. The returned close function is never nil.
func (s Settings) Source() (loader.Source, func() error, error) {
	noop := func() error { return nil }
	switch {
	case s.TrustedDB != "":
		src, err := loader.OpenSQLite(s.TrustedDB, loader.SQLConfig{Table: s.TrustedDBTable})
		if err != nil {
			return nil, noop, err
		}
		return src, src.Close, nil
	case s.TrustedFile != "":
		return loader.FileSource{Path: s.TrustedFile}, noop, nil
	default:
		return nil, noop, ErrNoSource
	}
}

// Runtime is everything a command needs to answer trust queries.
type Runtime struct {
	Settings Settings
	Source   loader.Source
	Store    *trusted.Store
	Matcher  *trusted.Matcher
	Checker  *checker.Checker
	Metrics  *metrics.Collector
	closeSrc func() error
}

// NewRuntime opens the source, builds and publishes the first generation.
// collector may be nil.
func NewRuntime(ctx context.Context, s Settings, collector *metrics.Collector) (*Runtime, loader.Report, error) {
	binding, err := tagsink.ParseBinding(s.TagAVP)
	if err != nil {
		return nil, loader.Report{}, err
	}
	src, closeSrc, err := s.Source()
	if err != nil {
		return nil, loader.Report{}, err
	}

	store := trusted.NewStore(nil)
	report, err := loader.Reload(ctx, store, src, s.LoaderOptions())
	collector.ObserveReload(report.Inserted, err)
	if err != nil {
		_ = closeSrc()
		return nil, report, fmt.Errorf("initial load from %s: %w", src.Describe(), err)
	}

	matcher := trusted.NewMatcher(store, trusted.MatcherConfig{MaxURISize: s.MaxURISize})
	return &Runtime{
		Settings: s,
		Source:   src,
		Store:    store,
		Matcher:  matcher,
		Checker:  checker.New(matcher, binding, collector),
		Metrics:  collector,
		closeSrc: closeSrc,
	}, report, nil
}

// Close releases the trusted source.
func (r *Runtime) Close() error {
	return r.closeSrc()
}
