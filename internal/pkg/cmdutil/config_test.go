package cmdutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/endorses/trustpeer/internal/pkg/tagsink"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadSettings_Defaults(t *testing.T) {
	s := LoadSettings(newViper())
	assert.Equal(t, "trusted", s.TrustedDBTable)
	assert.Equal(t, 1024, s.MaxURISize)
	assert.Equal(t, "127.0.0.1:9494", s.AdminListen)
	assert.Equal(t, "info", s.LogLevel)
	assert.False(t, s.StrictPatterns)
}

func TestSource(t *testing.T) {
	_, closeFn, err := Settings{}.Source()
	assert.ErrorIs(t, err, ErrNoSource)
	assert.NoError(t, closeFn())

	src, closeFn, err := Settings{TrustedFile: "/etc/trusted.yaml"}.Source()
	require.NoError(t, err)
	assert.Equal(t, "file:/etc/trusted.yaml", src.Describe())
	assert.NoError(t, closeFn())
}

func TestNewRuntime_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trusted:\n  - src_ip: 10.0.0.5\n    proto: udp\n    tag: peerA\n"), 0644))

	v := newViper()
	v.Set(KeyTrustedFile, path)
	v.Set(KeyTagAVP, "i:7")

	rt, report, err := NewRuntime(context.Background(), LoadSettings(v), nil)
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, 1, report.Inserted)

	d := rt.Checker.Check(trusted.Query{Source: "10.0.0.5", Protocol: trusted.ProtoUDP, IdentityURI: "sip:a@b"})
	require.NoError(t, d.Err)
	assert.Equal(t, "peerA", d.Attribute)
}

func TestNewRuntime_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perm.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE peers (src_ip TEXT, proto TEXT, from_pattern TEXT, tag TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO peers VALUES ('10.0.0.8', 'tls', '^sips:', 'secure')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	v := newViper()
	v.Set(KeyTrustedDB, path)
	v.Set(KeyTrustedDBTable, "peers")

	rt, _, err := NewRuntime(context.Background(), LoadSettings(v), nil)
	require.NoError(t, err)
	defer rt.Close()

	d := rt.Checker.Check(trusted.Query{Source: "10.0.0.8", Protocol: trusted.ProtoTLS, IdentityURI: "sips:a@b"})
	require.NoError(t, d.Err)
	assert.Equal(t, "secure", d.Tag)
}

func TestNewRuntime_Errors(t *testing.T) {
	_, _, err := NewRuntime(context.Background(), Settings{TagAVP: "i:x", TrustedFile: "x"}, nil)
	assert.ErrorIs(t, err, tagsink.ErrInvalidBinding)

	_, _, err = NewRuntime(context.Background(), Settings{}, nil)
	assert.ErrorIs(t, err, ErrNoSource)

	_, _, err = NewRuntime(context.Background(), Settings{TrustedFile: filepath.Join(t.TempDir(), "nope.yaml")}, nil)
	assert.ErrorContains(t, err, "initial load")
}
