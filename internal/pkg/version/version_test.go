package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString_ShortensCommit(t *testing.T) {
	info := Info{Version: "1.2.0", GitCommit: "0123456789abcdef", BuildDate: "2026-10-01", GoVersion: "go1.25.1", Platform: "linux/amd64"}
	assert.Equal(t, "1.2.0 (commit: 0123456, built: 2026-10-01, go1.25.1 linux/amd64)", info.String())
}
