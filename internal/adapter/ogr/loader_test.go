package ogr

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/couchcryptid/lightning-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPGString = "dbname=gisdata host=localhost user=geoserver"

var testFeed = domain.Feed{
	Name:        domain.FeedCurrent,
	StagingPath: "/tmp/lightning.geojson",
	Table:       "lightning",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBinary writes a shell script standing in for ogr2ogr.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "ogr2ogr")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestLoader_Args(t *testing.T) {
	l := NewLoader(Config{PGString: testPGString}, discardLogger())

	assert.Equal(t, []string{
		"-f", "PostgreSQL",
		"PG:" + testPGString,
		"-overwrite",
		"-nln", "lightning",
		"/tmp/lightning.geojson",
	}, l.Args(testFeed))
}

func TestLoader_Args_ExtraArgsBeforeSource(t *testing.T) {
	l := NewLoader(Config{PGString: testPGString, ExtraArgs: []string{"-lco", "GEOMETRY_NAME=geom"}}, discardLogger())
	args := l.Args(testFeed)

	assert.Equal(t, []string{"-lco", "GEOMETRY_NAME=geom", "/tmp/lightning.geojson"}, args[len(args)-3:])
}

func TestLoader_Args_NoTable(t *testing.T) {
	l := NewLoader(Config{PGString: testPGString}, discardLogger())
	args := l.Args(domain.Feed{StagingPath: "/tmp/x.geojson"})

	assert.NotContains(t, args, "-nln")
	assert.Equal(t, "/tmp/x.geojson", args[len(args)-1])
}

func TestLoader_CommandLine_MasksPassword(t *testing.T) {
	l := NewLoader(Config{PGString: "dbname=gisdata host=db user=geoserver password=s3cret"}, discardLogger())
	line := l.CommandLine(testFeed)

	assert.Contains(t, line, `ogr2ogr -f PostgreSQL PG:"dbname=gisdata host=db user=geoserver password=***" -overwrite`)
	assert.NotContains(t, line, "s3cret")
}

func TestLoader_Load_Success(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	bin := fakeBinary(t, `echo "$@" > `+out)

	l := NewLoader(Config{Binary: bin, PGString: testPGString}, discardLogger())
	require.NoError(t, l.Load(context.Background(), testFeed))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "-f PostgreSQL PG:"+testPGString+" -overwrite -nln lightning /tmp/lightning.geojson\n", string(got))
}

func TestLoader_Load_NonZeroExit(t *testing.T) {
	bin := fakeBinary(t, `echo "ERROR 1: PQconnectdb failed" >&2; exit 1`)

	l := NewLoader(Config{Binary: bin, PGString: testPGString}, discardLogger())
	err := l.Load(context.Background(), testFeed)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoad)
	assert.Contains(t, err.Error(), "status 1")
	assert.Contains(t, err.Error(), "PQconnectdb failed")
}

func TestLoader_Load_MissingBinary(t *testing.T) {
	l := NewLoader(Config{Binary: filepath.Join(t.TempDir(), "no-such-ogr2ogr")}, discardLogger())
	err := l.Load(context.Background(), testFeed)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoad)
}

func TestLoader_Load_Timeout(t *testing.T) {
	bin := fakeBinary(t, `exec sleep 5`)

	l := NewLoader(Config{Binary: bin, Timeout: 50 * time.Millisecond}, discardLogger())
	start := time.Now()
	err := l.Load(context.Background(), testFeed)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoad)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short \n"))
	long := make([]byte, maxStderr+10)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, tail(string(long)), maxStderr+3)
}
