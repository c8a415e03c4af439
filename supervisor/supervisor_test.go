package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/locsim/model"
)

func TestReadinessMarkerPerKind(t *testing.T) {
	require.Equal(t, "ENTER", readinessMarker(model.KindProfile))
	require.Equal(t, "Location initialization completed", readinessMarker(model.KindProximity))
}

func TestInstancePrefixPerKind(t *testing.T) {
	require.Equal(t, "Ps-", instancePrefix(model.KindProfile))
	require.Equal(t, "Px-", instancePrefix(model.KindProximity))
}

func TestWriteConfigProfileRoundTripsKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ProfileServer.conf")
	cfg := ProfileConfig{
		TestMode:              true,
		ExternalServerAddress: "127.0.0.1",
		PrimaryInterfacePort:  9001,
		MaxHostedIdentities:   20000,
	}
	require.NoError(t, writeConfig(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "test_mode = true")
	require.Contains(t, content, "external_server_address = \"127.0.0.1\"")
	require.Contains(t, content, "primary_interface_port = 9001")
	require.Contains(t, content, "max_hosted_identities = 20000")
}

func TestWriteConfigProximityRoundTripsKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ProximityServer.conf")
	cfg := ProximityConfig{
		TestMode:              true,
		MaxActivities:         50000,
		NeighborInterfacePort: 9002,
	}
	require.NoError(t, writeConfig(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "max_activities = 50000")
	require.Contains(t, content, "neighbor_interface_port = 9002")
}

func TestScanLogCountsSkipsAllowlisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")
	content := "[2026-01-01] INFO: starting\n" +
		"[2026-01-01] ERROR: disk full\n" +
		"[2026-01-01] WARN: deprecated config key foo\n" +
		"[2026-01-01] WARN: slow request\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	errs, warns, err := ScanLogCounts(path)
	require.NoError(t, err)
	require.Equal(t, 1, errs)
	require.Equal(t, 1, warns)
}

func TestCopyDirPreservesFiles(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "bin"), []byte("binary-contents"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0o644))

	dst := t.TempDir()
	require.NoError(t, copyDir(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "bin"))
	require.NoError(t, err)
	require.Equal(t, "binary-contents", string(got))

	gotNested, err := os.ReadFile(filepath.Join(dst, "sub", "nested.txt"))
	require.NoError(t, err)
	require.Equal(t, "nested", string(gotNested))
}

func TestProcessAliveLifecycle(t *testing.T) {
	p := &Process{}
	require.False(t, p.Alive())
	p.setPid(1234)
	require.True(t, p.Alive())
	require.Equal(t, 1234, p.Pid())
	p.setExited()
	require.False(t, p.Alive())
}
