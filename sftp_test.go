package main

import (
	"bytes"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

// newPipeSFTPConnector serves the local filesystem over an in-process sftp
// server and returns a connector talking to it.
func newPipeSFTPConnector(t *testing.T) *SFTPConnector {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	server, err := sftp.NewServer(serverConn)
	require.NoError(t, err)
	go func() { _ = server.Serve() }()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)

	conn := &SFTPConnector{client: client}
	t.Cleanup(func() {
		_ = client.Close()
		_ = serverConn.Close()
	})
	return conn
}

func writeRemote(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestSFTPConnector_Operations(t *testing.T) {
	conn := newPipeSFTPConnector(t)
	remote := t.TempDir()
	file := writeRemote(t, remote, "report.csv", "id,value\n1,2\n")
	require.NoError(t, os.Mkdir(filepath.Join(remote, "nested"), 0o755))

	exists, err := conn.Exists(remote)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = conn.Exists(filepath.Join(remote, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)

	isDir, err := conn.IsDir(remote)
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = conn.IsDir(file)
	require.NoError(t, err)
	assert.False(t, isDir)

	isDir, err = conn.IsDir(filepath.Join(remote, "missing"))
	require.NoError(t, err)
	assert.False(t, isDir)

	entries, err := conn.ListFiles(remote)
	require.NoError(t, err)
	assert.ElementsMatch(t, []RemoteFileEntry{
		{Name: "report.csv", Size: 13, Regular: true},
		{Name: "nested", Size: entryByName(entries, "nested").Size, Regular: false},
	}, entries)

	var buf bytes.Buffer
	require.NoError(t, conn.DownloadFile(file, &buf))
	assert.Equal(t, "id,value\n1,2\n", buf.String())

	require.NoError(t, conn.Remove(file))
	exists, err = conn.Exists(file)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, conn.DownloadFile(file, &buf))
}

func entryByName(entries []RemoteFileEntry, name string) RemoteFileEntry {
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	return RemoteFileEntry{}
}

func TestSFTPConnector_ListFilesFollowsSymlinks(t *testing.T) {
	conn := newPipeSFTPConnector(t)
	remote := t.TempDir()
	writeRemote(t, remote, "real.txt", "target")
	require.NoError(t, os.Mkdir(filepath.Join(remote, "sub"), 0o755))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(remote, "link.txt")))
	require.NoError(t, os.Symlink("sub", filepath.Join(remote, "sublink")))
	require.NoError(t, os.Symlink("gone.txt", filepath.Join(remote, "dangling")))

	entries, err := conn.ListFiles(remote)
	require.NoError(t, err)

	assert.Equal(t, RemoteFileEntry{Name: "link.txt", Size: 6, Regular: true}, entryByName(entries, "link.txt"))
	assert.False(t, entryByName(entries, "sublink").Regular)
	assert.Equal(t, "dangling", entryByName(entries, "dangling").Name)
	assert.False(t, entryByName(entries, "dangling").Regular)
}

func TestSFTPConnector_Close(t *testing.T) {
	conn := newPipeSFTPConnector(t)

	require.NoError(t, conn.Close())

	_, err := conn.Exists("/")
	assert.Error(t, err)
}

type pipeSFTPFactory struct {
	conn    *SFTPConnector
	created int
}

func (f *pipeSFTPFactory) Accept(u *url.URL) bool { return u.Scheme == "sftp" }

func (f *pipeSFTPFactory) Create(*url.URL, []byte) (Connector, error) {
	f.created++
	return f.conn, nil
}

func (f *pipeSFTPFactory) Name() string { return "sftp" }

func (f *pipeSFTPFactory) DefaultPort() int { return 2222 }

func TestSyncer_OverSFTP(t *testing.T) {
	remote := filepath.Join(t.TempDir(), "incoming")
	require.NoError(t, os.Mkdir(remote, 0o755))
	writeRemote(t, remote, "a.txt", "alpha")
	writeRemote(t, remote, "b.txt", "bravo")
	writeRemote(t, remote, "c.txt", "charlie")
	localDir := filepath.Join(t.TempDir(), "landing")

	factory := &pipeSFTPFactory{conn: newPipeSFTPConnector(t)}
	syncer := NewSyncer(factory, osfs.New("/"), t.TempDir())
	cfg := &RunConfig{RemoteDir: remote, LocalDir: localDir, DeleteRemote: true}

	report, err := syncer.Run(testContext(t), cfg, testTarget(), []byte("pw"))
	require.NoError(t, err)

	assert.Equal(t, 1, factory.created)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.DeletionFailures)

	for name, content := range map[string]string{"a.txt": "alpha", "b.txt": "bravo", "c.txt": "charlie"} {
		got, err := os.ReadFile(filepath.Join(localDir, name))
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
		_, err = os.Stat(filepath.Join(remote, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed remotely", name)
	}
}

func TestSyncer_OverSFTPDownloadsSymlinkedFiles(t *testing.T) {
	remote := filepath.Join(t.TempDir(), "incoming")
	require.NoError(t, os.Mkdir(remote, 0o755))
	writeRemote(t, remote, "real.txt", "target")
	require.NoError(t, os.Symlink("real.txt", filepath.Join(remote, "link.txt")))
	localDir := filepath.Join(t.TempDir(), "landing")

	factory := &pipeSFTPFactory{conn: newPipeSFTPConnector(t)}
	syncer := NewSyncer(factory, osfs.New("/"), t.TempDir())
	cfg := &RunConfig{RemoteDir: remote, LocalDir: localDir}

	report, err := syncer.Run(testContext(t), cfg, testTarget(), []byte("pw"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.Skipped)

	got, err := os.ReadFile(filepath.Join(localDir, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "target", string(got))
}

func TestSyncer_OverSFTPRemoteDirIsAFile(t *testing.T) {
	remote := writeRemote(t, t.TempDir(), "incoming", "not a dir")

	factory := &pipeSFTPFactory{conn: newPipeSFTPConnector(t)}
	syncer := NewSyncer(factory, osfs.New("/"), t.TempDir())
	cfg := &RunConfig{RemoteDir: remote, LocalDir: t.TempDir()}

	_, err := syncer.Run(testContext(t), cfg, testTarget(), []byte("pw"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteDirNotFound))
	assert.Equal(t, exitDirectory, exitCode(err))
}

func TestSyncer_OverSFTPMissingRemoteDir(t *testing.T) {
	factory := &pipeSFTPFactory{conn: newPipeSFTPConnector(t)}
	syncer := NewSyncer(factory, osfs.New("/"), t.TempDir())
	cfg := &RunConfig{RemoteDir: filepath.Join(t.TempDir(), "nope"), LocalDir: t.TempDir()}

	_, err := syncer.Run(testContext(t), cfg, testTarget(), []byte("pw"))
	require.Error(t, err)
	assert.Equal(t, exitDirectory, exitCode(err))
}

func TestLoadSigner_RejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(p, []byte("not a key"), 0o600))

	_, err := loadSigner(p)
	assert.Error(t, err)

	_, err = loadSigner(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSFTPConnectorFactory_ClientConfig(t *testing.T) {
	f := &SFTPConnectorFactory{}
	cfg, err := f.clientConfig("ingest", []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, "ingest", cfg.User)
	assert.Len(t, cfg.Auth, 2)

	f.KnownHosts = filepath.Join(t.TempDir(), "missing_known_hosts")
	_, err = f.clientConfig("ingest", []byte("pw"))
	assert.Error(t, err)
}
