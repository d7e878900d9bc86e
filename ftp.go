package main

import (
	"io"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"gitlab.com/tozd/go/errors"
)

type FTPConnectorFactory struct {
	Timeout time.Duration
}

func (f *FTPConnectorFactory) Accept(u *url.URL) bool {
	return u.Scheme == "ftp"
}

func (f *FTPConnectorFactory) Create(u *url.URL, password []byte) (Connector, error) {
	c, err := NewFTPConnector(u, password, f.Timeout)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (f *FTPConnectorFactory) Name() string {
	return "ftp"
}

func (f *FTPConnectorFactory) DefaultPort() int {
	return 21
}

// ftpClient is the part of *ftp.ServerConn the connector uses.
type ftpClient interface {
	List(p string) ([]*ftp.Entry, error)
	Retr(p string) (*ftp.Response, error)
	Delete(p string) error
	Quit() error
}

type FTPConnector struct {
	client ftpClient
}

func NewFTPConnector(u *url.URL, password []byte, timeout time.Duration) (*FTPConnector, error) {
	var opts []ftp.DialOption
	if timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(timeout))
	}
	c, err := ftp.Dial(u.Host, opts...)
	if err != nil {
		return nil, errors.Errorf("failed to dial %s: %w", u.Host, err)
	}

	err = c.Login(u.User.Username(), string(password))
	if err != nil {
		_ = c.Quit() // Close connection on login failure
		return nil, errors.Errorf("login as %s: %w", u.User.Username(), err)
	}

	return &FTPConnector{client: c}, nil
}

// findEntry returns the entry called name, or nil.
func findEntry(entries []*ftp.Entry, name string) *ftp.Entry {
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// lookup lists the parent directory and looks for the entry, since plain FTP
// has no portable stat command. The session root resolves to a synthetic
// folder entry.
func (f *FTPConnector) lookup(remotePath string) (*ftp.Entry, error) {
	cleaned := path.Clean(remotePath)
	if cleaned == "/" || cleaned == "." {
		return &ftp.Entry{Name: cleaned, Type: ftp.EntryTypeFolder}, nil
	}
	parent := path.Dir(cleaned)
	entries, err := f.client.List(parent)
	if err != nil {
		return nil, errors.Errorf("list %s: %w", parent, err)
	}
	return findEntry(entries, path.Base(cleaned)), nil
}

func (f *FTPConnector) Exists(remotePath string) (bool, error) {
	e, err := f.lookup(remotePath)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// IsDir accepts links as well: LIST does not say what a link points to, and a
// link to a file fails later when it is listed.
func (f *FTPConnector) IsDir(remotePath string) (bool, error) {
	e, err := f.lookup(remotePath)
	if err != nil || e == nil {
		return false, err
	}
	return e.Type == ftp.EntryTypeFolder || e.Type == ftp.EntryTypeLink, nil
}

// ListFiles reports links as regular files. The server follows them on RETR;
// a link to a directory then fails the transfer and is recorded as such.
func (f *FTPConnector) ListFiles(dir string) ([]RemoteFileEntry, error) {
	entries, err := f.client.List(dir)
	if err != nil {
		return nil, errors.Errorf("list %s: %w", dir, err)
	}

	files := make([]RemoteFileEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		files = append(files, RemoteFileEntry{
			Name:    e.Name,
			Size:    int64(e.Size),
			Regular: e.Type == ftp.EntryTypeFile || e.Type == ftp.EntryTypeLink,
		})
	}
	return files, nil
}

func (f *FTPConnector) DownloadFile(remotePath string, dst io.Writer) error {
	r, err := f.client.Retr(remotePath)
	if err != nil {
		return errors.Errorf("retr %s: %w", remotePath, err)
	}
	defer r.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return errors.Errorf("copy %s: %w", remotePath, err)
	}
	return nil
}

func (f *FTPConnector) Remove(remotePath string) error {
	if err := f.client.Delete(remotePath); err != nil {
		return errors.Errorf("delete %s: %w", remotePath, err)
	}
	return nil
}

func (f *FTPConnector) Close() error {
	return f.client.Quit()
}
