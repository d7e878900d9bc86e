package main

import (
	"io"
	"net/url"
)

// RemoteFileEntry is one entry of a remote directory listing.
type RemoteFileEntry struct {
	Name    string
	Size    int64
	Regular bool
}

// Connector interface for remote file operations
type Connector interface {
	Exists(remotePath string) (bool, error)
	// IsDir reports whether remotePath exists and is a directory.
	IsDir(remotePath string) (bool, error)
	ListFiles(dir string) ([]RemoteFileEntry, error)
	DownloadFile(remotePath string, dst io.Writer) error
	Remove(remotePath string) error
	Close() error
}

// ConnectorFactory interface for creating connectors
type ConnectorFactory interface {
	Accept(u *url.URL) bool
	Create(u *url.URL, password []byte) (Connector, error)
	Name() string
	DefaultPort() int
}
