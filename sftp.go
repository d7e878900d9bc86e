package main

import (
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SFTPConnectorFactory struct {
	// KnownHosts enables host key verification against the given file.
	// Host keys are not checked when it is empty.
	KnownHosts string
	KeyFile    string
	Timeout    time.Duration
}

func (f *SFTPConnectorFactory) Accept(u *url.URL) bool { return u.Scheme == "sftp" }

func (f *SFTPConnectorFactory) Create(u *url.URL, password []byte) (Connector, error) {
	c, err := NewSFTPConnector(u, password, f)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (f *SFTPConnectorFactory) Name() string { return "sftp" }

func (f *SFTPConnectorFactory) DefaultPort() int { return 2222 }

type SFTPConnector struct {
	conn   *ssh.Client
	client *sftp.Client
}

func NewSFTPConnector(u *url.URL, password []byte, f *SFTPConnectorFactory) (*SFTPConnector, error) {
	config, err := f.clientConfig(u.User.Username(), password)
	if err != nil {
		return nil, err
	}

	conn, err := ssh.Dial("tcp", u.Host, config)
	if err != nil {
		return nil, errors.Errorf("failed to dial %s: %w", u.Host, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Errorf("failed to start sftp subsystem: %w", err)
	}

	return &SFTPConnector{conn: conn, client: client}, nil
}

func (f *SFTPConnectorFactory) clientConfig(user string, password []byte) (*ssh.ClientConfig, error) {
	var auths []ssh.AuthMethod

	if f.KeyFile != "" {
		signer, err := loadSigner(f.KeyFile)
		if err != nil {
			return nil, errors.Errorf("load key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}

	secret := string(password)
	auths = append(auths,
		ssh.Password(secret),
		// Some servers only offer keyboard-interactive for password logins.
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = secret
			}
			return answers, nil
		}),
	)

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if f.KnownHosts != "" {
		cb, err := knownhosts.New(f.KnownHosts)
		if err != nil {
			return nil, errors.Errorf("known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         f.Timeout,
	}, nil
}

// loadSigner loads an unencrypted private key.
func loadSigner(path string) (ssh.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(b)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is encrypted, passphrase protected keys are not supported")
		}
		return nil, errors.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

func (s *SFTPConnector) Exists(remotePath string) (bool, error) {
	_, err := s.client.Stat(remotePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errors.Errorf("stat %s: %w", remotePath, err)
}

func (s *SFTPConnector) IsDir(remotePath string) (bool, error) {
	info, err := s.client.Stat(remotePath)
	if err == nil {
		return info.IsDir(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errors.Errorf("stat %s: %w", remotePath, err)
}

// ListFiles reads dir with lstat semantics, so symlinks are resolved here and
// reported with the mode and size of their target. A dangling link is listed
// as not regular.
func (s *SFTPConnector) ListFiles(dir string) ([]RemoteFileEntry, error) {
	infos, err := s.client.ReadDir(dir)
	if err != nil {
		return nil, errors.Errorf("read dir %s: %w", dir, err)
	}
	entries := make([]RemoteFileEntry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.Mode()&fs.ModeSymlink != 0 {
			if target, err := s.client.Stat(path.Join(dir, name)); err == nil {
				info = target
			}
		}
		entries = append(entries, RemoteFileEntry{
			Name:    name,
			Size:    info.Size(),
			Regular: info.Mode().IsRegular(),
		})
	}
	return entries, nil
}

func (s *SFTPConnector) DownloadFile(remotePath string, dst io.Writer) error {
	src, err := s.client.Open(remotePath)
	if err != nil {
		return errors.Errorf("open %s: %w", remotePath, err)
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Errorf("copy %s: %w", remotePath, err)
	}
	return nil
}

func (s *SFTPConnector) Remove(remotePath string) error {
	if err := s.client.Remove(remotePath); err != nil {
		return errors.Errorf("remove %s: %w", remotePath, err)
	}
	return nil
}

func (s *SFTPConnector) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
