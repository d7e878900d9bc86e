package main

import (
	"context"
	"io"
	"net/url"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Syncer drives one batch run: connect, validate directories, list, transfer
// each file in listing order, verify, optionally delete, and report.
type Syncer struct {
	factory ConnectorFactory
	local   billy.Filesystem
	// workDir is the local destination when no local dir is configured.
	workDir string
}

func NewSyncer(factory ConnectorFactory, local billy.Filesystem, workDir string) *Syncer {
	return &Syncer{factory: factory, local: local, workDir: workDir}
}

// Run executes the batch. A non-nil error is fatal and means no report was
// produced; per-file failures are only recorded in the report. The session is
// closed exactly once on every path after it was opened.
func (s *Syncer) Run(ctx context.Context, cfg *RunConfig, target *url.URL, secret []byte) (*RunReport, error) {
	logger := zerolog.Ctx(ctx)

	logger.Debug().Str("host", target.Host).Str("user", cfg.Username).Str("protocol", s.factory.Name()).Msg("Getting connection")
	conn, err := s.factory.Create(target, secret)
	if err != nil {
		return nil, errors.Errorf("%w: %s: %s", ErrConnection, target.Host, err)
	}
	logger.Debug().Msg("Got connection")
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("Closing connection")
		}
	}()

	if cfg.RemoteDir != "" {
		isDir, err := conn.IsDir(cfg.RemoteDir)
		if err != nil {
			return nil, errors.Errorf("%w: checking remote_dir '%s': %s", ErrConnection, cfg.RemoteDir, err)
		}
		if !isDir {
			return nil, errors.Errorf("%w: '%s' is missing or not a directory", ErrRemoteDirNotFound, cfg.RemoteDir)
		}
	}

	localDir := s.workDir
	if cfg.LocalDir != "" {
		localDir = cfg.LocalDir
		if err := ensureLocalDir(ctx, s.local, localDir); err != nil {
			return nil, err
		}
	}

	listDir := cfg.RemoteDir
	if listDir == "" {
		listDir = "."
	}
	entries, err := conn.ListFiles(listDir)
	if err != nil {
		return nil, errors.Errorf("%w: listing '%s': %s", ErrConnection, listDir, err)
	}
	for i, e := range entries {
		logger.Debug().Msgf("Found remote file: [%d/%d] '%s'", i+1, len(entries), e.Name)
	}

	report := &RunReport{RunID: cfg.RunID}
	if len(entries) == 0 {
		logger.Info().Msg("No files in remote dir - nothing to do")
		report.emit(ctx)
		return report, nil
	}

	for _, e := range entries {
		report.record(s.transfer(ctx, conn, cfg, listDir, localDir, e))
	}

	report.emit(ctx)
	return report, nil
}

// transfer handles one listed entry. It never returns an error: every failure
// ends up in the outcome.
func (s *Syncer) transfer(ctx context.Context, conn Connector, cfg *RunConfig, remoteDir, localDir string, e RemoteFileEntry) TransferOutcome {
	logger := zerolog.Ctx(ctx).With().Str("file", e.Name).Logger()
	out := TransferOutcome{Name: e.Name, Size: e.Size}

	if !e.Regular {
		logger.Debug().Msg("Skipping entry that is not a regular file")
		out.Skipped = true
		return out
	}

	remotePath := path.Join(remoteDir, e.Name)
	localPath, err := resolveLocalPath(s.local, localDir, e.Name)
	if err != nil {
		out.Err = errors.Errorf("%w: %s", ErrTransferFailure, err)
		logger.Error().Err(out.Err).Msg("Failed to get file")
		return out
	}

	err = saveRemoteFile(s.local, localPath, func(w io.Writer) error {
		return conn.DownloadFile(remotePath, w)
	})
	if err != nil {
		out.Err = errors.Errorf("%w: %s", ErrTransferFailure, err)
		logger.Error().Err(err).Str("local_dir", localDir).Str("remote_dir", cfg.RemoteDir).
			Msg("Failed to get file")
		return out
	}

	if err := verifyLocalFile(s.local, localPath); err != nil {
		out.Err = errors.Errorf("%w: %s", ErrTransferFailure, err)
		logger.Error().Err(err).Str("local_dir", localDir).Str("remote_dir", cfg.RemoteDir).
			Msg("Failed to get file")
		return out
	}
	out.Verified = true
	out.Succeeded = true
	logger.Info().Str("local_dir", localDir).Int64("size", e.Size).Msg("Downloaded file")

	if !cfg.DeleteRemote {
		return out
	}

	out.DeleteAttempted = true
	if err := conn.Remove(remotePath); err != nil {
		out.Err = errors.Errorf("%w: %s", ErrDeletionFailure, err)
		logger.Error().Err(err).Str("remote_dir", cfg.RemoteDir).Msg("Unable to remove remote file")
		return out
	}
	// The re-check assumes the server reflects the delete immediately.
	stillThere, err := conn.Exists(remotePath)
	switch {
	case err != nil:
		out.Err = errors.Errorf("%w: confirming removal: %s", ErrDeletionFailure, err)
		logger.Error().Err(err).Str("remote_dir", cfg.RemoteDir).Msg("Unable to confirm removal of remote file")
	case stillThere:
		out.Err = errors.Errorf("%w: '%s' still present after remove", ErrDeletionFailure, remotePath)
		logger.Error().Str("remote_dir", cfg.RemoteDir).Msg("Unable to remove remote file")
	default:
		out.RemoteDeleted = true
		logger.Debug().Msg("Removed remote file")
	}
	return out
}
