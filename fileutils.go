package main

import (
	"context"
	"io"
	"io/fs"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// resolveLocalPath maps a remote entry name onto its destination in localDir.
// Names that would escape localDir are rejected.
func resolveLocalPath(local billy.Filesystem, localDir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errors.Errorf("unsafe remote file name %q", name)
	}
	return local.Join(localDir, name), nil
}

// ensureLocalDir makes sure dir exists as a directory, creating it when missing.
func ensureLocalDir(ctx context.Context, local billy.Filesystem, dir string) error {
	logger := zerolog.Ctx(ctx)

	info, err := local.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return errors.Errorf("%w '%s': not a directory", ErrLocalDirCreate, dir)
	case !errors.Is(err, fs.ErrNotExist):
		return errors.Errorf("%w '%s': %s", ErrLocalDirCreate, dir, err)
	}

	logger.Info().Str("local_dir", dir).Msg("Local dir does not exist - creating it")
	if err := local.MkdirAll(dir, 0o755); err != nil {
		logger.Error().Err(err).Str("local_dir", dir).Msg("Failed to create local_dir")
		return errors.Errorf("%w '%s': %s", ErrLocalDirCreate, dir, err)
	}
	return nil
}

// saveRemoteFile creates localPath and streams the remote content into it.
// A partially written file is removed when fetch fails.
func saveRemoteFile(local billy.Filesystem, localPath string, fetch func(io.Writer) error) error {
	destFile, err := local.Create(localPath)
	if err != nil {
		return errors.Errorf("failed to create destination file: %w", err)
	}

	if err := fetch(destFile); err != nil {
		_ = destFile.Close()
		_ = local.Remove(localPath)
		return err
	}

	if err := destFile.Close(); err != nil {
		return errors.Errorf("failed to close destination file: %w", err)
	}
	return nil
}

// verifyLocalFile checks that the downloaded artifact is present as a regular file.
// Content is not compared with the remote copy.
func verifyLocalFile(local billy.Filesystem, localPath string) error {
	info, err := local.Stat(localPath)
	if err != nil {
		return errors.Errorf("local file missing: %w", err)
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("local path %s is not a regular file", localPath)
	}
	return nil
}
