package main

import (
	"gitlab.com/tozd/go/errors"
)

// Fatal error classes. Each one maps to its own process exit code.
var (
	ErrInvalidArguments    = errors.Base("invalid arguments")
	ErrUnsupportedStrategy = errors.Base("unsupported password handler")
	ErrConnection          = errors.Base("connection error")
	ErrRemoteDirNotFound   = errors.Base("remote dir does not exist")
	ErrLocalDirCreate      = errors.Base("failed to create local dir")
)

// Per-file error classes. They are recorded in the run report and never abort a run.
var (
	ErrTransferFailure = errors.Base("transfer failed")
	ErrDeletionFailure = errors.Base("remote delete failed")
)

const (
	exitOK                  = 0
	exitUnexpected          = 1
	exitInvalidArguments    = 2
	exitUnsupportedStrategy = 3
	exitConnection          = 4
	exitDirectory           = 5
)

// exitCode maps a fatal run error onto the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrInvalidArguments):
		return exitInvalidArguments
	case errors.Is(err, ErrUnsupportedStrategy):
		return exitUnsupportedStrategy
	case errors.Is(err, ErrConnection):
		return exitConnection
	case errors.Is(err, ErrRemoteDirNotFound), errors.Is(err, ErrLocalDirCreate):
		return exitDirectory
	default:
		return exitUnexpected
	}
}
