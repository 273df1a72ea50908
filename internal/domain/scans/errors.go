package scans

import "errors"

// ErrCloneFailed indicates the version-control clone exited non-zero; the
// wrapped message carries the captured stderr.
var ErrCloneFailed = errors.New("repository clone failed")

// ErrRepoTooLarge indicates the cloned repository exceeds the configured size cap.
var ErrRepoTooLarge = errors.New("repository exceeds maximum size")

// ErrNoSourceFiles indicates no analyzable source files survived filtering.
var ErrNoSourceFiles = errors.New("no source files found in repository")

// ErrEmptyCode indicates a code scan was submitted with empty text.
var ErrEmptyCode = errors.New("code is empty")

// ErrEmptyRepoURL indicates a repository scan was submitted without a URL.
var ErrEmptyRepoURL = errors.New("repository url is empty")
