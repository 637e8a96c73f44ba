package twinerr

import (
	"errors"
	"fmt"
)

// Sentinels matched through errors.Is. Every typed error below reports
// itself as its sentinel so callers don't need errors.As for the common case.
var (
	ErrAssetLoad      = errors.New("asset load failed")
	ErrFormat         = errors.New("invalid format")
	ErrCorruptArchive = errors.New("corrupt archive")
	ErrPermission     = errors.New("permission denied")
	ErrMissingAsset   = errors.New("missing asset")
)

// AssetLoadError reports a binary payload that could not be turned into a
// scene subtree (corrupt or unsupported format).
type AssetLoadError struct {
	Name string
	Err  error
}

func (e *AssetLoadError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("asset load failed: %v", e.Err)
	}
	return fmt.Sprintf("asset load failed for %q: %v", e.Name, e.Err)
}

func (e *AssetLoadError) Unwrap() error        { return e.Err }
func (e *AssetLoadError) Is(target error) bool { return target == ErrAssetLoad }

// FormatError reports a codec or JSON parse failure on persisted data.
type FormatError struct {
	What string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.What, e.Err)
}

func (e *FormatError) Unwrap() error        { return e.Err }
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// CorruptArchiveError reports an archive that lacks a required entry or
// cannot be opened as a zip container at all.
type CorruptArchiveError struct {
	Entry string
	Err   error
}

func (e *CorruptArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt archive: %v", e.Err)
	}
	return fmt.Sprintf("corrupt archive: missing %s", e.Entry)
}

func (e *CorruptArchiveError) Unwrap() error        { return e.Err }
func (e *CorruptArchiveError) Is(target error) bool { return target == ErrCorruptArchive }

// PermissionError reports a denied or unavailable directory write
// capability. Callers with a download fallback should take it.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("permission denied: %v", e.Err)
	}
	return fmt.Sprintf("permission denied for %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error        { return e.Err }
func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// MissingAssetWarning reports an environment whose binary could not be
// located. It is never returned from a load; it is collected and logged.
type MissingAssetWarning struct {
	EnvironmentID string
	Ref           string
	Err           error
}

func (e *MissingAssetWarning) Error() string {
	msg := fmt.Sprintf("environment %s: binary %q not found", e.EnvironmentID, e.Ref)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingAssetWarning) Unwrap() error        { return e.Err }
func (e *MissingAssetWarning) Is(target error) bool { return target == ErrMissingAsset }
