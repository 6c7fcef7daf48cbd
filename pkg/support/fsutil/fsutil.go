// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities to locate program files in the file system.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// ProgramExtensions lists the file extensions of serialized programs, searched when expanding directories.
var ProgramExtensions = []string{".yaml", ".yml", ".json"}

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to check whether %q exists", path)
}

// ReplaceTilde replaces a leading "~" (or "~user") by the home directory of the user.
// Returns path unchanged if it doesn't start with "~".
func ReplaceTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	userName, rest, _ := strings.Cut(path[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", path)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// ExpandPrograms resolves the given paths to a sorted list of program files, without duplicates:
//
//   - A leading "~" is replaced by the home directory.
//   - Glob patterns (see filepath.Glob) are expanded, and must match at least one file.
//   - Directories are replaced by the files they contain (not recursively) with one of the ProgramExtensions.
func ExpandPrograms(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		p, err := ReplaceTilde(p)
		if err != nil {
			return nil, err
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q", p)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no files match %q", p)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, errors.Wrapf(err, "can't access %q", match)
			}
			if !info.IsDir() {
				files = append(files, match)
				continue
			}
			entries, err := os.ReadDir(match)
			if err != nil {
				return nil, errors.Wrapf(err, "can't list directory %q", match)
			}
			for _, entry := range entries {
				if !entry.IsDir() && slices.Contains(ProgramExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
					files = append(files, filepath.Join(match, entry.Name()))
				}
			}
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
