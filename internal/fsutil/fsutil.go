// Package fsutil provides the file and path helpers shared by the narrator
// pipelines: output path derivation, directory creation, atomic writes and
// human-readable formatting.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Common path constants.
const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o644
	dot                    = "."
	invalidCharReplacement = "_"

	cleanedSuffix    = "_cleaned"
	audiobookSuffix  = "_audiobook"
	segmentDirSuffix = "_tts_temp"
	partialSuffix    = ".partial"
	tempPattern      = ".%s.tmp-*"
	segmentPattern   = "chunk_%04d.%s"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// File extension constants.
const (
	extMD  = ".md"
	extMP3 = ".mp3"
	extTXT = ".txt"
	extWAV = ".wav"
)

// Error format string constants.
const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtNotRegularFile    = "%w: %s"
	errFmtCreateTemp        = "failed to create temp file in %s: %w"
	errFmtSyncTemp          = "failed to sync %s: %w"
	errFmtCloseTemp         = "failed to close %s: %w"
	errFmtChmodTemp         = "failed to set permissions on %s: %w"
	errFmtRename            = "failed to rename %s to %s: %w"
)

// ErrNotRegularFile is returned when a path names a directory or device.
var ErrNotRegularFile = errors.New("not a regular file")

// CleanedPath derives the cleanup output path: "<stem>_cleaned<ext>", using
// ".txt" when the input has no extension.
func CleanedPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	stem := strings.TrimSuffix(inputPath, ext)

	if ext == "" {
		ext = extTXT
	}

	return stem + cleanedSuffix + ext
}

// AudiobookPath derives the audiobook output path: "<stem>_audiobook.<format>".
func AudiobookPath(inputPath, format string) string {
	stem := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))

	return stem + audiobookSuffix + dot + format
}

// SegmentDir derives the per-chunk audio directory of an output file:
// "<stem>_<ext>_tts_temp". Runs writing different outputs never share it.
func SegmentDir(outputPath string) string {
	ext := filepath.Ext(outputPath)
	stem := strings.TrimSuffix(outputPath, ext)

	if ext == "" {
		return stem + segmentDirSuffix
	}

	return stem + invalidCharReplacement + strings.TrimPrefix(ext, dot) + segmentDirSuffix
}

// SegmentFileName names the file holding the payload of chunk index.
func SegmentFileName(index int, ext string) string {
	return fmt.Sprintf(segmentPattern, index, ext)
}

// PartialPath derives the checkpoint path for an output: "<output>.partial".
func PartialPath(outputPath string) string {
	return outputPath + partialSuffix
}

// AudiobookTitle strips directory, extension and the audiobook suffix from path.
func AudiobookTitle(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return strings.TrimSuffix(stem, audiobookSuffix)
}

// IsAudiobookFile reports whether name looks like a finished audiobook.
func IsAudiobookFile(name string) bool {
	base := filepath.Base(name)
	ext := filepath.Ext(base)

	if ext != extMP3 && ext != extWAV {
		return false
	}

	return strings.HasSuffix(strings.TrimSuffix(base, ext), audiobookSuffix)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// RequireRegularFile returns the size of path, or an error when it is missing or
// is not a regular file.
func RequireRegularFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf(errFmtNotRegularFile, ErrNotRegularFile, path)
	}

	return info.Size(), nil
}

// WriteAtomic creates a temp file beside path, hands it to write, then syncs,
// closes and renames it onto path. On any failure the temp file is removed and
// path is left untouched.
func WriteAtomic(path string, write func(file *os.File) error) error {
	dir := filepath.Dir(path)

	file, err := os.CreateTemp(dir, fmt.Sprintf(tempPattern, filepath.Base(path)))
	if err != nil {
		return fmt.Errorf(errFmtCreateTemp, dir, err)
	}

	tempPath := file.Name()
	committed := false

	defer func() {
		if !committed {
			_ = file.Close()
			_ = os.Remove(tempPath)
		}
	}()

	err = write(file)
	if err != nil {
		return err
	}

	err = file.Sync()
	if err != nil {
		return fmt.Errorf(errFmtSyncTemp, tempPath, err)
	}

	err = file.Chmod(defaultFilePermissions)
	if err != nil {
		return fmt.Errorf(errFmtChmodTemp, tempPath, err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf(errFmtCloseTemp, tempPath, err)
	}

	err = os.Rename(tempPath, path)
	if err != nil {
		return fmt.Errorf(errFmtRename, tempPath, path, err)
	}

	committed = true

	return nil
}

// WriteFileAtomic writes data to path through WriteAtomic.
func WriteFileAtomic(path string, data []byte) error {
	return WriteAtomic(path, func(file *os.File) error {
		_, err := file.Write(data)

		return err
	})
}

// FormatDuration formats a duration in a human-readable string (e.g., "1h 15m", "5m
// 30.5s", "45.2s").
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsValidTextFile checks if a filename has a plain text extension, or none.
func IsValidTextFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extTXT, extMD, "":
		return true
	default:
		return false
	}
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
