// Package storage maps script file arguments onto the host's two volumes: the
// removable SD card and the internal LittleFS partition.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	SD       = "sd"
	LittleFS = "littlefs"
)

var (
	ErrUnknownVolume = errors.New("storage: unknown volume")
	ErrEscapesVolume = errors.New("storage: path escapes volume root")
	ErrNotMounted    = errors.New("storage: volume not mounted")
)

// Volumes holds the directory each volume is mounted at. An empty or missing
// SD root means no card is inserted.
type Volumes struct {
	SDRoot       string
	LittleFSRoot string
}

// Location is a resolved file argument.
type Location struct {
	Volume string
	Path   string // path as the script wrote it
	Host   string // path on the host filesystem
}

// Mounted reports whether the SD volume is available.
func (v Volumes) Mounted() bool {
	if v.SDRoot == "" {
		return false
	}
	fi, err := os.Stat(v.SDRoot)
	return err == nil && fi.IsDir()
}

// Resolve picks the volume for path. An explicit volume ("sd" or "littlefs",
// case-insensitive) is used as given. Without one, the SD card wins when it is
// mounted and holds the file; everything else falls back to LittleFS.
func (v Volumes) Resolve(volume, path string) (Location, error) {
	switch strings.ToLower(volume) {
	case SD:
		return v.locate(SD, v.SDRoot, path)
	case LittleFS:
		return v.locate(LittleFS, v.LittleFSRoot, path)
	case "":
		if v.Mounted() {
			loc, err := v.locate(SD, v.SDRoot, path)
			if err == nil && exists(loc.Host) {
				return loc, nil
			}
		}
		return v.locate(LittleFS, v.LittleFSRoot, path)
	default:
		return Location{}, fmt.Errorf("%w: %q", ErrUnknownVolume, volume)
	}
}

// ReadFile resolves and reads a file.
func (v Volumes) ReadFile(volume, path string) ([]byte, Location, error) {
	loc, err := v.Resolve(volume, path)
	if err != nil {
		return nil, loc, err
	}
	data, err := os.ReadFile(loc.Host)
	if err != nil {
		return nil, loc, fmt.Errorf("read %s:%s: %w", loc.Volume, loc.Path, err)
	}
	return data, loc, nil
}

func (v Volumes) locate(volume, root, path string) (Location, error) {
	if root == "" {
		return Location{}, fmt.Errorf("%w: %s", ErrNotMounted, volume)
	}
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	host := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, host)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Location{}, fmt.Errorf("%w: %s", ErrEscapesVolume, path)
	}
	return Location{Volume: volume, Path: path, Host: host}, nil
}

func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
