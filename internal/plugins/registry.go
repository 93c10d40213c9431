// ABOUTME: Filesystem-backed registry of enabled and disabled mod jars
// ABOUTME: Lists artifacts newest first and moves them between the two directories

package plugins

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Errors returned by Registry operations
var (
	ErrNotFound      = errors.New("artifact not found")
	ErrAlreadyExists = errors.New("artifact already exists")
	ErrInvalidName   = errors.New("invalid artifact name")
)

// artifactExt is the only file suffix treated as a plugin artifact.
const artifactExt = ".jar"

// Location identifies which directory an artifact lives in.
type Location string

const (
	Enabled  Location = "enabled"
	Disabled Location = "disabled"
)

// Artifact describes one plugin file.
type Artifact struct {
	Name     string    `json:"filename"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"modified"`
	Location Location  `json:"location"`
}

// Config contains configuration for a Registry.
type Config struct {
	EnabledDir  string
	DisabledDir string
	// Owner is the user (and group of the same name) applied after moves.
	// Empty skips the chown.
	Owner    string
	FileMode os.FileMode
	Logger   *slog.Logger
}

// Registry lists and moves plugin artifacts. It holds no state beyond its
// configuration; the directories are the source of truth.
type Registry struct {
	enabledDir  string
	disabledDir string
	owner       string
	mode        os.FileMode
	logger      *slog.Logger
}

// NewRegistry creates a Registry over the configured directories.
func NewRegistry(cfg Config) *Registry {
	mode := cfg.FileMode
	if mode == 0 {
		mode = 0o644
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		enabledDir:  cfg.EnabledDir,
		disabledDir: cfg.DisabledDir,
		owner:       cfg.Owner,
		mode:        mode,
		logger:      logger.With("component", "plugins"),
	}
}

// EnabledDir returns the directory scanned by the server.
func (r *Registry) EnabledDir() string { return r.enabledDir }

// DisabledDir returns the directory holding disabled artifacts.
func (r *Registry) DisabledDir() string { return r.disabledDir }

// ListEnabled returns enabled artifacts, newest first.
func (r *Registry) ListEnabled() ([]Artifact, error) {
	return r.list(r.enabledDir, Enabled)
}

// ListDisabled returns disabled artifacts, newest first.
func (r *Registry) ListDisabled() ([]Artifact, error) {
	return r.list(r.disabledDir, Disabled)
}

// Newest returns the most recently modified enabled artifact. The boolean is
// false when no enabled artifacts exist.
func (r *Registry) Newest() (Artifact, bool, error) {
	artifacts, err := r.ListEnabled()
	if err != nil {
		return Artifact{}, false, err
	}
	if len(artifacts) == 0 {
		return Artifact{}, false, nil
	}
	return artifacts[0], true, nil
}

// Disable moves name from the enabled directory to the disabled directory.
func (r *Registry) Disable(name string) error {
	if err := r.move(name, r.enabledDir, r.disabledDir); err != nil {
		return err
	}
	r.logger.Info("disabled artifact", "name", name)
	return nil
}

// Enable moves name from the disabled directory back to the enabled directory.
func (r *Registry) Enable(name string) error {
	if err := r.move(name, r.disabledDir, r.enabledDir); err != nil {
		return err
	}
	r.logger.Info("enabled artifact", "name", name)
	return nil
}

// Delete removes an enabled artifact.
func (r *Registry) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	path := filepath.Join(r.enabledDir, name)
	if !isRegularFile(path) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	r.logger.Info("deleted artifact", "name", name)
	return nil
}

// ValidateName rejects names that are empty, lack the .jar suffix, or could
// escape the artifact directories.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case !strings.HasSuffix(strings.ToLower(name), artifactExt):
		return fmt.Errorf("%w: %q is not a %s file", ErrInvalidName, name, artifactExt)
	}
	return nil
}

func (r *Registry) list(dir string, loc Location) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Artifact{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(strings.ToLower(e.Name()), artifactExt) || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:     e.Name(),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Location: loc,
		})
	}

	sortNewestFirst(artifacts)
	return artifacts, nil
}

func sortNewestFirst(artifacts []Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		if !artifacts[i].ModTime.Equal(artifacts[j].ModTime) {
			return artifacts[i].ModTime.After(artifacts[j].ModTime)
		}
		return artifacts[i].Name < artifacts[j].Name
	})
}

func (r *Registry) move(name, fromDir, toDir string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	src := filepath.Join(fromDir, name)
	dst := filepath.Join(toDir, name)

	if !isRegularFile(src) {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, name, fromDir)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s in %s", ErrAlreadyExists, name, toDir)
	}

	if err := os.MkdirAll(toDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", toDir, err)
	}
	if err := moveFile(src, dst); err != nil {
		return fmt.Errorf("moving %s: %w", name, err)
	}

	return r.normalize(dst)
}

// normalize resets the file mode and, if configured, the owner. A failed chown
// is logged rather than returned since the dashboard may not run as root.
func (r *Registry) normalize(path string) error {
	if err := os.Chmod(path, r.mode); err != nil {
		return fmt.Errorf("setting mode on %s: %w", filepath.Base(path), err)
	}
	if r.owner == "" {
		return nil
	}

	uid, gid, err := lookupOwner(r.owner)
	if err != nil {
		r.logger.Warn("cannot resolve artifact owner", "owner", r.owner, "error", err)
		return nil
	}
	if err := os.Chown(path, uid, gid); err != nil {
		r.logger.Warn("chown failed", "path", path, "owner", r.owner, "error", err)
	}
	return nil
}

func lookupOwner(name string) (uid, gid int, err error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing uid: %w", err)
	}
	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing gid: %w", err)
	}
	if g, gerr := user.LookupGroup(name); gerr == nil {
		if id, perr := strconv.Atoi(g.Gid); perr == nil {
			gid = id
		}
	}
	return uid, gid, nil
}

func isRegularFile(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if info, err := in.Stat(); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return os.Remove(src)
}
