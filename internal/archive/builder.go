package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/lambda-packager/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// Origin tells where an archive member came from.
type Origin string

const (
	// OriginSource marks first-party files.
	OriginSource Origin = "source"
	// OriginDependency marks files from the dependency environment.
	OriginDependency Origin = "dependency"

	// DefaultFileMode is the mode of the written archive.
	DefaultFileMode os.FileMode = 0o644

	// ChecksumFunction is used to verify the archive when it is swapped into place.
	ChecksumFunction crypto.Hash = crypto.SHA512
)

// modTime is stamped on every member so identical inputs produce identical archives.
//
//nolint:gochecknoglobals // Constant value, time.Time cannot be const.
var modTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	// ErrSourceNotFound is returned when a first-party entry does not exist.
	ErrSourceNotFound = errors.New("source not found")
	// ErrEmptyArchive is returned when nothing would be written.
	ErrEmptyArchive = errors.New("archive would be empty")
)

// Entry is one archive member.
type Entry struct {
	// Name is the slash-separated member path.
	Name string
	// Origin tells whether the member is first-party or a dependency.
	Origin Origin
	// Size is the uncompressed size in bytes.
	Size int64

	// path is the file on disk the member is read from.
	path string
	// mode is the file mode recorded in the archive.
	mode fs.FileMode
}

// Manifest describes a built archive.
type Manifest struct {
	// Entries lists members in archive order.
	Entries []Entry
	// Excluded counts files left out by the exclusion patterns.
	Excluded int
	// Checksum is the SHA-512 of the archive bytes.
	Checksum []byte
}

// Names returns member names in archive order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		names = append(names, e.Name)
	}

	return names
}

// Count returns the number of members of the given origin.
func (m *Manifest) Count(origin Origin) int {
	count := 0

	for _, e := range m.Entries {
		if e.Origin == origin {
			count++
		}
	}

	return count
}

// Builder assembles an archive from first-party sources and dependency directories.
type Builder struct {
	// Root is the directory source entries are relative to.
	Root string
	// Sources are first-party files, directories or glob patterns relative to Root.
	Sources []string
	// DependencyDirs are site-packages directories whose contents go to the archive root.
	DependencyDirs []string
	// Excluder filters members; nil keeps everything.
	Excluder *Excluder
}

// Build collects the members and returns the archive bytes with their manifest.
func (b *Builder) Build(ctx context.Context) ([]byte, *Manifest, error) {
	c := b.newCollector(ctx)

	if err := c.collectSources(b.Root, b.Sources); err != nil {
		return nil, nil, err
	}

	for _, dir := range b.DependencyDirs {
		if err := c.collectTree(dir, "", OriginDependency); err != nil {
			return nil, nil, err
		}
	}

	if len(c.entries) == 0 {
		return nil, nil, ErrEmptyArchive
	}

	data, err := write(ctx, c.entries)
	if err != nil {
		return nil, nil, err
	}

	hasher := ChecksumFunction.New()
	_, _ = hasher.Write(data)

	manifest := &Manifest{
		Entries:  c.entries,
		Excluded: c.excluded,
		Checksum: hasher.Sum(nil),
	}

	logger.DebugKV(ctx, "Archive assembled",
		"sources", manifest.Count(OriginSource),
		"dependencies", manifest.Count(OriginDependency),
		"excluded", manifest.Excluded,
		"bytes", len(data),
	)

	return data, manifest, nil
}

// WriteFile replaces the file at path with data, verifying the checksum first.
// The previous archive is swapped out in one rename, never appended to.
func WriteFile(path string, data, checksum []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		placeholder, err := os.Create(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}

		if err = placeholder.Close(); err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
	}

	options := goupdate.Options{
		TargetPath: path,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       ChecksumFunction,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("replace archive %s: %w", path, err)
	}

	return nil
}

// newCollector starts an empty collection using the builder's excluder.
func (b *Builder) newCollector(ctx context.Context) *collector {
	excluder := b.Excluder
	if excluder == nil {
		excluder = NewExcluder(nil)
	}

	return &collector{
		ctx:      ctx,
		excluder: excluder,
		seen:     make(map[string]struct{}),
	}
}

// collector walks inputs and accumulates entries.
type collector struct {
	ctx      context.Context
	excluder *Excluder
	entries  []Entry
	seen     map[string]struct{}
	excluded int
}

// collectSources expands the first-party entries and adds them in sorted order.
func (c *collector) collectSources(root string, sources []string) error {
	start := len(c.entries)

	for _, source := range sources {
		matches, err := expandSource(root, source)
		if err != nil {
			return err
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return fmt.Errorf("stat %s: %w", match, err)
			}

			if info.IsDir() {
				if err = c.collectTree(match, filepath.Base(match), OriginSource); err != nil {
					return err
				}

				continue
			}

			c.add(match, filepath.Base(match), OriginSource, info)
		}
	}

	sortEntries(c.entries[start:])

	return nil
}

// collectTree adds every regular file under dir; prefix is prepended to member names.
func (c *collector) collectTree(dir, prefix string, origin Origin) error {
	start := len(c.entries)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := c.ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		member := filepath.ToSlash(filepath.Join(prefix, rel))

		if d.IsDir() {
			if c.excluder.Excluded(member, true) {
				c.excluded++
				return filepath.SkipDir
			}

			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		// Symlinks to directories are not followed.
		if !info.Mode().IsRegular() {
			return nil
		}

		c.add(path, member, origin, info)

		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}

	sortEntries(c.entries[start:])

	return nil
}

// add records a member unless it is excluded or already present.
// First-party sources are collected first, so they win name collisions.
func (c *collector) add(path, member string, origin Origin, info fs.FileInfo) {
	if c.excluder.Excluded(member, false) {
		c.excluded++
		return
	}

	if _, ok := c.seen[member]; ok {
		return
	}

	c.seen[member] = struct{}{}
	c.entries = append(c.entries, Entry{
		Name:   member,
		Origin: origin,
		Size:   info.Size(),
		path:   path,
		mode:   info.Mode().Perm(),
	})
}

// expandSource resolves one configured source entry into existing paths.
func expandSource(root, source string) ([]string, error) {
	full := source
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, source)
	}

	if !strings.ContainsAny(source, "*?[") {
		if _, err := os.Stat(full); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", source, ErrSourceNotFound)
			}

			return nil, fmt.Errorf("stat %s: %w", source, err)
		}

		return []string{full}, nil
	}

	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", source, err)
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrSourceNotFound)
	}

	return matches, nil
}

// write serializes entries into a zip byte stream.
func write(ctx context.Context, entries []Entry) ([]byte, error) {
	var (
		buf bytes.Buffer
		zw  = zip.NewWriter(&buf)
	)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := writeEntry(zw, entry); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	return buf.Bytes(), nil
}

// writeEntry copies one file into the archive with a fixed timestamp.
func writeEntry(zw *zip.Writer, entry Entry) error {
	contents, err := os.ReadFile(entry.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", entry.path, err)
	}

	header := &zip.FileHeader{
		Name:     entry.Name,
		Method:   zip.Deflate,
		Modified: modTime,
	}
	header.SetMode(entry.mode)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", entry.Name, err)
	}

	if _, err = w.Write(contents); err != nil {
		return fmt.Errorf("write %s: %w", entry.Name, err)
	}

	return nil
}

// sortEntries orders a group of members by name.
func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// FirstPartyFiles returns the paths of the first-party files that would be archived.
func (b *Builder) FirstPartyFiles(ctx context.Context) ([]string, error) {
	c := b.newCollector(ctx)

	if err := c.collectSources(b.Root, b.Sources); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		paths = append(paths, e.path)
	}

	return paths, nil
}
