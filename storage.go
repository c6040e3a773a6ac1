// storage.go: Read-only access to bundle contents
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// BundleStorage gives read-only access to the files of one bundle. Resource
// paths are slash separated and relative to the bundle root; both variants
// satisfy the same contract so the loader never branches on storage kind.
type BundleStorage interface {
	// GetResource opens a file. Missing files fail with ErrCodeResourceNotFound.
	GetResource(name string) (io.ReadCloser, error)

	// List returns the entry names directly below a directory, sorted.
	List(dir string) ([]string, error)

	// IsDirectory reports whether name is a directory inside the bundle.
	IsDirectory(name string) bool

	// GetPath returns the filesystem location of the bundle.
	GetPath() string

	// Close releases any handle held on the underlying storage.
	Close() error
}

// ReadResource reads a whole resource into memory.
func ReadResource(storage BundleStorage, name string) ([]byte, error) {
	rc, err := storage.GetResource(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, NewStorageError(storage.GetPath(), "failed to read "+name, err)
	}
	return data, nil
}

// HasResource reports whether a regular file exists in the storage. Only
// ErrCodeResourceNotFound counts as absent; any other failure is returned.
func HasResource(storage BundleStorage, name string) (bool, error) {
	rc, err := storage.GetResource(name)
	if err != nil {
		if HasErrorCode(err, ErrCodeResourceNotFound) {
			return false, nil
		}
		return false, err
	}
	_ = rc.Close()
	return true, nil
}

// cleanResourceName normalizes a resource path and reports whether it stays
// inside the bundle root.
func cleanResourceName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.Contains(name, "\x00") {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	return cleaned, true
}

// DirectoryStorage serves a bundle laid out as a plain directory.
type DirectoryStorage struct {
	root string
}

// NewDirectoryStorage opens a directory-backed storage.
func NewDirectoryStorage(root string) (*DirectoryStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, NewStorageError(root, "cannot resolve bundle path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, NewStorageError(abs, "cannot stat bundle path", err)
	}
	if !info.IsDir() {
		return nil, NewStorageError(abs, "bundle path is not a directory", nil)
	}
	return &DirectoryStorage{root: abs}, nil
}

func (d *DirectoryStorage) resolve(name string) (string, bool) {
	cleaned, ok := cleanResourceName(name)
	if !ok {
		return "", false
	}
	return filepath.Join(d.root, filepath.FromSlash(cleaned)), true
}

// GetResource implements BundleStorage.
func (d *DirectoryStorage) GetResource(name string) (io.ReadCloser, error) {
	full, ok := d.resolve(name)
	if !ok {
		return nil, NewResourceNotFoundError(d.root, name)
	}
	info, err := os.Stat(full)
	switch {
	case err != nil && !os.IsNotExist(err):
		return nil, NewStorageError(d.root, "failed to stat "+name, err)
	case err != nil || info.IsDir():
		return nil, NewResourceNotFoundError(d.root, name)
	}
	f, err := os.Open(full) // #nosec G304 - path is confined to the bundle root
	if err != nil {
		return nil, NewStorageError(d.root, "failed to open "+name, err)
	}
	return f, nil
}

// List implements BundleStorage.
func (d *DirectoryStorage) List(dir string) ([]string, error) {
	full, ok := d.resolve(dir)
	if !ok {
		return nil, NewResourceNotFoundError(d.root, dir)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewResourceNotFoundError(d.root, dir)
		}
		return nil, NewStorageError(d.root, "failed to list "+dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// IsDirectory implements BundleStorage.
func (d *DirectoryStorage) IsDirectory(name string) bool {
	full, ok := d.resolve(name)
	if !ok {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.IsDir()
}

// GetPath implements BundleStorage.
func (d *DirectoryStorage) GetPath() string { return d.root }

// Close implements BundleStorage.
func (d *DirectoryStorage) Close() error { return nil }

// ArchiveStorage serves a bundle packed as a zip archive.
type ArchiveStorage struct {
	archivePath string
	reader      *zip.ReadCloser
	files       map[string]*zip.File
	dirs        map[string]struct{}
}

// NewArchiveStorage opens a zip-backed storage.
func NewArchiveStorage(archivePath string) (*ArchiveStorage, error) {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, NewStorageError(archivePath, "cannot resolve archive path", err)
	}
	reader, err := zip.OpenReader(abs)
	if err != nil {
		return nil, NewStorageError(abs, "cannot open bundle archive", err)
	}

	a := &ArchiveStorage{
		archivePath: abs,
		reader:      reader,
		files:       make(map[string]*zip.File),
		dirs:        map[string]struct{}{"": {}},
	}
	for _, f := range reader.File {
		name, ok := cleanResourceName(f.Name)
		if !ok || name == "" {
			continue
		}
		if strings.HasSuffix(f.Name, "/") {
			a.addDir(name)
			continue
		}
		a.files[name] = f
		a.addDir(path.Dir(name))
	}
	return a, nil
}

func (a *ArchiveStorage) addDir(dir string) {
	for dir != "." && dir != "" && dir != "/" {
		a.dirs[dir] = struct{}{}
		dir = path.Dir(dir)
	}
}

// GetResource implements BundleStorage.
func (a *ArchiveStorage) GetResource(name string) (io.ReadCloser, error) {
	cleaned, ok := cleanResourceName(name)
	if !ok {
		return nil, NewResourceNotFoundError(a.archivePath, name)
	}
	f, exists := a.files[cleaned]
	if !exists {
		return nil, NewResourceNotFoundError(a.archivePath, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, NewStorageError(a.archivePath, "failed to open "+name, err)
	}
	// Entries are small descriptors or libraries; buffering keeps the
	// reader independent from the archive handle.
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, NewStorageError(a.archivePath, "failed to read "+name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// List implements BundleStorage.
func (a *ArchiveStorage) List(dir string) ([]string, error) {
	cleaned, ok := cleanResourceName(dir)
	if !ok {
		return nil, NewResourceNotFoundError(a.archivePath, dir)
	}
	if _, exists := a.dirs[cleaned]; !exists {
		return nil, NewResourceNotFoundError(a.archivePath, dir)
	}

	seen := make(map[string]struct{})
	collect := func(entry string) {
		parent := path.Dir(entry)
		if parent == "." {
			parent = ""
		}
		if parent == cleaned {
			seen[path.Base(entry)] = struct{}{}
		}
	}
	for name := range a.files {
		collect(name)
	}
	for name := range a.dirs {
		if name != "" {
			collect(name)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// IsDirectory implements BundleStorage.
func (a *ArchiveStorage) IsDirectory(name string) bool {
	cleaned, ok := cleanResourceName(name)
	if !ok {
		return false
	}
	_, exists := a.dirs[cleaned]
	return exists
}

// GetPath implements BundleStorage.
func (a *ArchiveStorage) GetPath() string { return a.archivePath }

// Close implements BundleStorage.
func (a *ArchiveStorage) Close() error {
	if a.reader == nil {
		return nil
	}
	err := a.reader.Close()
	a.reader = nil
	return err
}

// DefaultArchiveExtensions are the file extensions treated as bundle archives.
var DefaultArchiveExtensions = []string{".zip", ".jar"}

// OpenBundleStorage picks the storage variant for a discovered location.
func OpenBundleStorage(location string, archiveExtensions []string) (BundleStorage, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, NewStorageError(location, "cannot stat bundle location", err)
	}
	if info.IsDir() {
		return NewDirectoryStorage(location)
	}
	if isArchiveName(location, archiveExtensions) {
		return NewArchiveStorage(location)
	}
	return nil, NewStorageError(location, "bundle location is neither a directory nor an archive", nil)
}

func isArchiveName(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range extensions {
		if ext == strings.ToLower(candidate) {
			return true
		}
	}
	return false
}

// memoryStorage backs the built-in system bundle when no descriptor exists on disk.
type memoryStorage struct {
	location string
	files    map[string][]byte
}

func newMemoryStorage(location string, files map[string][]byte) *memoryStorage {
	if files == nil {
		files = map[string][]byte{}
	}
	return &memoryStorage{location: location, files: files}
}

func (m *memoryStorage) GetResource(name string) (io.ReadCloser, error) {
	cleaned, _ := cleanResourceName(name)
	data, ok := m.files[cleaned]
	if !ok {
		return nil, NewResourceNotFoundError(m.location, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) List(dir string) ([]string, error) {
	cleaned, _ := cleanResourceName(dir)
	seen := make(map[string]struct{})
	for name := range m.files {
		rel := name
		if cleaned != "" {
			if !strings.HasPrefix(name, cleaned+"/") {
				continue
			}
			rel = strings.TrimPrefix(name, cleaned+"/")
		}
		seen[strings.SplitN(rel, "/", 2)[0]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStorage) IsDirectory(name string) bool {
	cleaned, _ := cleanResourceName(name)
	if cleaned == "" {
		return true
	}
	for file := range m.files {
		if strings.HasPrefix(file, cleaned+"/") {
			return true
		}
	}
	return false
}

func (m *memoryStorage) GetPath() string { return m.location }
func (m *memoryStorage) Close() error    { return nil }
