// Package bundle reads and writes the zip code bundles stored per version.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/taskd/model"
	"gopkg.in/yaml.v3"
)

// MaxEntrySize caps the uncompressed size of a single archive entry and
// MaxExtractSize the uncompressed size of a whole extraction.
var (
	MaxEntrySize   int64 = 256 << 20
	MaxExtractSize int64 = 1 << 30
)

// Bundle is an opened code bundle.
type Bundle struct {
	Manifest *Manifest
	reader   *zip.Reader
}

// Open parses a bundle and its manifest.
func Open(blob []byte) (*Bundle, error) {
	reader, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorruptArtifact, err)
	}
	var manifestFile *zip.File
	for _, f := range reader.File {
		if path.Clean(f.Name) == ManifestName {
			manifestFile = f
			break
		}
	}
	if manifestFile == nil {
		return nil, fmt.Errorf("%w: missing %s", model.ErrCorruptArtifact, ManifestName)
	}
	data, err := readFile(manifestFile, MaxEntrySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorruptArtifact, err)
	}
	manifest := &Manifest{}
	if err = yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", model.ErrCorruptArtifact, ManifestName, err)
	}
	for _, task := range manifest.Tasks {
		if task == nil {
			return nil, fmt.Errorf("%w: empty task entry", model.ErrCorruptArtifact)
		}
		if err = model.ValidateIdentifier("task", task.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrCorruptArtifact, err)
		}
	}
	return &Bundle{Manifest: manifest, reader: reader}, nil
}

// Tasks returns task names in manifest order.
func (b *Bundle) Tasks() []string {
	return b.Manifest.Names()
}

// Task returns a task definition or nil.
func (b *Bundle) Task(name string) *Task {
	return b.Manifest.Lookup(name)
}

// Extract writes every archive entry under destURL.
func (b *Bundle) Extract(ctx context.Context, fs afs.Service, destURL string) error {
	if err := fs.Create(ctx, destURL, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("failed to create %s: %w", destURL, err)
	}
	remaining := MaxExtractSize
	for _, f := range b.reader.File {
		name, err := entryName(f.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		target := url.Join(destURL, name)
		if f.FileInfo().IsDir() {
			if err = fs.Create(ctx, target, file.DefaultDirOsMode, true); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}
		data, err := readFile(f, min(MaxEntrySize, remaining))
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrCorruptArtifact, err)
		}
		remaining -= int64(len(data))
		mode := f.Mode().Perm()
		if mode == 0 {
			mode = file.DefaultFileOsMode
		}
		if err = fs.Upload(ctx, target, mode, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to extract %s: %w", target, err)
		}
	}
	return nil
}

// entryName rejects entries that would land outside the destination.
func entryName(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." {
		return "", nil
	}
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: entry %q escapes bundle root", model.ErrCorruptArtifact, name)
	}
	return cleaned, nil
}

// readFile reads an entry, failing once more than limit bytes come out of it
// whatever its header claims.
func readFile(f *zip.File, limit int64) ([]byte, error) {
	reader, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

// Build assembles a bundle from a manifest and additional files.
func Build(manifest *Manifest, files map[string][]byte) ([]byte, error) {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	buffer := &bytes.Buffer{}
	writer := zip.NewWriter(buffer)
	entries := map[string][]byte{ManifestName: data}
	for name, content := range files {
		entries[name] = content
	}
	for name, content := range entries {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		header.SetMode(0o755)
		w, err := writer.CreateHeader(header)
		if err != nil {
			return nil, err
		}
		if _, err = w.Write(content); err != nil {
			return nil, err
		}
	}
	if err = writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
