package mcpservice

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/elnormous/contenttype"
	"github.com/fsnotify/fsnotify"

	"github.com/toolbridge/mcp-stdio-go/mcp"
	"github.com/toolbridge/mcp-stdio-go/sessions"
)

// FSResources exposes the files under a root directory as resources. The
// descriptor set is scanned at construction; an optional fsnotify watcher
// keeps the snapshot current when files appear or disappear. The capability
// is advertised without listChanged, so the watcher only affects what
// subsequent list/read calls observe.
//
// Parent traversal is rejected: a read URI must resolve to a path inside the
// root.
type FSResources struct {
	mu       sync.RWMutex
	root     string // absolute
	baseURI  string // scheme prefix for resource URIs, e.g. "fs://data"
	log      *slog.Logger
	snapshot []mcp.Resource // sorted by URI for a stable listing order
}

// FSOption configures FSResources.
type FSOption func(*FSResources)

// WithFSBaseURI sets the URI prefix used in Resource.URI. Defaults to "fs://".
func WithFSBaseURI(base string) FSOption {
	return func(r *FSResources) { r.baseURI = strings.TrimRight(base, "/") }
}

// WithFSLogger overrides the logger used by the watcher.
func WithFSLogger(l *slog.Logger) FSOption {
	return func(r *FSResources) {
		if l != nil {
			r.log = l
		}
	}
}

// NewFSResources scans root and builds a filesystem-backed resources
// capability.
func NewFSResources(root string, opts ...FSOption) (*FSResources, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	r := &FSResources{root: abs, baseURI: "fs://", log: slog.Default()}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	if err := r.rescan(); err != nil {
		return nil, err
	}
	return r, nil
}

// Watch keeps the resource snapshot in sync with the directory until ctx is
// canceled. It is optional; without it the set is fixed at construction.
func (r *FSResources) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(r.root); err != nil {
		return fmt.Errorf("watch %q: %w", r.root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.rescan(); err != nil {
				r.log.WarnContext(ctx, "fsresources.rescan.fail", slog.String("err", err.Error()))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.WarnContext(ctx, "fsresources.watch.err", slog.String("err", err.Error()))
		}
	}
}

func (r *FSResources) rescan() error {
	var found []mcp.Resource
	err := filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		found = append(found, mcp.Resource{
			URI:      r.uriFor(rel),
			Name:     path.Base(rel),
			MimeType: mediaTypeFor(rel),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %q: %w", r.root, err)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].URI < found[j].URI })

	r.mu.Lock()
	r.snapshot = found
	r.mu.Unlock()
	return nil
}

func (r *FSResources) uriFor(rel string) string {
	return r.baseURI + "/" + rel
}

// relFor maps a resource URI back to a root-relative path, rejecting URIs
// outside the base prefix or escaping the root.
func (r *FSResources) relFor(uri string) (string, bool) {
	rel, ok := strings.CutPrefix(uri, r.baseURI+"/")
	if !ok || rel == "" {
		return "", false
	}
	if !fs.ValidPath(rel) {
		return "", false
	}
	return rel, true
}

// ListResources implements ResourcesCapability.
func (r *FSResources) ListResources(ctx context.Context, session sessions.Session) ([]mcp.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Resource, len(r.snapshot))
	copy(out, r.snapshot)
	return out, nil
}

// ReadResource implements ResourcesCapability. Text files are returned as
// text contents, anything else as a base64 blob.
func (r *FSResources) ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	rel, ok := r.relFor(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
		}
		return nil, fmt.Errorf("read %q: %w", uri, err)
	}

	contents := mcp.ResourceContents{URI: uri, MimeType: mediaTypeFor(rel)}
	if utf8.Valid(data) {
		contents.Text = string(data)
	} else {
		contents.Blob = base64.StdEncoding.EncodeToString(data)
	}
	return []mcp.ResourceContents{contents}, nil
}

// mediaTypeFor infers a media type from the file extension and normalizes it,
// falling back to application/octet-stream.
func mediaTypeFor(rel string) string {
	raw := mime.TypeByExtension(path.Ext(rel))
	if raw == "" {
		return "application/octet-stream"
	}
	if mt := contenttype.NewMediaType(raw); mt.Type != "" {
		return mt.String()
	}
	return "application/octet-stream"
}
