// Package source resolves a plugin's main reference to Lua source code.
//
// A reference is one of:
//
//	relative/or/absolute/path.lua   local file, relative to the resolver base
//	file:///abs/path.lua            local file
//	https://host/plugin.lua         remote file (http and https)
//	data:text/x-lua;base64,...      inline source
package source

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxSize bounds how much source is read from any origin.
const DefaultMaxSize = 4 << 20

// DefaultHTTPTimeout bounds remote fetches when the resolver has no client.
const DefaultHTTPTimeout = 10 * time.Second

// InlineMediaType is the media type written by InlineRef.
const InlineMediaType = "text/x-lua"

// Errors returned by Resolve.
var (
	ErrEmptyRef     = errors.New("empty main reference")
	ErrUnsupported  = errors.New("unsupported main reference")
	ErrTooLarge     = errors.New("source exceeds size limit")
	ErrBadInline    = errors.New("malformed inline source")
	ErrRemoteStatus = errors.New("unexpected HTTP status")
)

// Kind classifies where source came from.
type Kind int

const (
	// KindFile is a local file.
	KindFile Kind = iota
	// KindRemote is an http(s) URL.
	KindRemote
	// KindInline is a data URI.
	KindInline
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindRemote:
		return "remote"
	case KindInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Source is resolved plugin code.
type Source struct {
	Ref  string
	Kind Kind
	// Path is set for KindFile.
	Path string
	// Name is used as the Lua chunk name in error messages.
	Name string
	Code []byte
	Hash string
}

// Resolver turns main references into Source.
type Resolver struct {
	// BaseDir anchors relative file references.
	BaseDir string
	// Client performs remote fetches.
	Client *http.Client
	// MaxSize bounds source size. Zero means DefaultMaxSize.
	MaxSize int64
}

// NewResolver creates a resolver rooted at baseDir with the given remote timeout.
func NewResolver(baseDir string, httpTimeout time.Duration) *Resolver {
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	return &Resolver{
		BaseDir: baseDir,
		Client:  &http.Client{Timeout: httpTimeout},
	}
}

func (r *Resolver) maxSize() int64 {
	if r == nil || r.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return r.MaxSize
}

// Classify reports the kind of ref without reading it.
func Classify(ref string) (Kind, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return 0, ErrEmptyRef
	case strings.HasPrefix(ref, "data:"):
		return KindInline, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return KindRemote, nil
	case strings.HasPrefix(ref, "file://"):
		return KindFile, nil
	case strings.Contains(ref, "://"):
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, ref)
	default:
		return KindFile, nil
	}
}

// LocalPath returns the absolute file path for a file reference.
func (r *Resolver) LocalPath(ref string) (string, bool) {
	kind, err := Classify(ref)
	if err != nil || kind != KindFile {
		return "", false
	}
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", false
		}
		return filepath.Clean(filepath.FromSlash(u.Path)), true
	}
	path := filepath.FromSlash(ref)
	if !filepath.IsAbs(path) && r != nil && r.BaseDir != "" {
		path = filepath.Join(r.BaseDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path), true
	}
	return abs, true
}

// Resolve reads the code behind ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Source, error) {
	kind, err := Classify(ref)
	if err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)

	src := &Source{Ref: ref, Kind: kind}
	switch kind {
	case KindInline:
		src.Name = "inline"
		src.Code, err = DecodeInline(ref)
	case KindRemote:
		src.Name = ref
		src.Code, err = r.fetch(ctx, ref)
	case KindFile:
		path, _ := r.LocalPath(ref)
		src.Path = path
		src.Name = filepath.Base(path)
		src.Code, err = r.readFile(path)
	}
	if err != nil {
		return nil, err
	}
	src.Hash = Hash(src.Code)
	return src, nil
}

func (r *Resolver) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.readLimited(f)
}

func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, error) {
	client := http.DefaultClient
	if r != nil && r.Client != nil {
		client = r.Client
	}
	if client.Timeout == 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHTTPTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrRemoteStatus, resp.Status)
	}
	return r.readLimited(resp.Body)
}

func (r *Resolver) readLimited(rd io.Reader) ([]byte, error) {
	limit := r.maxSize()
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// DecodeInline decodes a data URI. Both base64 and percent-encoded payloads
// are accepted; the media type is not checked.
func DecodeInline(ref string) ([]byte, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, ErrBadInline
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, ErrBadInline
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadInline, err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInline, err)
	}
	return []byte(s), nil
}

// InlineRef encodes code as a base64 data URI.
func InlineRef(code string) string {
	return "data:" + InlineMediaType + ";base64," + base64.StdEncoding.EncodeToString([]byte(code))
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
