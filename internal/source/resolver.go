// Package source validates and fetches a card's source image from a
// remote URL, a base64 payload, or raw upload bytes.
package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cardsmith/og-card-service/internal/ogcard"
)

const (
	maxRedirects = 3
	userAgent    = "og-card-service/0.1"

	// inlineSourceRef is the source reference recorded for base64
	// payloads, which have no natural name.
	inlineSourceRef = "base64-inline"
	// defaultUploadRef is used when an upload carries no filename.
	defaultUploadRef = "uploaded-file"
)

var allowedMimeTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// Input specifies at most one image source. Resolve rejects anything
// other than exactly one populated arm.
type Input struct {
	URL      string
	Base64   string
	Bytes    []byte
	FileName string
}

// Result carries the raw image bytes plus how they were obtained.
type Result struct {
	Data []byte
	Kind ogcard.SourceKind
	Ref  string
}

// Config bounds source acquisition.
type Config struct {
	MaxBytes            int64
	FetchTimeout        time.Duration
	AllowPrivateNetwork bool
}

// lookupFunc resolves a hostname to its addresses; swapped in tests.
type lookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Resolver fetches and validates source images under size, time, and
// network constraints.
type Resolver struct {
	cfg    Config
	client *http.Client
	lookup lookupFunc
}

// New creates a Resolver. The HTTP client never follows redirects on
// its own; every hop is re-validated by Resolve.
func New(cfg Config) *Resolver {
	return &Resolver{
		cfg: cfg,
		client: &http.Client{
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// Resolve obtains the source image bytes for in.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Result, error) {
	populated := 0
	if strings.TrimSpace(in.URL) != "" {
		populated++
	}
	if strings.TrimSpace(in.Base64) != "" {
		populated++
	}
	if len(in.Bytes) > 0 {
		populated++
	}
	if populated != 1 {
		return Result{}, ogcard.NewError(
			ogcard.CodeInvalidSource,
			"provide exactly one image source: source_image_url, source_image_base64, or source_image_file",
			http.StatusBadRequest,
		)
	}

	switch {
	case len(in.Bytes) > 0:
		return r.resolveUpload(in)
	case strings.TrimSpace(in.Base64) != "":
		return r.resolveBase64(in.Base64)
	default:
		return r.resolveRemote(ctx, strings.TrimSpace(in.URL))
	}
}

func (r *Resolver) resolveUpload(in Input) (Result, error) {
	if int64(len(in.Bytes)) > r.cfg.MaxBytes {
		return Result{}, r.tooLarge("uploaded image")
	}
	ref := strings.TrimSpace(in.FileName)
	if ref == "" {
		ref = defaultUploadRef
	}
	return Result{Data: in.Bytes, Kind: ogcard.SourceUpload, Ref: ref}, nil
}

func (r *Resolver) resolveBase64(payload string) (Result, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "data:") {
		comma := strings.IndexByte(trimmed, ',')
		if comma < 0 {
			return Result{}, ogcard.NewError(ogcard.CodeInvalidBase64, "invalid data URL format", http.StatusBadRequest)
		}
		trimmed = trimmed[comma+1:]
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return Result{}, ogcard.NewError(ogcard.CodeInvalidBase64, "source_image_base64 must be valid base64", http.StatusBadRequest)
	}
	if len(decoded) == 0 {
		return Result{}, ogcard.NewError(ogcard.CodeInvalidBase64, "source_image_base64 decoded to empty payload", http.StatusBadRequest)
	}
	if int64(len(decoded)) > r.cfg.MaxBytes {
		return Result{}, r.tooLarge("base64 image")
	}
	return Result{Data: decoded, Kind: ogcard.SourceBase64, Ref: inlineSourceRef}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return Result{}, ogcard.NewError(ogcard.CodeInvalidURL, "source_image_url must be a valid URL", http.StatusBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	data, err := r.fetchRemote(ctx, parsed)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Kind: ogcard.SourceURL, Ref: rawURL}, nil
}

// fetchRemote walks the redirect chain by hand so that every hop gets
// the full protocol and private-network checks.
func (r *Resolver) fetchRemote(ctx context.Context, target *url.URL) ([]byte, error) {
	current := target
	for redirects := 0; ; {
		if current.Scheme != "http" && current.Scheme != "https" {
			return nil, ogcard.NewError(ogcard.CodeInvalidURLProtocol, "only http:// and https:// URLs are allowed", http.StatusBadRequest)
		}
		if err := r.assertPublicHost(ctx, current.Hostname()); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, ogcard.NewError(ogcard.CodeInvalidURL, "source_image_url must be a valid URL", http.StatusBadRequest)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, ogcard.NewError(
				ogcard.CodeRemoteFetchFailed,
				fmt.Sprintf("remote image fetch failed: %v", err),
				http.StatusUnprocessableEntity,
			)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			drainAndClose(resp.Body)
			if location == "" {
				return nil, ogcard.NewError(ogcard.CodeRedirectNoLocation, "redirect response was missing location header", http.StatusUnprocessableEntity)
			}
			next, err := current.Parse(location)
			if err != nil {
				return nil, ogcard.NewError(ogcard.CodeInvalidURL, "redirect location was not a valid URL", http.StatusBadRequest)
			}
			redirects++
			if redirects > maxRedirects {
				return nil, ogcard.NewError(ogcard.CodeTooManyRedirects, "remote image exceeded redirect limit", http.StatusUnprocessableEntity)
			}
			current = next
			continue
		}

		return r.readTerminalResponse(resp)
	}
}

func (r *Resolver) readTerminalResponse(resp *http.Response) ([]byte, error) {
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ogcard.NewError(
			ogcard.CodeRemoteFetchFailed,
			fmt.Sprintf("remote image returned HTTP %d", resp.StatusCode),
			http.StatusUnprocessableEntity,
		)
	}

	mimeType := strings.ToLower(strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0]))
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		if mimeType == "" {
			mimeType = "unknown"
		}
		return nil, ogcard.NewError(ogcard.CodeUnsupportedMimeType, "remote image must be png, jpeg, or webp", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"contentType": mimeType})
	}

	// Trust content-length only to reject early; the body is still
	// counted while streaming in case the server lies.
	if declared := resp.Header.Get("Content-Length"); declared != "" {
		if length, err := strconv.ParseInt(declared, 10, 64); err == nil && length > r.cfg.MaxBytes {
			return nil, r.tooLarge("source image")
		}
	}

	return r.readBodyWithLimit(resp.Body)
}

func (r *Resolver) readBodyWithLimit(body io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	var total int64
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > r.cfg.MaxBytes {
				return nil, r.tooLarge("source image")
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ogcard.NewError(
				ogcard.CodeRemoteFetchFailed,
				fmt.Sprintf("reading remote image failed: %v", err),
				http.StatusUnprocessableEntity,
			)
		}
	}
	if total == 0 {
		return nil, ogcard.NewError(ogcard.CodeEmptyResponse, "remote image response body was empty", http.StatusUnprocessableEntity)
	}
	return buf.Bytes(), nil
}

func (r *Resolver) assertPublicHost(ctx context.Context, hostname string) error {
	if r.cfg.AllowPrivateNetwork {
		return nil
	}
	addrs, err := r.lookup(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		return ogcard.NewError(
			ogcard.CodeDNSResolutionFailed,
			fmt.Sprintf("unable to resolve hostname: %s", hostname),
			http.StatusBadRequest,
		)
	}
	for _, addr := range addrs {
		if isPrivateAddr(addr) {
			return ogcard.NewError(ogcard.CodePrivateNetworkBlocked, "private network addresses are blocked", http.StatusBadRequest)
		}
	}
	return nil
}

func (r *Resolver) tooLarge(what string) error {
	return ogcard.NewError(
		ogcard.CodeSourceTooLarge,
		fmt.Sprintf("%s exceeded %d bytes", what, r.cfg.MaxBytes),
		http.StatusUnprocessableEntity,
	).WithDetails(map[string]any{"maxBytes": r.cfg.MaxBytes})
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4*1024))
	_ = body.Close()
}
