package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading startup data sources.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Router dispatches a source location to the fetcher for its scheme.
// http and https go to HTTP, ftp to FTP, and file URLs or bare paths are
// read from the local filesystem.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter creates a Router from the configured transports.
func NewRouter(httpF, ftpF Fetcher) *Router {
	return &Router{HTTP: httpF, FTP: ftpF}
}

// Download opens the source at location.
func (r *Router) Download(ctx context.Context, location string) (io.ReadCloser, error) {
	f, path, err := r.route(location)
	if err != nil {
		return nil, err
	}
	if f == nil {
		file, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		return file, nil
	}
	return f.Download(ctx, location)
}

// DownloadToFile copies the source at location to path.
func (r *Router) DownloadToFile(ctx context.Context, location string, path string) (int64, error) {
	body, err := r.Download(ctx, location)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}

// route returns the fetcher for location, or nil plus a filesystem path
// for local sources.
func (r *Router) route(location string) (Fetcher, string, error) {
	if location == "" {
		return nil, "", eris.New("fetcher: empty source location")
	}
	if !strings.Contains(location, "://") {
		return nil, location, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, "", eris.Wrapf(err, "fetcher: parse %q", location)
	}
	switch u.Scheme {
	case "http", "https":
		if r.HTTP == nil {
			return nil, "", eris.Errorf("fetcher: no http transport for %s", location)
		}
		return r.HTTP, "", nil
	case "ftp":
		if r.FTP == nil {
			return nil, "", eris.Errorf("fetcher: no ftp transport for %s", location)
		}
		return r.FTP, "", nil
	case "file":
		return nil, u.Path, nil
	default:
		return nil, "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}
