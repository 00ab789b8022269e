// Package fetcher retrieves artifact payloads from local paths and remote
// sources (HTTP(S), FTP) for ingest.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Open returns a reader for a local path or a supported URL. Scheme-less
// arguments and file:// URLs open the local filesystem; http(s) and ftp
// dispatch to the matching fetcher.
func Open(ctx context.Context, pathOrURL string) (io.ReadCloser, error) {
	if u, err := url.Parse(pathOrURL); err == nil {
		switch u.Scheme {
		case "http", "https":
			return NewHTTPFetcher(HTTPOptions{}).Download(ctx, pathOrURL)
		case "ftp":
			return NewFTPFetcher(FTPOptions{}).Download(ctx, pathOrURL)
		case "file":
			return openLocal(u.Path)
		}
	}
	return openLocal(pathOrURL)
}

func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open local file")
	}
	return f, nil
}

// saveTo drains rc into a file at path and closes rc.
func saveTo(rc io.ReadCloser, path string) (int64, error) {
	defer rc.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
