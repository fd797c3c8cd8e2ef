// Package qbittorrent provides a client for interacting with the qBittorrent Web API.
//
// This package wraps the autobrr/go-qbittorrent library to provide the one
// operation a port sync needs: making the torrent client listen on the
// newly forwarded port.
//
// # Features
//
//   - Lazy authentication, retried with exponential backoff
//   - Per-request timeouts
//   - Idempotent sync: no write when the port is already set
//   - Read-back confirmation after a write
//
// # Usage
//
//	client := qbittorrent.NewClient(url, username, password, logger,
//		qbittorrent.WithTimeout(10*time.Second),
//		qbittorrent.WithMaxRetries(3),
//	)
//
//	result, err := client.Sync(ctx, 54321)
//	if err != nil {
//	    var apiErr *qbittorrent.APIError
//	    if errors.As(err, &apiErr) {
//	        // apiErr.Op names the call that failed
//	    }
//	}
package qbittorrent
