package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/altiplano-labs/archivador/pkg/logging"
)

// Twilio caps WhatsApp media at 16 MB; anything larger is rejected upstream.
const maxMediaBytes = 16 << 20

// MediaFetcher retrieves a media attachment from its origin URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL string) (data []byte, contentType string, err error)
}

// TwilioMediaFetcher downloads media from Twilio's media endpoints using
// basic auth. Twilio media URLs require account credentials.
type TwilioMediaFetcher struct {
	accountSID string
	authToken  string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewTwilioMediaFetcher(accountSID, authToken string, timeout time.Duration, logger *logging.Logger) *TwilioMediaFetcher {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwilioMediaFetcher{
		accountSID: accountSID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

var _ MediaFetcher = (*TwilioMediaFetcher)(nil)

func (f *TwilioMediaFetcher) Fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("messaging: build media request: %w", err)
	}
	if f.accountSID != "" && f.authToken != "" {
		req.SetBasicAuth(f.accountSID, f.authToken)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("messaging: fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("messaging: fetch media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("messaging: read media body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("messaging: media exceeds %d bytes", maxMediaBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
