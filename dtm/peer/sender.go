// Package peer delivers compensation vectors to the DTM instances of
// remote peers over HTTP.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// CompensationPath is the endpoint a remote DTM accepts compensation on.
const CompensationPath = "/v1/dtm/compensation"

// DefaultTimeout bounds one delivery when the caller's context has no deadline.
const DefaultTimeout = 10 * time.Second

// Message is the body of a compensation delivery.
type Message struct {
	Compensation dtm.CompensationVector `json:"compensation"`
	Reference    *dtm.ReferenceVector   `json:"reference,omitempty"`
}

// HTTPSender posts compensation vectors as JSON.
type HTTPSender struct {
	scheme     string
	httpClient *http.Client
}

// NewHTTPSender creates a sender whose requests time out after timeout.
// A non-positive timeout selects DefaultTimeout.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSender{
		scheme:     "http",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send implements dtm.PeerSender. Any status other than 200 or 202 is an error.
func (s *HTTPSender) Send(ctx context.Context, addr dtm.PeerAddress, c dtm.CompensationVector, r *dtm.ReferenceVector) error {
	body, err := json.Marshal(Message{Compensation: c, Reference: r})
	if err != nil {
		return fmt.Errorf("marshal compensation: %w", err)
	}
	url := s.scheme + "://" + addr.String() + CompensationPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request creation: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("deliver to %s: HTTP %d: %s", addr, resp.StatusCode, bytes.TrimSpace(data))
	}
	logrus.WithFields(logrus.Fields{"as": c.SourceAS, "peer": addr.String()}).
		Debugf("compensation delivered (reference=%t)", r != nil)
	return nil
}
