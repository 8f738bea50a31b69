package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// GatewayPusher posts payloads to an external WebSocket gateway's management
// API: POST {endpoint}/@connections/{id}. The gateway answers 410 Gone for
// connections it no longer holds.
type GatewayPusher struct {
	endpoint string
	client   *http.Client
}

func NewGatewayPusher(endpoint string, client *http.Client) *GatewayPusher {
	if client == nil {
		client = http.DefaultClient
	}
	return &GatewayPusher{endpoint: endpoint, client: client}
}

func (p *GatewayPusher) Send(ctx context.Context, connectionID string, payload []byte) error {
	target := fmt.Sprintf("%s/@connections/%s", p.endpoint, url.PathEscape(connectionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post to %s", connectionID)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusGone:
		return errors.Wrapf(ErrGone, "gateway has no connection %s", connectionID)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return errors.Errorf("gateway answered %d for %s", resp.StatusCode, connectionID)
	}
}
