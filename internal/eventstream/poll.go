package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// pollBatch is the long-poll endpoint's response shape.
type pollBatch struct {
	Events []Frame `json:"events"`
	Cursor string  `json:"cursor"`
}

// pollLoop delivers events over HTTP long polling until the context is
// cancelled or its retry window expires. It runs only after the websocket
// attempt budget is spent.
func (b *Bridge) pollLoop(ctx context.Context, tenant string) {
	if b.config.PollURL == "" || b.httpClient == nil {
		b.logger.Warn("no long-poll endpoint configured, event stream unavailable", "tenant", tenant)
		return
	}

	defer func() {
		b.connected.Store(false)
		b.transport.Store(TransportNone)
	}()

	cursor := ""
	announced := false

	for ctx.Err() == nil {
		batch, err := b.poll(ctx, tenant, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("long poll failed", "tenant", tenant, "error", err)
			b.connected.Store(false)
			b.transport.Store(TransportNone)
			announced = false
			if !sleepCtx(ctx, b.config.ReconnectDelay) {
				return
			}
			continue
		}

		if !announced {
			gen := b.generation.Add(1)
			b.connected.Store(true)
			b.transport.Store(TransportPolling)
			b.logger.Info("event stream connected over long polling",
				"tenant", tenant, "generation", gen)
			b.fireOnConnect()
			announced = true
		}

		if batch.Cursor != "" {
			cursor = batch.Cursor
		}
		for _, frame := range batch.Events {
			raw, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			b.dispatch(raw)
		}
	}
}

func (b *Bridge) poll(ctx context.Context, tenant, cursor string) (*pollBatch, error) {
	endpoint := fmt.Sprintf("%s?restaurantId=%s", b.config.PollURL, url.QueryEscape(tenant))
	if cursor != "" {
		endpoint += "&cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("long poll returned status %d", resp.StatusCode)
	}

	var batch pollBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decoding long poll batch: %w", err)
	}
	return &batch, nil
}
