package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"taskdesk/internal/config"
	"taskdesk/internal/domain"
	"taskdesk/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher polls newly created notifications and forwards them
// to configured webhook targets. Delivery is best-effort: a failed POST
// leaves the cursor in place so the batch is retried next tick, and
// errors never reach the task mutation path.
type webhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   *log.Logger
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartWebhookDispatcher launches the forwarder goroutine when webhook
// targets are configured. ctx cancellation stops it.
func StartWebhookDispatcher(ctx context.Context, r repo.Repo, webhooks []config.WebhookConfig, logger *log.Logger) {
	if len(webhooks) == 0 {
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &webhookDispatcher{
		repo:     r,
		webhooks: webhooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger,
		cursors:  make(map[int]int64),
	}
	go d.run(ctx)
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, wh := range d.webhooks {
		d.mu.Lock()
		cursor := d.cursors[i]
		d.mu.Unlock()
		items, last, err := d.repo.NotificationsAfter(ctx, cursor, defaultWebhookBatch)
		if err != nil {
			d.logger.Printf("notify: webhook poll failed: %v", err)
			continue
		}
		if len(items) == 0 {
			continue
		}
		filtered := filterTypes(items, wh.Types)
		if len(filtered) > 0 {
			if err := d.post(ctx, wh.URL, filtered); err != nil {
				d.logger.Printf("notify: webhook post to %s failed: %v", wh.URL, err)
				continue
			}
		}
		d.mu.Lock()
		d.cursors[i] = last
		d.mu.Unlock()
	}
}

func (d *webhookDispatcher) post(ctx context.Context, url string, items []domain.Notification) error {
	payload, err := json.Marshal(map[string]any{"notifications": items})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func filterTypes(items []domain.Notification, types []string) []domain.Notification {
	if len(types) == 0 {
		return items
	}
	allowed := map[string]bool{}
	for _, t := range types {
		allowed[t] = true
	}
	var out []domain.Notification
	for _, n := range items {
		if allowed[n.Type] {
			out = append(out, n)
		}
	}
	return out
}
