package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sync"
	"time"

	"cipherchat/internal/domain"
	"cipherchat/internal/logger"
)

// DefaultPollInterval is how often the HTTP client refreshes a subscribed
// room when the caller does not choose an interval.
const DefaultPollInterval = 2 * time.Second

// Client talks to the relay dev server. Subscribe is implemented as a
// polling loop that diffs against the last-seen room state and emits
// added/modified/removed batches.
type Client struct {
	Base string
	HTTP *http.Client
	Poll time.Duration

	log *logger.Logger
}

func NewClient(base string, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{Base: base, HTTP: httpClient, Poll: DefaultPollInterval, log: log}
}

func (c *Client) AppendMessage(ctx context.Context, room domain.ChatRoomID, msg domain.EncryptedMessage) (domain.MessageID, error) {
	var out struct {
		ID domain.MessageID `json:"id"`
	}
	err := c.post(ctx, "/rooms/"+url.PathEscape(room.String())+"/messages", msg, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) Subscribe(ctx context.Context, room domain.ChatRoomID) (<-chan domain.ChangeBatch, domain.CancelFunc, error) {
	// Prove the room is reachable before handing out a feed.
	if _, err := c.listMessages(ctx, room); err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.ChangeBatch, 64)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	go c.pollLoop(ctx, room, ch, stop)
	return ch, cancel, nil
}

func (c *Client) pollLoop(ctx context.Context, room domain.ChatRoomID, ch chan<- domain.ChangeBatch, stop <-chan struct{}) {
	defer close(ch)

	interval := c.Poll
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	known := make(map[domain.MessageID]domain.EncryptedMessage)
	for {
		msgs, err := c.listMessages(ctx, room)
		if err != nil {
			c.log.Warn("room poll failed", "room", room, "err", err)
		} else if batch := diff(known, msgs); len(batch) > 0 {
			select {
			case ch <- batch:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// diff compares the last-seen room state with a fresh listing and updates
// known in place.
func diff(known map[domain.MessageID]domain.EncryptedMessage, msgs []domain.EncryptedMessage) domain.ChangeBatch {
	var batch domain.ChangeBatch
	seen := make(map[domain.MessageID]struct{}, len(msgs))
	for _, m := range msgs {
		seen[m.ID] = struct{}{}
		prev, ok := known[m.ID]
		switch {
		case !ok:
			batch = append(batch, domain.Change{Type: domain.ChangeAdded, Message: m})
		case !reflect.DeepEqual(prev, m):
			batch = append(batch, domain.Change{Type: domain.ChangeModified, Message: m})
		}
		known[m.ID] = m
	}
	for id, m := range known {
		if _, ok := seen[id]; !ok {
			batch = append(batch, domain.Change{Type: domain.ChangeRemoved, Message: m})
			delete(known, id)
		}
	}
	return batch
}

func (c *Client) GetPublicKey(ctx context.Context, user domain.UserID) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/users/"+url.PathEscape(user.String())+"/key", nil)
	if err != nil {
		return "", false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode/100 != 2 {
		return "", false, fmt.Errorf("relay get key for %s: %s", user, resp.Status)
	}
	var out struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, err
	}
	return out.PublicKey, out.PublicKey != "", nil
}

func (c *Client) PublishPublicKey(ctx context.Context, user domain.UserID, pem string) error {
	body := struct {
		PublicKey string `json:"publicKey"`
	}{PublicKey: pem}
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.Base+"/users/"+url.PathEscape(user.String())+"/key", buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay publish key for %s: %s", user, resp.Status)
	}
	return nil
}

func (c *Client) listMessages(ctx context.Context, room domain.ChatRoomID) ([]domain.EncryptedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/rooms/"+url.PathEscape(room.String())+"/messages", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("relay list %s: %s", room, resp.Status)
	}
	var msgs []domain.EncryptedMessage
	return msgs, json.NewDecoder(resp.Body).Decode(&msgs)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay post %s: %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ domain.RemoteStore = (*Client)(nil)
