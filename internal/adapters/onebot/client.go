package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/domain"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	// ErrNotConnected is returned by API calls while no websocket session is established.
	ErrNotConnected = errors.New("onebot: not connected")

	// ErrAPIFailed is returned when the implementation answers with a non-ok status.
	ErrAPIFailed = errors.New("onebot: api call failed")
)

const readLimit = 8 << 20 // get_msg payloads can carry inline images

type apiRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type apiResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Echo    string          `json:"echo"`
}

// Client talks to a OneBot v11 implementation over its forward websocket endpoint.
// API calls are correlated with their responses by echo; pushed events are ignored.
type Client struct {
	logger         domain.Logger
	configProvider config.Provider

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[string]chan apiResponse
}

// NewClient creates a disconnected client. Run establishes and maintains the session.
func NewClient(logger domain.Logger, configProvider config.Provider) *Client {
	return &Client{
		logger:         logger.With("component", "onebot"),
		configProvider: configProvider,
		waiters:        make(map[string]chan apiResponse),
	}
}

// Connected reports whether a websocket session is currently established.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Run dials the configured endpoint and keeps reconnecting until ctx is done.
// It returns immediately when no endpoint is configured.
func (c *Client) Run(ctx context.Context) {
	for {
		cfg := c.configProvider.Get().OneBot
		if cfg.WSURL == "" {
			c.logger.Warn(ctx, "OneBot ws_url not configured, platform lookups will use fallbacks")
			return
		}

		conn, err := c.dial(ctx, cfg)
		if err != nil {
			c.logger.Error(ctx, "OneBot websocket dial failed", "url", cfg.WSURL, "error", err.Error())
		} else {
			c.logger.Info(ctx, "OneBot websocket connected", "url", cfg.WSURL)
			err = c.readLoop(ctx, conn)
			c.detach(conn)
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "shutting down")
				return
			}
			c.logger.Warn(ctx, "OneBot websocket disconnected", "error", errString(err))
			conn.CloseNow()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(cfg.ReconnectIntervalSeconds) * time.Second):
		}
	}
}

func (c *Client) dial(ctx context.Context, cfg config.OneBotConfig) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	header := http.Header{}
	if cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AccessToken)
	}
	conn, _, err := websocket.Dial(dialCtx, cfg.WSURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// detach forgets conn and fails every call still waiting for a response on it.
// It runs after readLoop has returned, so no send on a waiter can race the close.
func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	c.waitMu.Lock()
	for echo, waiter := range c.waiters {
		close(waiter)
		delete(c.waiters, echo)
	}
	c.waitMu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var resp apiResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			c.logger.Debug(ctx, "Ignoring undecodable OneBot frame", "error", err.Error())
			continue
		}
		if resp.Echo == "" {
			continue // event push
		}

		c.waitMu.Lock()
		waiter := c.waiters[resp.Echo]
		c.waitMu.Unlock()
		if waiter == nil {
			c.logger.Debug(ctx, "OneBot response for unknown echo", "echo", resp.Echo)
			continue
		}
		select {
		case waiter <- resp:
		default:
		}
	}
}

// call sends one API request and waits for its echoed response.
func (c *Client) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	echo := uuid.NewString()
	waiter := make(chan apiResponse, 1)
	c.waitMu.Lock()
	c.waiters[echo] = waiter
	c.waitMu.Unlock()
	defer func() {
		c.waitMu.Lock()
		delete(c.waiters, echo)
		c.waitMu.Unlock()
	}()

	payload, err := json.Marshal(apiRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", action, err)
	}

	timeout := time.Duration(c.configProvider.Get().OneBot.APITimeoutSeconds) * time.Second
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.writeMu.Lock()
	err = conn.Write(callCtx, websocket.MessageText, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s request: %w", action, err)
	}

	select {
	case resp, ok := <-waiter:
		if !ok {
			return nil, fmt.Errorf("%s: %w", action, ErrNotConnected)
		}
		if resp.Status == "failed" || (resp.Status != "ok" && resp.RetCode != 0) {
			msg := resp.Wording
			if msg == "" {
				msg = resp.Message
			}
			return nil, fmt.Errorf("%w: %s: retcode=%d %s", ErrAPIFailed, action, resp.RetCode, msg)
		}
		return resp.Data, nil
	case <-callCtx.Done():
		return nil, fmt.Errorf("%s: %w", action, callCtx.Err())
	}
}

// GetGroupInfo implements domain.ChatClient.
func (c *Client) GetGroupInfo(ctx context.Context, groupID int64) (domain.Record, error) {
	data, err := c.call(ctx, "get_group_info", map[string]any{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	return decodeRecord("get_group_info", data)
}

// GetGroupMemberInfo implements domain.ChatClient.
func (c *Client) GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (domain.Record, error) {
	data, err := c.call(ctx, "get_group_member_info", map[string]any{"group_id": groupID, "user_id": userID})
	if err != nil {
		return nil, err
	}
	return decodeRecord("get_group_member_info", data)
}

// GetMessage implements domain.ChatClient.
func (c *Client) GetMessage(ctx context.Context, messageID int64) (*domain.FetchedMessage, error) {
	data, err := c.call(ctx, "get_msg", map[string]any{"message_id": messageID})
	if err != nil {
		return nil, err
	}
	var raw struct {
		Time    json.Number     `json:"time"`
		Sender  domain.Record   `json:"sender"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode get_msg data: %w", err)
	}
	msg, err := ParseMessage(raw.Message)
	if err != nil {
		return nil, fmt.Errorf("parse quoted message %d: %w", messageID, err)
	}
	// Some implementations send fractional epochs.
	var ts int64
	if f, err := raw.Time.Float64(); err == nil {
		ts = int64(f)
	}
	return &domain.FetchedMessage{
		MessageID: messageID,
		Time:      ts,
		Sender:    raw.Sender,
		Message:   msg,
	}, nil
}

func decodeRecord(action string, data json.RawMessage) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", action, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s returned no data", ErrAPIFailed, action)
	}
	return rec, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
