// Package wsfeed implements the realtime ChannelClient over a WebSocket
// change feed.
//
// One connection is opened per channel subscription. The client sends a
// subscribe frame naming the table and row filter, then relays every event
// frame to the returned channel until the context is cancelled or the
// connection drops.
package wsfeed

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/weekfold/weekfold/internal/model"
	"github.com/weekfold/weekfold/internal/realtime"
)

// Client dials the change-feed endpoint.
type Client struct {
	url    string
	token  string
	logger *log.Logger
}

// New creates a feed client for the given WebSocket URL. If logger is nil,
// a default logger writing to stderr is used.
func New(url, token string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[wsfeed] ", log.LstdFlags)
	}
	return &Client{url: url, token: token, logger: logger}
}

// subscribeFrame is the first frame sent on a new connection.
type subscribeFrame struct {
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
	Token  string `json:"token,omitempty"`
}

// eventFrame is one change notification from the feed.
type eventFrame struct {
	Action string `json:"action"`
	RowID  string `json:"row_id,omitempty"`
}

// Subscribe implements realtime.ChannelClient. The returned channel closes
// when the subscription ends.
func (c *Client) Subscribe(ctx context.Context, table model.Collection, filter string) (<-chan realtime.Event, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	sub := subscribeFrame{Table: string(table), Filter: filter, Token: c.token}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	events := make(chan realtime.Event, 64)
	go c.readLoop(ctx, conn, table, events)
	return events, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, table model.Collection, events chan<- realtime.Event) {
	defer close(events)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var frame eventFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() == nil {
				c.logger.Printf("WARNING: read %s feed: %v", table, err)
			}
			return
		}

		ev := realtime.Event{
			Table:  table,
			Action: parseAction(frame.Action),
			RowID:  frame.RowID,
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func parseAction(s string) realtime.Action {
	switch s {
	case "insert", "update", "upsert":
		return realtime.ActionUpsert
	case "delete":
		return realtime.ActionDelete
	default:
		return realtime.ActionUnknown
	}
}
