// Package gateway is the transport boundary. A separate gateway process
// owns the chat platform connection (polling, credentials, delivery) and
// bridges it onto NATS; this client consumes inbound message events and
// publishes replies back for the gateway to deliver.
package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectInbound carries one chat.Message envelope per observed message.
	SubjectInbound = "chat.telegram.message"

	// SubjectOutbound carries Reply payloads for the gateway to deliver.
	SubjectOutbound = "chat.telegram.send"

	// SubjectRegistered announces the bot's presence at startup.
	SubjectRegistered = "chat.agent.perch.registered"
)

// Reply asks the gateway to send text into a chat as a reply to a
// specific message. Plain text, no markup.
type Reply struct {
	ChatID           int64  `json:"chat_id"`
	ReplyToMessageID int64  `json:"reply_to_message_id"`
	Text             string `json:"text"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// SendReply publishes an outbound reply for the gateway to deliver.
func (c *Client) SendReply(chatID, replyToMessageID int64, text string) error {
	return c.Publish(SubjectOutbound, Reply{
		ChatID:           chatID,
		ReplyToMessageID: replyToMessageID,
		Text:             text,
	})
}

// Subscribe registers a handler for a subject. Each delivery is handled
// on its own goroutine; a panic in one event's handler is recovered and
// logged so the subscription keeps serving subsequent events.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		go dispatch(c.logger, msg.Subject, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func dispatch(logger *slog.Logger, subject string, data []byte, handler func(subject string, data []byte)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in event handler", "subject", subject, "panic", r)
		}
	}()
	handler(subject, data)
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
