package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"content_aggregator/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionComment = "comment"
)

// ContentEvent is the public view of a stored content. Secret and raw
// upstream fields are never published.
type ContentEvent struct {
	ID           int64      `json:"id"`
	UniqueID     string     `json:"unique_id"`
	AuthorID     *int64     `json:"author_id,omitempty"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

type ContentMessage struct {
	Action    string       `json:"action"` // "create" or "update"
	Content   ContentEvent `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

type CommentEvent struct {
	ID        int64  `json:"id"`
	UniqueID  string `json:"unique_id"`
	ContentID int64  `json:"content_id"`
	Text      string `json:"text"`
}

type CommentMessage struct {
	Action    string       `json:"action"`
	Comment   CommentEvent `json:"comment"`
	Timestamp time.Time    `json:"timestamp"`
}

func (r *RabbitMQ) PublishContent(ctx context.Context, content *domain.Content, result domain.UpsertResult) error {
	action := ActionUpdate
	if result == domain.UpsertCreated {
		action = ActionCreate
	}

	msg := ContentMessage{
		Action: action,
		Content: ContentEvent{
			ID:           content.ID,
			UniqueID:     content.UniqueID,
			AuthorID:     content.AuthorID,
			URL:          content.URL,
			Title:        content.Title,
			ThumbnailURL: content.ThumbnailURL,
			Timestamp:    content.Timestamp,
		},
		Timestamp: time.Now().UTC(),
	}

	if err := r.publish(ctx, "content."+action, msg); err != nil {
		return err
	}

	r.logger.Debug("published content",
		"unique_id", content.UniqueID,
		"action", action,
	)

	return nil
}

func (r *RabbitMQ) PublishComment(ctx context.Context, comment *domain.Comment) error {
	msg := CommentMessage{
		Action: ActionComment,
		Comment: CommentEvent{
			ID:        comment.ID,
			UniqueID:  comment.UniqueID,
			ContentID: comment.ContentID,
			Text:      comment.Text,
		},
		Timestamp: time.Now().UTC(),
	}

	if err := r.publish(ctx, "comment.posted", msg); err != nil {
		return err
	}

	r.logger.Debug("published comment",
		"comment_id", comment.UniqueID,
		"content_id", comment.ContentID,
	)

	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, messageType string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         messageType,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
