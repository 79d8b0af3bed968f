// Package events mirrors board broadcasts onto Redis pub/sub so other
// processes can follow a board without holding a WebSocket.
package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel of one board.
func Channel(boardID string) string {
	return "board:" + boardID + ":events"
}

type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

func (p *Publisher) Publish(ctx context.Context, boardID string, payload []byte) error {
	if err := p.redis.Publish(ctx, Channel(boardID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(boardID), err)
	}
	return nil
}

// Subscribe calls handle with every event of boardID until ctx is done.
// ready, if not nil, is called once Redis has confirmed the subscription.
func Subscribe(ctx context.Context, redisClient *redis.Client, boardID string, ready func(), handle func(payload []byte)) error {
	pubsub := redisClient.Subscribe(ctx, Channel(boardID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", Channel(boardID), err)
	}
	if ready != nil {
		ready()
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle([]byte(msg.Payload))
		}
	}
}
