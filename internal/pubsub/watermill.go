package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBridge implements Publisher and Subscriber on top of watermill.
// The default constructor uses the in-process GoChannel transport; any other
// watermill-compatible backbone (Kafka, Redis streams, NATS) can be swapped
// in by constructing the bridge with different publisher/subscriber pairs.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter
}

const (
	// Metadata keys used to transfer our Message structure fields through
	// watermill's message.
	metaKeyUserID = "user_id"
	metaKeyTopic  = "topic"
)

// NewWatermillBridge initializes the in-memory Pub/Sub backbone.
func NewWatermillBridge() *WatermillBridge {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(gochannel.Config{}, logger)

	return &WatermillBridge{
		pub:    goChannel,
		sub:    goChannel,
		logger: logger,
	}
}

// toWatermill converts our pubsub.Message to a watermill message.
func toWatermill(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	return wmMsg
}

// fromWatermill converts a watermill message back to our pubsub.Message.
func fromWatermill(wmMsg *message.Message) Message {
	metadata := make(map[string]string)
	for k, v := range wmMsg.Metadata {
		if k != metaKeyUserID && k != metaKeyTopic {
			metadata[k] = v
		}
	}

	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		UserID:   wmMsg.Metadata.Get(metaKeyUserID),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish implements the Publisher interface.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	return wb.pub.Publish(msg.Topic, toWatermill(msg))
}

// Subscribe implements the Subscriber interface. The handler runs on a
// background goroutine; Subscribe itself returns once the subscription is
// established.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := fromWatermill(wmMsg)
			if err := handler(ctx, msg); err != nil {
				slog.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
				// For the in-memory transport there is no redelivery; we log
				// and acknowledge via Nack so watermill can account for it.
				wmMsg.Nack()
			} else {
				wmMsg.Ack()
			}
		}
		slog.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close shuts down the bridge and stops message consumption.
func (wb *WatermillBridge) Close() error {
	return wb.sub.Close()
}
