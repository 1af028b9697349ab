package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/stepflow/pkg/channels/gochannel"
	"github.com/dukex/stepflow/pkg/channels/kafka"
)

// NewChannel builds the step event channel. "kafka" fans events out across
// processes; anything else gets the in-process gochannel.
func NewChannel(provider, serviceName string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, serviceName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka channel: %w", err)
		}

		return pub, sub, nil
	case "", "gochannel", "memory":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, nil, err
		}

		return pub, sub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported channel provider: %s", provider)
	}
}
