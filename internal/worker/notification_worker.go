package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/service"
)

// StartNotificationWorker subscribes the notification handlers to every ticket event.
// When RABBITMQ_URL is set, events are also forwarded to the configured queue through
// an EventForwarder, so ticket writes never wait on the broker. The returned publisher
// is nil when no broker is configured; otherwise the caller must Close it on shutdown.
func StartNotificationWorker(dispatcher events.Dispatcher, cfg config.EventsConfig, logger *zap.Logger) events.Publisher {
	if dispatcher == nil {
		return nil
	}

	var publisher events.Publisher
	if cfg.RabbitMQURL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.Queue, cfg.DialTimeout, logger)
		publisher = NewEventForwarder(amqpPublisher, cfg.BufferSize, cfg.PublishTimeout, logger)
	} else {
		logger.Info("RABBITMQ_URL not provided; ticket events are logged only")
	}

	service.NewNotificationService(dispatcher, publisher, logger).RegisterHandlers()
	return publisher
}
