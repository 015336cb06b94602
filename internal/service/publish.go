package service

import (
	"autoservice/internal/domain"

	"github.com/rs/zerolog"
)

func publishEvent(publisher domain.EventPublisher, logger *zerolog.Logger, eventType string, payload interface{}, groups ...string) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishJSON(eventType, payload, groups...); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Strs("groups", groups).Msg("publish event error")
	}
}
