package main

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/cache"
	config "github.com/tutorhub/api/configs"
	"github.com/tutorhub/api/events"
	"github.com/tutorhub/api/storage"
)

// buildCache uses redis when REDIS_URL is set and falls back to an
// uncached store with in-process locks otherwise.
func buildCache(cfg *config.Config, log zerolog.Logger) (cache.Store, cache.Locker, func()) {
	if cfg.Redis.URL == "" {
		log.Warn().Msg("REDIS_URL not set, caching disabled and job locks are process-local")
		return cache.NopStore{}, cache.NewLocalLocker(), func() {}
	}
	client, err := cache.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable, caching disabled and job locks are process-local")
		return cache.NopStore{}, cache.NewLocalLocker(), func() {}
	}
	return cache.NewRedisStore(client), cache.NewRedisLocker(client), func() { client.Close() }
}

func buildUploader(cfg *config.Config, log zerolog.Logger) (storage.Uploader, error) {
	switch cfg.Storage.Driver {
	case "cloudinary":
		return storage.NewCloudinary(cfg.Storage.CloudinaryURL)
	case "minio":
		m := cfg.Storage.MinIO
		return storage.NewMinio(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.Region, m.UseSSL)
	default:
		log.Warn().Msg("STORAGE_DRIVER is none, uploads are kept in memory")
		return storage.NewMemory(), nil
	}
}

// buildPublisher always publishes to the local bus that feeds
// notifications, and additionally to the configured broker.
func buildPublisher(cfg *config.Config, bus *gochannel.GoChannel, log zerolog.Logger) (events.Publisher, error) {
	local := events.NewWatermillPublisher(bus, cfg.Events.Topic, log)

	switch cfg.Events.Broker {
	case "kafka":
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers(), cfg.Events.Topic, log)
		if err != nil {
			return nil, err
		}
		return events.Fanout{local, kafka}, nil
	case "amqp":
		amqp, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log)
		if err != nil {
			return nil, err
		}
		return events.Fanout{local, amqp}, nil
	case "memory":
		return local, nil
	default:
		return nil, fmt.Errorf("unknown events broker %q", cfg.Events.Broker)
	}
}
