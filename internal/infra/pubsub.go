package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListenResilient держит подписку на канал Redis живой: при потере
// соединения переподписывается и зовет onReconnect для ресинхронизации
// состояния. Общая механика для кэша правил (сигнал "refresh") и моста
// fan-out (JSON событий). Блокируется до отмены контекста.
func ListenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error,
	onMessage func(payload string),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			// Подписка не подтвердилась: пауза и новая попытка
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("subscribe failed", zap.String("chan", channel), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		// Пока подписки не было, сигналы могли потеряться — ресинхронизация
		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				logger.Error("resync after (re)subscribe failed", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					// Соединение упало, go-redis закрыл канал
					break loop
				}
				onMessage(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
