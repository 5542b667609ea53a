package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "veritas"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRuleUpdate — широковещательный сигнал "правила изменились".
	// Консоль публикует после каждой новой версии, все инстансы движка
	// перечитывают кэш правил из Postgres.
	RedisChanRuleUpdate = RedisNamespace + ":rules:update"

	// RedisChanVerdicts — межинстансовый мост fan-out: каждый вердикт
	// транслируется сюда, чтобы подписчики на других инстансах тоже его получили.
	RedisChanVerdicts = RedisNamespace + ":verdicts:events"
)
