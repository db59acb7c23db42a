package models

const (
	// DefaultStatsCacheTTL время жизни кэша статистики в секундах
	DefaultStatsCacheTTL = 10 * 60

	// TrendMonths количество месяцев в тренде посещаемости
	TrendMonths = 6

	// TrendLabelLayout формат подписи месяца в тренде ("Jan 2006")
	TrendLabelLayout = "Jan 2006"

	// UndefinedProgrammeType метка для программ без типа
	UndefinedProgrammeType = "Undefined"

	// DefaultMaxAdvanceDays на сколько дней вперёд можно бронировать
	DefaultMaxAdvanceDays = 365

	// DefaultSlotStepMinutes шаг сетки свободных слотов
	DefaultSlotStepMinutes = 30

	// MaxSessionsPerProgramme ограничение на разворачивание повторяющихся программ
	MaxSessionsPerProgramme = 1000

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRPS и RateLimitBurst значения по умолчанию для API
	RateLimitRPS   = 10
	RateLimitBurst = 20
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04"
)
