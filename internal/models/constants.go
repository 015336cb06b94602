package models

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

const (
	// DefaultHoldTTL время жизни удержания слота
	DefaultHoldTTL = 5 * 60 // 5 минут в секундах

	// DefaultMaxAdvanceDays горизонт записи
	DefaultMaxAdvanceDays = 90

	// DefaultCheckInLeadDays за сколько дней до визита разрешена регистрация
	DefaultCheckInLeadDays = 1

	// DefaultFanoutBuffer размер исходящей очереди событий
	DefaultFanoutBuffer = 1024

	// NotificationQueueSize размер очереди уведомлений
	NotificationQueueSize = 1000

	// GuestHolderPrefix префикс владельца удержания для гостей
	GuestHolderPrefix = "guest:"
)
