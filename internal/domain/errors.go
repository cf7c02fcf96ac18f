package domain

import "errors"

var (
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка отрицательной итоговой суммы.
	ErrAmountNegative = errors.New("total_minor must be non-negative")
	// Ошибка некорректного количества в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка отрицательной цены позиции.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка расхождения итогов заказа с суммами позиций.
	ErrTotalsMismatch = errors.New("order totals do not match lines")
	// Ошибка отсутствующего факта оплаты в офлайн-записи.
	ErrPaymentRequired = errors.New("offline record requires a payment fact")
	// Ошибка недостаточной внесённой суммы при наличном расчёте.
	ErrTenderedInsufficient = errors.New("tendered amount is less than order total")
	// Ошибка отсутствующего локального идентификатора.
	ErrLocalIDRequired = errors.New("local_id is required")
	// Ошибка неподдерживаемого статуса сверки.
	ErrSyncStatusInvalid = errors.New("sync status is invalid")
	// ErrRecordNotFound возвращается, если офлайн-запись не найдена в журнале.
	ErrRecordNotFound = errors.New("offline order record not found")
	// ErrDuplicateRecord сигнализирует о повторном добавлении записи с тем же local_id.
	ErrDuplicateRecord = errors.New("offline order record already exists")
	// ErrRecordNotPending возвращается при попытке финализировать запись не в статусе pending.
	ErrRecordNotPending = errors.New("offline order record is not pending")
	// ErrPaymentMethodOffline — способ расчёта недоступен без связи с сервером.
	ErrPaymentMethodOffline = errors.New("payment method requires a live connection")
	// ErrStoreUnavailable — локальный журнал недоступен; офлайн-чекаут невозможен.
	ErrStoreUnavailable = errors.New("local order store is unavailable")
	// ErrChannelClosed — live-канал закрыт и больше не принимает сообщения.
	ErrChannelClosed = errors.New("live channel is closed")
	// ErrGatewayClosed — шлюз остановлен и не принимает операции.
	ErrGatewayClosed = errors.New("order gateway is closed")
)

// IsConflictRetryable сообщает, можно ли повторять запись автоматически.
// Конфликтные записи исключаются из автоматической сверки.
func IsConflictRetryable(status SyncStatus) bool {
	return status == SyncStatusPending
}
