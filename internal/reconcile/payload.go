package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/money"
)

// operationNamespace — фиксированное пространство имён для UUIDv5.
// Идентификатор операции детерминирован по local_id записи: повторная
// отправка распознаётся сервером как replay, а не как новый заказ.
var operationNamespace = uuid.MustParse("7d5a8a1c-3f42-4f5e-9b0e-2c64d9a41b77")

// OperationID возвращает стабильный идентификатор ingest-операции для записи.
func OperationID(localID string) string {
	return uuid.NewSHA1(operationNamespace, []byte(localID)).String()
}

// BuildPayload собирает идемпотентный ingest-запрос из офлайн-записи.
// created_at — текущее время (свежесть авторизации), исходное время продажи
// сохраняется в offline_created_at. Денежные поля зажимаются безопасной
// границей, чтобы не переполнить серверное хранилище фиксированной точности.
func BuildPayload(record domain.OfflineOrderRecord, deviceID string, versions domain.DatasetVersions, now time.Time) domain.IngestPayload {
	order := clampOrder(record.Payload)

	payments := make([]domain.PaymentFact, len(record.Payments))
	for i, p := range record.Payments {
		p.AmountMinor = money.Clamp(p.AmountMinor)
		p.TenderedMinor = money.Clamp(p.TenderedMinor)
		p.ChangeMinor = money.Clamp(p.ChangeMinor)
		payments[i] = p
	}

	if versions == nil {
		versions = record.DatasetVersions
	}

	return domain.IngestPayload{
		OperationID:      OperationID(record.LocalID),
		Nonce:            uuid.NewString(),
		DeviceID:         deviceID,
		CreatedAt:        now,
		OfflineCreatedAt: record.CreatedAt,
		DatasetVersions:  versions.Clone(),
		Order:            order,
		Payments:         payments,
		InventoryDeltas:  record.InventoryDeltas,
		Approvals:        record.Approvals,
	}
}

func clampOrder(payload domain.OrderPayload) domain.OrderPayload {
	lines := make([]domain.OrderLine, len(payload.Lines))
	for i, line := range payload.Lines {
		line.UnitPriceMinor = money.Clamp(line.UnitPriceMinor)
		line.DiscountMinor = money.Clamp(line.DiscountMinor)
		line.TaxMinor = money.Clamp(line.TaxMinor)
		line.TotalMinor = money.Clamp(line.TotalMinor)
		lines[i] = line
	}
	payload.Lines = lines

	discounts := make([]domain.Discount, len(payload.Discounts))
	for i, d := range payload.Discounts {
		d.AmountMinor = money.Clamp(d.AmountMinor)
		discounts[i] = d
	}
	payload.Discounts = discounts

	adjustments := make([]domain.Adjustment, len(payload.Adjustments))
	for i, a := range payload.Adjustments {
		a.AmountMinor = money.Clamp(a.AmountMinor)
		adjustments[i] = a
	}
	payload.Adjustments = adjustments

	payload.Totals.SubtotalMinor = money.Clamp(payload.Totals.SubtotalMinor)
	payload.Totals.DiscountMinor = money.Clamp(payload.Totals.DiscountMinor)
	payload.Totals.TaxMinor = money.Clamp(payload.Totals.TaxMinor)
	payload.Totals.TotalMinor = money.Clamp(payload.Totals.TotalMinor)

	return payload
}
