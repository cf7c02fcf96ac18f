package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/money"
)

// CheckoutRequest — данные чекаута. Позиции приходят с ценами и
// модификаторами; скидки, налоги и итоги вычисляет шлюз.
type CheckoutRequest struct {
	Currency        string
	Lines           []domain.OrderLine
	Discounts       []domain.Discount
	Adjustments     []domain.Adjustment
	Approvals       []domain.Approval
	TaxBasisPoints  int64
	Payment         domain.PaymentFact
	CustomerID      string
	Note            string
	DatasetVersions domain.DatasetVersions
}

// CheckoutResult — исход чекаута: локальная ссылка для офлайн-ветки или
// серверные идентификаторы для live-ветки.
type CheckoutResult struct {
	Identity      domain.OrderIdentity
	LocalID       string
	ServerOrderID string
	OrderNumber   string
	Offline       bool
}

// ProcessCheckout закрывает активный заказ. Офлайн-ветка выбирается для
// локальной идентичности или при отсутствии связности; live-ветка
// делегирует обработчику, а при его сбое наличный расчёт прозрачно
// деградирует в офлайн: продажа за наличные не должна блокироваться
// сетевым сбоем. Безналичные сбои возвращаются ошибкой.
func (g *Gateway) ProcessCheckout(ctx context.Context, req CheckoutRequest, online OnlineCheckoutFunc) (CheckoutResult, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return CheckoutResult{}, domain.ErrGatewayClosed
	}
	identity := g.identity
	useOffline := identity.IsLocal() || g.offline || !g.conn.Online() || online == nil
	g.mu.Unlock()

	if useOffline {
		return g.checkoutOffline(identity, req)
	}

	result, err := online(ctx, req)
	if err == nil {
		result.Offline = false
		return result, nil
	}
	if !req.Payment.Method.CashEquivalent() {
		return CheckoutResult{}, fmt.Errorf("online checkout failed: %w", err)
	}

	// Деградация в офлайн — явный переход, а не тихий повтор: событие и
	// счётчик позволяют следить за её частотой.
	g.logger.WithError(err).Warn("online checkout failed, degrading to offline")
	if g.metrics != nil {
		g.metrics.RecordDegradedCheckout()
	}
	result, offlineErr := g.checkoutOffline(identity, req)
	if offlineErr != nil {
		return CheckoutResult{}, offlineErr
	}
	g.publishEvent(domain.SyncEventCheckoutDegraded, result.LocalID, map[string]any{
		"reason": err.Error(),
	})
	return result, nil
}

// checkoutOffline строит канонический слепок заказа и добавляет его в
// локальный журнал. Любая ошибка валидации возвращается до записи.
func (g *Gateway) checkoutOffline(identity domain.OrderIdentity, req CheckoutRequest) (CheckoutResult, error) {
	// Офлайн принимаются только наличные-эквиваленты: карточный расчёт
	// требует live-раунда с ридером и шлюзом, который нельзя отложить.
	if !req.Payment.Method.CashEquivalent() {
		return CheckoutResult{}, domain.ErrPaymentMethodOffline
	}
	if g.store == nil {
		return CheckoutResult{}, domain.ErrStoreUnavailable
	}

	record, err := buildOfflineRecord(identity, req, time.Now().UTC())
	if err != nil {
		return CheckoutResult{}, err
	}

	if errs := record.ValidateInvariants(); len(errs) > 0 {
		return CheckoutResult{}, errors.Join(errs...)
	}

	if err := g.store.Append(record); err != nil {
		return CheckoutResult{}, fmt.Errorf("append offline order: %w", err)
	}

	g.mu.Lock()
	if g.identity.IsZero() {
		g.identity = domain.OrderIdentity{Kind: domain.IdentityLocal, Value: record.LocalID}
	}
	resultIdentity := g.identity
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.RecordOfflineCheckout()
	}
	g.logger.WithFields(log.Fields{
		"local_id":    record.LocalID,
		"total_minor": record.Payload.Totals.TotalMinor,
	}).Info("order settled offline")
	g.publishEvent(domain.SyncEventCheckoutOffline, record.LocalID, map[string]any{
		"total_minor": record.Payload.Totals.TotalMinor,
		"currency":    record.Payload.Totals.Currency,
	})

	return CheckoutResult{
		Identity: resultIdentity,
		LocalID:  record.LocalID,
		Offline:  true,
	}, nil
}

// buildOfflineRecord вычисляет итоги заказа и собирает офлайн-запись.
// Скидки уровня заказа и налог раскладываются по позициям распределением
// без дрейфа, поэтому сумма строк всегда сходится с итогом.
func buildOfflineRecord(identity domain.OrderIdentity, req CheckoutRequest, now time.Time) (domain.OfflineOrderRecord, error) {
	lines := make([]domain.OrderLine, len(req.Lines))
	copy(lines, req.Lines)

	weights := make([]int64, len(lines))
	var subtotal int64
	for i := range lines {
		weights[i] = lines[i].SubtotalMinor()
		subtotal += weights[i]
	}

	var discountTotal int64
	for _, d := range req.Discounts {
		discountTotal += d.AmountMinor
	}
	if discountTotal > subtotal {
		discountTotal = subtotal
	}
	if discountTotal < 0 {
		discountTotal = 0
	}
	discountAlloc := money.Allocate(discountTotal, weights)

	taxableWeights := make([]int64, len(lines))
	var taxableTotal int64
	for i := range lines {
		taxableWeights[i] = weights[i] - discountAlloc[i]
		taxableTotal += taxableWeights[i]
	}
	taxTotal := money.ApplyBasisPoints(taxableTotal, req.TaxBasisPoints)
	taxAlloc := money.Allocate(taxTotal, taxableWeights)

	deltas := make([]domain.InventoryDelta, 0, len(lines))
	for i := range lines {
		lines[i].DiscountMinor = discountAlloc[i]
		lines[i].TaxMinor = taxAlloc[i]
		lines[i].TotalMinor = weights[i] - discountAlloc[i] + taxAlloc[i]
		deltas = append(deltas, domain.InventoryDelta{
			ItemID:   lines[i].ItemID,
			QtyDelta: -lines[i].Qty,
		})
	}

	var adjustmentTotal int64
	for _, a := range req.Adjustments {
		adjustmentTotal += a.AmountMinor
	}

	total := subtotal - discountTotal + taxTotal + adjustmentTotal

	payment := req.Payment
	payment.AmountMinor = total
	payment.RecordedAt = now
	if payment.TenderedMinor > 0 {
		if payment.TenderedMinor < total {
			return domain.OfflineOrderRecord{}, domain.ErrTenderedInsufficient
		}
		payment.ChangeMinor = payment.TenderedMinor - total
	}

	localID := identity.Value
	serverOrderID := ""
	switch {
	case identity.IsLocal():
		// Идентичность уже локальная — запись наследует её.
	case identity.IsServer():
		// Заказ был создан online, но закрывается офлайн: серверный
		// идентификатор сохраняется для сверки, ссылка остаётся локальной.
		serverOrderID = identity.Value
		localID = domain.NewLocalIdentity().Value
	default:
		localID = domain.NewLocalIdentity().Value
	}

	return domain.OfflineOrderRecord{
		LocalID:       localID,
		ServerOrderID: serverOrderID,
		Status:        domain.SyncStatusPending,
		Payload: domain.OrderPayload{
			Lines:       lines,
			Discounts:   req.Discounts,
			Adjustments: req.Adjustments,
			Totals: domain.OrderTotals{
				Currency:      req.Currency,
				SubtotalMinor: subtotal,
				DiscountMinor: discountTotal,
				TaxMinor:      taxTotal,
				TotalMinor:    total,
			},
			CustomerID: req.CustomerID,
			Note:       req.Note,
			CreatedAt:  now,
		},
		Payments:        []domain.PaymentFact{payment},
		InventoryDeltas: deltas,
		Approvals:       req.Approvals,
		DatasetVersions: req.DatasetVersions.Clone(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
