package domain

import "time"

// PaymentMethod определяет способ расчёта по заказу.
type PaymentMethod string

const (
	// PaymentMethodCash — наличные.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodCheck — чек; с точки зрения офлайн-расчёта эквивалентен наличным.
	PaymentMethodCheck PaymentMethod = "check"
	// PaymentMethodCard — карта; требует live-обращения к ридеру и шлюзу.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodGiftCard — подарочная карта; баланс проверяется сервером.
	PaymentMethodGiftCard PaymentMethod = "gift_card"
)

// CashEquivalent сообщает, допустим ли способ расчёта без связи с сервером.
// Карточные и сертификатные платежи требуют live-раунда и офлайн не принимаются.
func (m PaymentMethod) CashEquivalent() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck:
		return true
	default:
		return false
	}
}

// LineModifier — модификатор позиции (добавка, вариация) с ценой в минорных единицах.
type LineModifier struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
}

// OrderLine — одна позиция заказа. Все суммы — в минорных единицах валюты.
type OrderLine struct {
	ItemID         string         `json:"item_id"`
	Name           string         `json:"name"`
	Qty            int32          `json:"qty"`
	UnitPriceMinor int64          `json:"unit_price_minor"`
	Modifiers      []LineModifier `json:"modifiers,omitempty"`
	DiscountMinor  int64          `json:"discount_minor"`
	TaxMinor       int64          `json:"tax_minor"`
	TotalMinor     int64          `json:"total_minor"`
}

// SubtotalMinor возвращает стоимость позиции до скидок и налогов.
func (l OrderLine) SubtotalMinor() int64 {
	total := int64(l.Qty) * l.UnitPriceMinor
	for _, m := range l.Modifiers {
		total += int64(l.Qty) * m.PriceMinor
	}
	return total
}

// Discount — скидка уровня заказа или позиции.
type Discount struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Scope       string `json:"scope,omitempty"`
	AmountMinor int64  `json:"amount_minor"`
}

// Adjustment — ручная корректировка суммы, потенциально требующая
// подтверждения менеджера.
type Adjustment struct {
	ID          string `json:"id"`
	Reason      string `json:"reason"`
	AmountMinor int64  `json:"amount_minor"`
	ApprovalID  string `json:"approval_id,omitempty"`
}

// Approval — запись о подтверждении менеджером ручной корректировки.
type Approval struct {
	ID        string    `json:"id"`
	ManagerID string    `json:"manager_id"`
	Reason    string    `json:"reason,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// PaymentFact фиксирует факт оплаты. Ядро не выполняет списание само,
// оно только записывает результат расчёта.
type PaymentFact struct {
	Method        PaymentMethod `json:"method"`
	AmountMinor   int64         `json:"amount_minor"`
	TenderedMinor int64         `json:"tendered_minor,omitempty"`
	ChangeMinor   int64         `json:"change_minor,omitempty"`
	Reference     string        `json:"reference,omitempty"`
	RecordedAt    time.Time     `json:"recorded_at"`
}

// OrderTotals — вычисленные итоги заказа в минорных единицах.
type OrderTotals struct {
	Currency      string `json:"currency"`
	SubtotalMinor int64  `json:"subtotal_minor"`
	DiscountMinor int64  `json:"discount_minor"`
	TaxMinor      int64  `json:"tax_minor"`
	TotalMinor    int64  `json:"total_minor"`
}

// InventoryDelta — производное списание остатков по позиции заказа.
type InventoryDelta struct {
	ItemID   string `json:"item_id"`
	QtyDelta int32  `json:"qty_delta"`
}

// OrderPayload — канонический слепок заказа, который попадает в локальный
// журнал при офлайн-чекауте и затем целиком отправляется на ingest.
type OrderPayload struct {
	Lines       []OrderLine  `json:"lines"`
	Discounts   []Discount   `json:"discounts,omitempty"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
	Totals      OrderTotals  `json:"totals"`
	CustomerID  string       `json:"customer_id,omitempty"`
	Note        string       `json:"note,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ValidateInvariants проверяет базовые инварианты слепка заказа и возвращает список замечаний.
func (p *OrderPayload) ValidateInvariants() []error {
	var errs []error

	if p.Totals.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(p.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if p.Totals.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем итог с позициями: subtotal - скидки + налоги + корректировки.
	var subtotal, lineDiscount, lineTax int64
	for _, line := range p.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		subtotal += line.SubtotalMinor()
		lineDiscount += line.DiscountMinor
		lineTax += line.TaxMinor
	}
	if subtotal != p.Totals.SubtotalMinor {
		errs = append(errs, ErrTotalsMismatch)
	}
	if lineDiscount != p.Totals.DiscountMinor || lineTax != p.Totals.TaxMinor {
		errs = append(errs, ErrTotalsMismatch)
	}

	var adjustments int64
	for _, a := range p.Adjustments {
		adjustments += a.AmountMinor
	}
	if p.Totals.SubtotalMinor-p.Totals.DiscountMinor+p.Totals.TaxMinor+adjustments != p.Totals.TotalMinor {
		errs = append(errs, ErrTotalsMismatch)
	}

	return errs
}

// OrderDraft — минимальные данные для создания заказа (до первой позиции).
type OrderDraft struct {
	Currency   string `json:"currency"`
	CustomerID string `json:"customer_id,omitempty"`
}
