package domain

// OperationType определяет тип мутации корзины.
type OperationType string

const (
	OperationAddItem        OperationType = "add_item"
	OperationUpdateItem     OperationType = "update_item"
	OperationRemoveItem     OperationType = "remove_item"
	OperationApplyDiscount  OperationType = "apply_discount"
	OperationRemoveDiscount OperationType = "remove_discount"
	OperationSetNote        OperationType = "set_note"
	OperationSetCustomer    OperationType = "set_customer"
)

// Operation — одиночная мутация корзины. Операции имеют смысл только
// пока заказ живёт под серверным идентификатором и открыт live-канал;
// под локальным идентификатором мутации применяются к локальному
// состоянию и по отдельности никуда не передаются.
type Operation struct {
	Type    OperationType  `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Valid проверяет, что тип операции относится к поддерживаемым значениям.
func (t OperationType) Valid() bool {
	switch t {
	case OperationAddItem, OperationUpdateItem, OperationRemoveItem,
		OperationApplyDiscount, OperationRemoveDiscount,
		OperationSetNote, OperationSetCustomer:
		return true
	default:
		return false
	}
}
