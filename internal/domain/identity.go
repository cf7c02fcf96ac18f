package domain

import "github.com/google/uuid"

// IdentityKind различает локальный и серверный идентификатор заказа.
type IdentityKind string

const (
	// IdentityLocal — идентификатор, сгенерированный терминалом офлайн.
	IdentityLocal IdentityKind = "local"
	// IdentityServer — идентификатор, выданный сервером при создании заказа.
	IdentityServer IdentityKind = "server"
)

// OrderIdentity — идентичность активного заказа. У заказа ровно одна
// идентичность в каждый момент времени; локальная может быть замещена
// серверной только через успешную сверку, обратный переход запрещён.
// Нулевое значение означает "идентичность ещё не назначена".
type OrderIdentity struct {
	Kind  IdentityKind `json:"kind"`
	Value string       `json:"value"`
}

// NewLocalIdentity генерирует новую локальную идентичность заказа.
func NewLocalIdentity() OrderIdentity {
	return OrderIdentity{Kind: IdentityLocal, Value: uuid.NewString()}
}

// ServerIdentity оборачивает серверный идентификатор заказа.
func ServerIdentity(id string) OrderIdentity {
	return OrderIdentity{Kind: IdentityServer, Value: id}
}

// IsZero сообщает, что идентичность ещё не назначена.
func (id OrderIdentity) IsZero() bool {
	return id.Kind == "" && id.Value == ""
}

// IsLocal сообщает, что заказ живёт под локальным идентификатором.
func (id OrderIdentity) IsLocal() bool {
	return id.Kind == IdentityLocal
}

// IsServer сообщает, что заказ подтверждён сервером.
func (id OrderIdentity) IsServer() bool {
	return id.Kind == IdentityServer
}

// String возвращает человекочитаемое представление для логов.
func (id OrderIdentity) String() string {
	if id.IsZero() {
		return "none"
	}
	return string(id.Kind) + ":" + id.Value
}
