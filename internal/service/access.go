package service

import "github.com/linemk/food-market/internal/domain/models"

// Action — действие над ресурсом для проверки прав
type Action string

const (
	ActionOrderCreate   Action = "order:create"
	ActionOrderRead     Action = "order:read"
	ActionOrderAdvance  Action = "order:advance"
	ActionOrderOverride Action = "order:override"
	ActionOrderCancel   Action = "order:cancel"
	ActionPaymentCreate Action = "payment:create"
	ActionPaymentRead   Action = "payment:read"
	ActionPaymentSettle Action = "payment:settle"
	ActionCouponStore   Action = "coupon:store"
	ActionCouponMaster  Action = "coupon:master"
)

// accessScope определяет, на каких ресурсах действие разрешено роли
type accessScope int

const (
	scopeNone accessScope = iota // запрещено
	scopeOwn                     // только на собственных ресурсах
	scopeAny                     // на любых ресурсах
)

// grants — единая таблица прав вместо разбросанных по методам проверок ролей
var grants = map[models.Role]map[Action]accessScope{
	models.RoleCustomer: {
		ActionOrderCreate:   scopeAny,
		ActionOrderRead:     scopeOwn,
		ActionOrderCancel:   scopeOwn,
		ActionPaymentCreate: scopeOwn,
		ActionPaymentRead:   scopeOwn,
	},
	models.RoleStoreOwner: {
		ActionOrderRead:    scopeOwn,
		ActionOrderAdvance: scopeOwn,
		ActionOrderCancel:  scopeOwn,
		ActionCouponStore:  scopeOwn,
	},
	models.RoleManager: {
		ActionOrderRead:     scopeAny,
		ActionOrderAdvance:  scopeAny,
		ActionOrderOverride: scopeAny,
		ActionOrderCancel:   scopeAny,
		ActionPaymentRead:   scopeAny,
		ActionPaymentSettle: scopeAny,
		ActionCouponStore:   scopeAny,
	},
	models.RoleMaster: {
		ActionOrderCreate:   scopeAny,
		ActionOrderRead:     scopeAny,
		ActionOrderAdvance:  scopeAny,
		ActionOrderOverride: scopeAny,
		ActionOrderCancel:   scopeAny,
		ActionPaymentCreate: scopeOwn,
		ActionPaymentRead:   scopeAny,
		ActionPaymentSettle: scopeAny,
		ActionCouponStore:   scopeAny,
		ActionCouponMaster:  scopeAny,
	},
}

// Allowed проверяет, разрешено ли актору действие над ресурсом.
// owns — принадлежит ли ресурс актору (заказ покупателя, магазин владельца);
// для scopeAny значение игнорируется.
func Allowed(actor models.Actor, action Action, owns bool) bool {
	switch grants[actor.Role][action] {
	case scopeAny:
		return true
	case scopeOwn:
		return owns
	default:
		return false
	}
}
