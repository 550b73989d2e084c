package models

// Role определяет уровень доступа пользователя в системе
type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleStoreOwner Role = "STORE_OWNER"
	RoleManager    Role = "MANAGER"
	RoleMaster     Role = "MASTER"
)

// IsValidRole проверяет, что роль входит в список известных
func IsValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleStoreOwner, RoleManager, RoleMaster:
		return true
	}
	return false
}

// User представляет пользователя
type User struct {
	ID       int64
	Email    string
	PassHash []byte
	Role     Role
}

// Actor — аутентифицированный субъект запроса, извлекается из JWT.
// Ядро использует его только для принятия решений по авторизации.
type Actor struct {
	UserID int64
	Role   Role
}
