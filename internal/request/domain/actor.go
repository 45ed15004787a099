package domain

// Role — роль из внешней сессии
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleWorker Role = "worker"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleSeller || r == RoleWorker
}

// Actor is the authenticated caller. Every use case receives it explicitly.
type Actor struct {
	ID   string
	Role Role
}
