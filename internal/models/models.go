package models

// Role names seeded at bootstrap.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"      json:"id"`
	Username     string `gorm:"size:100;not null"             json:"username"`
	Email        string `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null"                      json:"-"`
	IsActive     bool   `gorm:"default:true"                  json:"is_active"`
	IsSuperuser  bool   `gorm:"default:false"                 json:"is_superuser"`
	RoleID       *uint  `gorm:"index"                         json:"role_id,omitempty"`
	Role         *Role  `json:"role,omitempty"`
}

type Role struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"uniqueIndex;not null"     json:"name"`
}

type RefreshToken struct {
	ID          uint   `gorm:"primaryKey"           json:"id"`
	Token       string `gorm:"uniqueIndex;not null" json:"token"`
	UserID      uint   `gorm:"index;not null"       json:"user_id"`
	Invalidated bool   `gorm:"default:false"        json:"invalidated"`
}
