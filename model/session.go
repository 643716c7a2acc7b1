package model

import (
	"encoding/json"
	"time"
)

// Role 用户角色，按权限从低到高排序
type Role int

const (
	RoleGuest Role = iota
	RoleDJ
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleGuest: "guest",
	RoleDJ:    "dj",
	RoleAdmin: "admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "guest"
}

// ParseRole maps a stored role name back to the enum. Unknown names
// fall back to guest so a corrupted record can never grant privileges.
func ParseRole(name string) Role {
	switch name {
	case "admin":
		return RoleAdmin
	case "dj":
		return RoleDJ
	default:
		return RoleGuest
	}
}

// AtLeast reports whether the role meets the given threshold.
func (r Role) AtLeast(required Role) bool {
	return r >= required
}

// Roles serialize as their wire names ("guest", "dj", "admin").
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*r = ParseRole(name)
	return nil
}

// Session identifies one participant. Created on first contact; logout
// demotes the role back to guest but keeps the identity so existing
// votes and queue attributions stay resolvable.
type Session struct {
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
