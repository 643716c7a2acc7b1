package auth

import (
	"sort"

	"PartyQ/model"
)

// Action 是一个可被权限校验的操作
type Action string

// 所有可校验的操作。Handler 里只允许使用这里定义的常量。
const (
	ActionQueueAdd            Action = "queue:add"
	ActionQueueRemoveOwn      Action = "queue:remove:own"
	ActionQueueRemoveAny      Action = "queue:remove:any"
	ActionQueueClear          Action = "queue:clear"
	ActionQueueReorder        Action = "queue:reorder"
	ActionQueuePlaylistSelect Action = "queue:playlist:select"
	ActionQueuePlaylistLoad   Action = "queue:playlist:load"
	ActionQueueVote           Action = "queue:vote"
	ActionQueueAutoplay       Action = "queue:autoplay"
	ActionQueueVoteSort       Action = "queue:votesort"
	ActionAdminSettings       Action = "admin:settings"

	ActionPlaybackPause  Action = "playback:pause"
	ActionPlaybackResume Action = "playback:resume"
	ActionPlaybackSeek   Action = "playback:seek"
	ActionTrackPlay      Action = "track:play"
	ActionPlaybackPlay   Action = "playback:play"

	ActionDeviceTransfer Action = "device:transfer"
	ActionDeviceRefresh  Action = "device:refresh"

	ActionSessionConnect Action = "session:connect"
	ActionSessionLogout  Action = "session:logout"

	ActionPlaylistView    Action = "playlist:view"
	ActionPlaylistPlay    Action = "playlist:play"
	ActionPlaylistAdd     Action = "playlist:add"
	ActionPlaylistReorder Action = "playlist:reorder"
	ActionPlaylistFollow  Action = "playlist:follow"
)

// permissions maps each action to the minimum role required.
// Undefined actions are denied by default.
var permissions = map[Action]model.Role{
	ActionQueueAdd:            model.RoleGuest,
	ActionQueueRemoveOwn:      model.RoleGuest,
	ActionQueueRemoveAny:      model.RoleDJ,
	ActionQueueClear:          model.RoleAdmin,
	ActionQueueReorder:        model.RoleDJ,
	ActionQueuePlaylistSelect: model.RoleDJ,
	ActionQueuePlaylistLoad:   model.RoleDJ,
	ActionQueueVote:           model.RoleGuest,
	ActionQueueAutoplay:       model.RoleAdmin,
	ActionQueueVoteSort:       model.RoleAdmin,
	ActionAdminSettings:       model.RoleAdmin,

	ActionPlaybackPause:  model.RoleDJ,
	ActionPlaybackResume: model.RoleDJ,
	ActionPlaybackSeek:   model.RoleDJ,
	ActionTrackPlay:      model.RoleDJ,
	ActionPlaybackPlay:   model.RoleDJ,

	ActionDeviceTransfer: model.RoleAdmin,
	ActionDeviceRefresh:  model.RoleAdmin,

	ActionSessionConnect: model.RoleAdmin,
	ActionSessionLogout:  model.RoleAdmin,

	ActionPlaylistView:    model.RoleGuest,
	ActionPlaylistPlay:    model.RoleDJ,
	ActionPlaylistAdd:     model.RoleDJ,
	ActionPlaylistReorder: model.RoleDJ,
	ActionPlaylistFollow:  model.RoleAdmin,
}

// HasPermission reports whether the role may perform the action.
func HasPermission(action Action, role model.Role) bool {
	required, ok := permissions[action]
	if !ok {
		return false
	}
	return role.AtLeast(required)
}

// PermissionsForRole returns every action the role may perform, for the
// auth status endpoint.
func PermissionsForRole(role model.Role) []string {
	var actions []string
	for action, required := range permissions {
		if role.AtLeast(required) {
			actions = append(actions, string(action))
		}
	}
	sort.Strings(actions)
	return actions
}
