package auth

import (
	"net/http/httptest"
	"testing"

	"PartyQ/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierChecksPassphrases(t *testing.T) {
	v, err := NewVerifier("admin-secret", "dj-secret")
	require.NoError(t, err)

	assert.True(t, v.VerifyAdmin("admin-secret"))
	assert.False(t, v.VerifyAdmin("wrong"))
	assert.True(t, v.VerifyDJ("dj-secret"))
	assert.False(t, v.VerifyDJ("admin-secret"))
}

func TestVerifierDisabledRoles(t *testing.T) {
	v, err := NewVerifier("", "")
	require.NoError(t, err)

	// 未配置口令时对应登录整体关闭，空口令也不行
	assert.False(t, v.AdminEnabled())
	assert.False(t, v.DJEnabled())
	assert.False(t, v.VerifyAdmin(""))
	assert.False(t, v.VerifyDJ(""))
}

func TestPermissionThresholds(t *testing.T) {
	cases := []struct {
		action Action
		role   model.Role
		want   bool
	}{
		{ActionQueueAdd, model.RoleGuest, true},
		{ActionQueueVote, model.RoleGuest, true},
		{ActionQueueRemoveOwn, model.RoleGuest, true},
		{ActionQueueRemoveAny, model.RoleGuest, false},
		{ActionQueueRemoveAny, model.RoleDJ, true},
		{ActionQueueReorder, model.RoleGuest, false},
		{ActionQueueReorder, model.RoleDJ, true},
		{ActionQueueClear, model.RoleDJ, false},
		{ActionQueueClear, model.RoleAdmin, true},
		{ActionQueueAutoplay, model.RoleDJ, false},
		{ActionQueueAutoplay, model.RoleAdmin, true},
		{ActionDeviceTransfer, model.RoleDJ, false},
		{ActionDeviceTransfer, model.RoleAdmin, true},
		{ActionTrackPlay, model.RoleDJ, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HasPermission(tc.action, tc.role),
			"%s / %s", tc.action, tc.role)
	}
}

func TestUndefinedActionIsDenied(t *testing.T) {
	assert.False(t, HasPermission(Action("queue:nuke"), model.RoleAdmin))
}

func TestPermissionsForRoleExpandsWithRole(t *testing.T) {
	guest := PermissionsForRole(model.RoleGuest)
	admin := PermissionsForRole(model.RoleAdmin)
	assert.Greater(t, len(admin), len(guest))
	assert.Contains(t, guest, string(ActionQueueVote))
	assert.NotContains(t, guest, string(ActionQueueClear))
	assert.Contains(t, admin, string(ActionQueueClear))
}

func TestCookieCodecRoundTrip(t *testing.T) {
	codec := NewCookieCodec("test-secret")

	token, err := codec.Sign("session-123")
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "session-123", got)
}

func TestCookieCodecRejectsWrongSecret(t *testing.T) {
	token, err := NewCookieCodec("secret-a").Sign("session-123")
	require.NoError(t, err)

	_, err = NewCookieCodec("secret-b").Verify(token)
	assert.Error(t, err)

	_, err = NewCookieCodec("secret-a").Verify("not-a-token")
	assert.Error(t, err)
}

func TestSessionIDFromRequest(t *testing.T) {
	codec := NewCookieCodec("test-secret")

	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, codec.SessionIDFromRequest(r))

	w := httptest.NewRecorder()
	require.NoError(t, codec.SetSessionCookie(w, "session-123"))
	r.Header.Set("Cookie", w.Header().Get("Set-Cookie"))
	assert.Equal(t, "session-123", codec.SessionIDFromRequest(r))
}
