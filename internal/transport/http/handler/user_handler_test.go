package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-user-service/internal/feature/user"
)

func TestReadSelf(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")

	w := do(t, h.api, http.MethodGet, "/api/v1/users/"+alice.ID, h.token(t, alice), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.NotContains(t, w.Body.String(), alice.Password)
}

func TestReadCrossUser(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")
	bob := h.seed(t, "bob", "user")

	// plain user may not read someone else
	w := do(t, h.api, http.MethodGet, "/api/v1/users/"+bob.ID, h.token(t, alice), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// an admin gets the target's record, not their own
	admin := h.seed(t, "root", "admin")
	w = do(t, h.api, http.MethodGet, "/api/v1/users/"+bob.ID, h.token(t, admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, bob.ID, got.ID)
	assert.Equal(t, "bob", got.Username)
}

func TestReadNotFound(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	admin := h.seed(t, "root", "admin")

	w := do(t, h.api, http.MethodGet, "/api/v1/users/nope", h.token(t, admin), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decode(t, w).Msg)
}

func TestMe(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")

	w := do(t, h.api, http.MethodGet, "/api/v1/me", h.token(t, alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, alice.ID, got.ID)

	w = do(t, h.api, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListPaging(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	for i := 1; i <= 60; i++ {
		h.seed(t, fmt.Sprintf("user%02d", i), "user")
	}
	tok := h.token(t, h.seed(t, "aaa-reader", "user"))

	w := do(t, h.api, http.MethodGet, "/api/v1/users?page=2", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	require.Len(t, got, 25)
	// page 1 covered aaa-reader plus user01..user24
	assert.Equal(t, "user25", got[0].Username)
	assert.Equal(t, "user49", got[24].Username)
}

func TestListFilter(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.seed(t, "alice", "user")
	h.seed(t, "malice", "user")
	bob := h.seed(t, "bob", "user")

	w := do(t, h.api, http.MethodGet, "/api/v1/users?q=ALIC", h.token(t, bob), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, "malice", got[1].Username)
}

func TestCreateRequiresPermission(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")

	w := do(t, h.api, http.MethodPost, "/api/v1/users", h.token(t, alice), map[string]any{
		"username": "newbie",
		"email":    "newbie@example.com",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, h.store.count())
}

func TestCreateDropsUnlistedFields(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	admin := h.seed(t, "root", "admin")

	w := do(t, h.api, http.MethodPost, "/api/v1/users", h.token(t, admin), map[string]any{
		"username": "newbie",
		"email":    "newbie@example.com",
		"role":     "admin",
		"subroles": []string{"admin"},
		"verified": true,
		"password": "sneaky-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var got user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	stored, ok := h.store.get(got.ID)
	require.True(t, ok)
	assert.Equal(t, "user", stored.Role)
	assert.Equal(t, user.StringSet{"user"}, stored.Subroles)
	assert.False(t, stored.Verified)
	assert.Empty(t, stored.Password)
}

func TestCreateDuplicateUsername(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	admin := h.seed(t, "root", "admin")
	h.seed(t, "alice", "user")

	w := do(t, h.api, http.MethodPost, "/api/v1/users", h.token(t, admin), map[string]any{
		"username": "alice",
		"email":    "other@example.com",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username is taken", decode(t, w).Msg)
	assert.Equal(t, 2, h.store.count())
}

func TestUpdatePartialFields(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user", func(m *user.Model) {
		m.DisplayName = "Alice A"
		m.FirstName = "Alice"
	})

	w := do(t, h.api, http.MethodPut, "/api/v1/users", h.token(t, alice), map[string]any{
		"id":          alice.ID,
		"displayName": "Alice B",
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored, _ := h.store.get(alice.ID)
	assert.Equal(t, "Alice B", stored.DisplayName)
	assert.Equal(t, "Alice", stored.FirstName)
	assert.Equal(t, "alice@example.com", stored.Email)
}

func TestUpdateEmailRefreshesAvatar(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")

	w := do(t, h.api, http.MethodPut, "/api/v1/users", h.token(t, alice), map[string]any{
		"id":    alice.ID,
		"email": "fresh@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored, _ := h.store.get(alice.ID)
	assert.Equal(t, "fresh@example.com", stored.Email)
	assert.Equal(t, user.AvatarURL("www.gravatar.com", "fresh@example.com"), stored.ProfileImageURL)
}

func TestUpdateIgnoresSecretFields(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")

	w := do(t, h.api, http.MethodPut, "/api/v1/users", h.token(t, alice), map[string]any{
		"id":       alice.ID,
		"role":     "admin",
		"password": "hax",
		"verified": false,
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored, _ := h.store.get(alice.ID)
	assert.Equal(t, "user", stored.Role)
	assert.Equal(t, alice.Password, stored.Password)
	assert.True(t, stored.Verified)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	admin := h.seed(t, "root", "admin")
	bob := h.seed(t, "bob", "user")

	// no delete permission
	w := do(t, h.api, http.MethodDelete, "/api/v1/users/"+admin.ID, h.token(t, bob), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h.api, http.MethodDelete, "/api/v1/users/"+bob.ID, h.token(t, admin), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	_, ok := h.store.get(bob.ID)
	assert.False(t, ok)

	// deleting an id that no longer exists is still fine
	w = do(t, h.api, http.MethodDelete, "/api/v1/users/"+bob.ID, h.token(t, admin), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLookupPublic(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")
	bob := h.seed(t, "bob", "user")

	// no token required
	w := do(t, h.api, http.MethodGet, "/api/v1/users/lookup?ids="+alice.ID+","+bob.ID+",missing", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	require.Len(t, got, 2)
	assert.NotContains(t, w.Body.String(), alice.Password)
}

func TestStoreFailureStaysInternal(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	alice := h.seed(t, "alice", "user")
	tok := h.token(t, alice)
	h.store.err = assert.AnError

	w := do(t, h.api, http.MethodGet, "/api/v1/users/"+alice.ID, tok, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	// the driver error is logged, never echoed
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
	assert.Equal(t, "Internal Server Error", decode(t, w).Msg)
}

func TestLookupEmpty(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	w := do(t, h.api, http.MethodGet, "/api/v1/users/lookup?ids=,%20,", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []user.Public
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Empty(t, got)
}
