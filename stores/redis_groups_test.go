package stores

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/teamhub/authz"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestRedisGroupIndex(t *testing.T) {
	index := NewRedisGroupIndex(newTestRedis(t))
	ctx := context.Background()

	if err := index.Add(ctx, "u1", "g1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := index.Add(ctx, "u1", "g2"); err != nil {
		t.Fatalf("add: %v", err)
	}
	groups, err := index.Groups(ctx, "u1")
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	sort.Strings(groups)
	if len(groups) != 2 || groups[0] != "g1" || groups[1] != "g2" {
		t.Fatalf("groups = %v", groups)
	}

	if err := index.Remove(ctx, "u1", "g1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	groups, _ = index.Groups(ctx, "u1")
	if len(groups) != 1 || groups[0] != "g2" {
		t.Fatalf("groups after remove = %v", groups)
	}

	groups, err = index.Groups(ctx, "stranger")
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("unknown user should have no groups")
	}
}

func TestSQLStoreWithRedisIndex(t *testing.T) {
	store := NewSQLPolicyStore(newTestDB(t)).WithGroupIndex(NewRedisGroupIndex(newTestRedis(t)))
	ctx := context.Background()

	group := &authz.Group{ID: "g1", Name: "leads", Members: []string{"u1"}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.AddGroupMember(ctx, "g1", "u2"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	groups, err := store.GetUserGroups(ctx, "u1")
	if err != nil {
		t.Fatalf("user groups: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" {
		t.Fatalf("groups = %+v", groups)
	}

	if err := store.RemoveGroupMember(ctx, "g1", "u1"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	groups, _ = store.GetUserGroups(ctx, "u1")
	if len(groups) != 0 {
		t.Fatalf("u1 should be detached from the index")
	}

	if err := store.DeleteGroup(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	groups, _ = store.GetUserGroups(ctx, "u2")
	if len(groups) != 0 {
		t.Fatalf("delete should clear the index for every member")
	}
}
