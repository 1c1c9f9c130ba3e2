package social

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/repositories"
)

type stubUsers struct {
	byID     map[string]models.User
	taken    map[string]bool
	adminSet map[string]bool
}

func newStubUsers(users ...models.User) *stubUsers {
	s := &stubUsers{byID: make(map[string]models.User), taken: make(map[string]bool), adminSet: make(map[string]bool)}
	for _, u := range users {
		s.byID[u.ID] = u
		s.taken[u.Username] = true
	}
	return s
}

func (s *stubUsers) FindByID(_ context.Context, id string) (models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	for _, u := range s.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *stubUsers) List(context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUsers) Roster(ctx context.Context) ([]models.User, error) { return s.List(ctx) }

func (s *stubUsers) UpdateProfile(_ context.Context, id, username, avatarURL, about string) (models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	if username != u.Username && s.taken[username] {
		return models.User{}, repositories.ErrConflict
	}
	delete(s.taken, u.Username)
	u.Username, u.AvatarURL, u.About = username, avatarURL, about
	s.taken[username] = true
	s.byID[id] = u
	return u, nil
}

func (s *stubUsers) SetAdmin(_ context.Context, id string, isAdmin bool) error {
	u, ok := s.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.IsAdmin = isAdmin
	s.byID[id] = u
	s.adminSet[id] = isAdmin
	return nil
}

type stubFollows struct {
	edges map[[2]string]bool
}

func (s *stubFollows) Toggle(_ context.Context, follower, following string) (bool, error) {
	if s.edges == nil {
		s.edges = make(map[[2]string]bool)
	}
	key := [2]string{follower, following}
	if s.edges[key] {
		delete(s.edges, key)
		return false, nil
	}
	s.edges[key] = true
	return true, nil
}

func (s *stubFollows) IsFollowing(_ context.Context, follower, following string) (bool, error) {
	return s.edges[[2]string{follower, following}], nil
}

func (s *stubFollows) Followers(_ context.Context, userID string) ([]models.UserSummary, error) {
	var out []models.UserSummary
	for key := range s.edges {
		if key[1] == userID {
			out = append(out, models.UserSummary{ID: key[0]})
		}
	}
	return out, nil
}

func (s *stubFollows) Following(_ context.Context, userID string) ([]models.UserSummary, error) {
	var out []models.UserSummary
	for key := range s.edges {
		if key[0] == userID {
			out = append(out, models.UserSummary{ID: key[1]})
		}
	}
	return out, nil
}

// RefreshFollowCounts derives counts from the edge set the way the database does.
func (s *stubFollows) RefreshFollowCounts(_ context.Context, userID string) (int, int, error) {
	var followers, following int
	for key := range s.edges {
		if key[1] == userID {
			followers++
		}
		if key[0] == userID {
			following++
		}
	}
	return followers, following, nil
}

type stubComments struct {
	comments map[string]models.ProfileComment
}

func (s *stubComments) CreateProfileComment(_ context.Context, c models.ProfileComment) error {
	if s.comments == nil {
		s.comments = make(map[string]models.ProfileComment)
	}
	s.comments[c.ID] = c
	return nil
}

func (s *stubComments) ProfileComments(_ context.Context, username string) ([]models.ProfileComment, error) {
	var out []models.ProfileComment
	for _, c := range s.comments {
		if c.ProfileUsername == username {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubComments) FindProfileComment(_ context.Context, id string) (models.ProfileComment, error) {
	c, ok := s.comments[id]
	if !ok {
		return models.ProfileComment{}, repositories.ErrNotFound
	}
	return c, nil
}

func (s *stubComments) DeleteProfileComment(_ context.Context, id string) error {
	delete(s.comments, id)
	return nil
}

var (
	alice = access.Identity{UserID: "alice-id", Username: "alice"}
	bob   = access.Identity{UserID: "bob-id", Username: "bob"}
	carol = access.Identity{UserID: "carol-id", Username: "carol"}
	root  = access.Identity{UserID: "root-id", Username: "root"}
)

func newTestService() (*Service, *stubUsers, *stubFollows) {
	users := newStubUsers(
		models.User{ID: "alice-id", Username: "alice"},
		models.User{ID: "bob-id", Username: "bob"},
		models.User{ID: "carol-id", Username: "carol"},
		models.User{ID: "root-id", Username: "root", IsAdmin: true},
	)
	follows := &stubFollows{}
	return &Service{Users: users, Follows: follows, Counts: follows, Comments: &stubComments{}}, users, follows
}

func TestProfileStripsAt(t *testing.T) {
	svc, _, _ := newTestService()
	user, err := svc.Profile(context.Background(), " @alice ")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if user.ID != "alice-id" {
		t.Fatalf("expected alice got %+v", user)
	}
	if _, err := svc.Profile(context.Background(), "@nobody"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestToggleFollowRoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	result, err := svc.ToggleFollow(ctx, alice, "bob-id")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if !result.Following || result.FollowersCount != 1 {
		t.Fatalf("unexpected follow result %+v", result)
	}
	if following, _ := svc.IsFollowing(ctx, alice, "bob-id"); !following {
		t.Fatal("expected alice to follow bob")
	}

	result, err = svc.ToggleFollow(ctx, alice, "bob-id")
	if err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if result.Following || result.FollowersCount != 0 {
		t.Fatalf("expected clean state got %+v", result)
	}
}

func TestToggleFollowRejectsSelfAndAnonymous(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.ToggleFollow(context.Background(), alice, "alice-id"); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected self follow error got %v", err)
	}
	if _, err := svc.ToggleFollow(context.Background(), access.Identity{}, "bob-id"); !errors.Is(err, access.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated got %v", err)
	}
}

func TestDeleteProfileCommentPermissions(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	post := func() models.ProfileComment {
		c, err := svc.AddProfileComment(ctx, alice, "@bob", "hey bob")
		if err != nil {
			t.Fatalf("add comment: %v", err)
		}
		return c
	}

	c := post()
	if c.ProfileUsername != "bob" {
		t.Fatalf("expected comment on bob got %+v", c)
	}
	if err := svc.DeleteProfileComment(ctx, carol, c.ID); !errors.Is(err, access.ErrForbidden) {
		t.Fatalf("expected carol forbidden got %v", err)
	}
	for _, actor := range []access.Identity{alice, bob, root} {
		c = post()
		if err := svc.DeleteProfileComment(ctx, actor, c.ID); err != nil {
			t.Fatalf("%s delete: %v", actor.Username, err)
		}
	}
}

func TestAddProfileCommentValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.AddProfileComment(ctx, alice, "bob", "  "); !errors.Is(err, ErrEmptyComment) {
		t.Fatalf("expected empty got %v", err)
	}
	if _, err := svc.AddProfileComment(ctx, alice, "bob", strings.Repeat("x", MaxCommentLength+1)); !errors.Is(err, ErrCommentTooLong) {
		t.Fatalf("expected too long got %v", err)
	}
	if _, err := svc.AddProfileComment(ctx, alice, "ghost", "hi"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected missing profile got %v", err)
	}
}

func TestUpdateSettings(t *testing.T) {
	svc, users, _ := newTestService()
	ctx := context.Background()

	updated, err := svc.UpdateSettings(ctx, alice, Settings{Username: "@alice2", AvatarURL: " https://cdn/a.png ", About: "hi"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Username != "alice2" || users.byID["alice-id"].AvatarURL != "https://cdn/a.png" {
		t.Fatalf("unexpected user %+v", updated)
	}

	if _, err := svc.UpdateSettings(ctx, alice, Settings{Username: "bob"}); !errors.Is(err, repositories.ErrConflict) {
		t.Fatalf("expected conflict got %v", err)
	}
	if _, err := svc.UpdateSettings(ctx, alice, Settings{Username: "two words"}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected invalid username got %v", err)
	}
	if _, err := svc.UpdateSettings(ctx, alice, Settings{Username: "alice", About: strings.Repeat("a", MaxAboutLength+1)}); !errors.Is(err, ErrAboutTooLong) {
		t.Fatalf("expected about too long got %v", err)
	}
}

func TestAdminOperations(t *testing.T) {
	svc, users, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ListUsers(ctx, alice); !errors.Is(err, access.ErrForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
	list, err := svc.ListUsers(ctx, root)
	if err != nil || len(list) != 4 {
		t.Fatalf("unexpected list %d err=%v", len(list), err)
	}

	target, err := svc.ToggleAdmin(ctx, root, "alice-id")
	if err != nil {
		t.Fatalf("toggle admin: %v", err)
	}
	if !target.IsAdmin || !users.adminSet["alice-id"] {
		t.Fatalf("expected alice promoted got %+v", target)
	}
	target, _ = svc.ToggleAdmin(ctx, root, "alice-id")
	if target.IsAdmin {
		t.Fatal("expected alice demoted")
	}
	if _, err := svc.ToggleAdmin(ctx, bob, "alice-id"); !errors.Is(err, access.ErrForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
}
