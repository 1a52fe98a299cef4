package post

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/repository"
	"github.com/jeanikt/uniconnect/internal/security"
)

// --- モック ---

type reactionKey struct {
	postID string
	userID string
	kind   model.ReactionKind
}

// memoryPostRepo はリアクションの集計まで行うインメモリのPostRepository。
type memoryPostRepo struct {
	posts     map[string]*model.Post
	reactions map[reactionKey]bool
	createErr error
}

func newMemoryPostRepo() *memoryPostRepo {
	return &memoryPostRepo{posts: map[string]*model.Post{}, reactions: map[reactionKey]bool{}}
}

func (m *memoryPostRepo) Create(_ context.Context, post *model.Post) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *memoryPostRepo) project(p *model.Post, viewerID string) *model.Post {
	cp := *p
	for k := range m.reactions {
		if k.postID != p.ID {
			continue
		}
		switch k.kind {
		case model.ReactionLike:
			cp.Likes++
			if k.userID == viewerID {
				cp.Liked = true
			}
		case model.ReactionRepost:
			cp.Reposts++
			if k.userID == viewerID {
				cp.Reposted = true
			}
		}
	}
	return &cp
}

func (m *memoryPostRepo) FindByID(_ context.Context, id, viewerID string) (*model.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	return m.project(p, viewerID), nil
}

func (m *memoryPostRepo) List(_ context.Context, viewerID, authorID string, cursor time.Time, limit int) ([]*model.Post, error) {
	var out []*model.Post
	for _, p := range m.posts {
		if authorID != "" && p.AuthorID != authorID {
			continue
		}
		if !cursor.IsZero() && !p.CreatedAt.Before(cursor) {
			continue
		}
		out = append(out, m.project(p, viewerID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryPostRepo) Delete(_ context.Context, id string) error {
	delete(m.posts, id)
	return nil
}

func (m *memoryPostRepo) ToggleReaction(_ context.Context, postID, userID string, kind model.ReactionKind) (bool, error) {
	k := reactionKey{postID, userID, kind}
	if m.reactions[k] {
		delete(m.reactions, k)
		return false, nil
	}
	m.reactions[k] = true
	return true, nil
}

var _ repository.PostRepository = (*memoryPostRepo)(nil)

type countingRecorder struct {
	created   int
	reactions []bool
}

func (r *countingRecorder) RecordPostCreated() { r.created++ }
func (r *countingRecorder) RecordReaction(_ string, active bool) {
	r.reactions = append(r.reactions, active)
}

func newTestService(repo *memoryPostRepo, rec Recorder) *Service {
	return NewService(repo, NewRenderer(security.NewPostSanitizer()), rec)
}

var (
	alice = &model.User{ID: "user-alice", Username: "alice", Name: "Alice"}
	bob   = &model.User{ID: "user-bob", Username: "bob"}
	admin = &model.User{ID: "user-admin", Username: "admin", IsAdmin: true}
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != code {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

// --- テスト ---

func TestService_Create(t *testing.T) {
	repo := newMemoryPostRepo()
	rec := &countingRecorder{}
	svc := newTestService(repo, rec)

	post, err := svc.Create(context.Background(), alice, "  Hello **UniConnect**  ")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if post.Content != "Hello **UniConnect**" {
		t.Errorf("Content = %q, want trimmed", post.Content)
	}
	if !strings.Contains(post.ContentHTML, "<strong>UniConnect</strong>") {
		t.Errorf("ContentHTML = %q", post.ContentHTML)
	}
	if post.Author != "Alice" || post.Username != "alice" || post.AuthorID != alice.ID {
		t.Errorf("author fields = %q %q %q", post.Author, post.Username, post.AuthorID)
	}
	if _, ok := repo.posts[post.ID]; !ok {
		t.Error("post should be stored")
	}
	if rec.created != 1 {
		t.Errorf("created = %d, want 1", rec.created)
	}

	// 表示名がない場合はユーザー名を使う
	post, err = svc.Create(context.Background(), bob, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if post.Author != "bob" {
		t.Errorf("Author = %q, want bob", post.Author)
	}
}

func TestService_Create_ContentLength(t *testing.T) {
	svc := newTestService(newMemoryPostRepo(), nil)

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace only", "  \n\t ", true},
		{"one char", "a", false},
		{"280 multibyte runes", strings.Repeat("ã", 280), false},
		{"281 chars", strings.Repeat("a", 281), true},
		{"280 with padding", "  " + strings.Repeat("a", 280) + "\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), alice, tt.content)
			if tt.wantErr {
				assertCode(t, err, model.ErrCodeInvalidPost)
			} else if err != nil {
				t.Errorf("Create() error = %v", err)
			}
		})
	}
}

func TestService_Create_SanitizesContent(t *testing.T) {
	svc := newTestService(newMemoryPostRepo(), nil)

	post, err := svc.Create(context.Background(), alice, `<script>alert(1)</script> [x](javascript:alert(1)) <img src=x onerror=alert(1)>`)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for _, bad := range []string{"<script", "javascript:", "onerror", "<img"} {
		if strings.Contains(post.ContentHTML, bad) {
			t.Errorf("ContentHTML contains %q: %s", bad, post.ContentHTML)
		}
	}
}

func TestService_Create_RepositoryError(t *testing.T) {
	repo := newMemoryPostRepo()
	repo.createErr = errors.New("db down")
	svc := newTestService(repo, nil)

	if _, err := svc.Create(context.Background(), alice, "hello"); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_ToggleLike_TwiceRestoresState(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryPostRepo()
	rec := &countingRecorder{}
	svc := newTestService(repo, rec)

	post, err := svc.Create(ctx, alice, "toggle me")
	if err != nil {
		t.Fatal(err)
	}
	// 他のユーザーのいいねが既にある状態
	if _, err := svc.ToggleLike(ctx, post.ID, alice.ID); err != nil {
		t.Fatal(err)
	}

	before, err := svc.Get(ctx, post.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	after1, err := svc.ToggleLike(ctx, post.ID, bob.ID)
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if after1.Likes != before.Likes+1 || !after1.Liked {
		t.Errorf("after first toggle: likes=%d liked=%v", after1.Likes, after1.Liked)
	}

	after2, err := svc.ToggleLike(ctx, post.ID, bob.ID)
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if after2.Likes != before.Likes || after2.Liked != before.Liked {
		t.Errorf("after second toggle: likes=%d liked=%v, want %d %v", after2.Likes, after2.Liked, before.Likes, before.Liked)
	}

	if got := rec.reactions; len(got) != 3 || !got[1] || got[2] {
		t.Errorf("recorded reactions = %v", got)
	}
}

func TestService_ToggleRepost_IndependentOfLike(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryPostRepo(), nil)

	post, err := svc.Create(ctx, alice, "repost me")
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.ToggleRepost(ctx, post.ID, bob.ID)
	if err != nil {
		t.Fatalf("ToggleRepost() error = %v", err)
	}
	if got.Reposts != 1 || !got.Reposted || got.Likes != 0 || got.Liked {
		t.Errorf("post = %+v", got)
	}
}

func TestService_Toggle_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryPostRepo(), nil)

	_, err := svc.ToggleLike(ctx, "missing", bob.ID)
	assertCode(t, err, model.ErrCodePostNotFound)

	_, err = svc.Toggle(ctx, "missing", bob.ID, "bookmark")
	assertCode(t, err, model.ErrCodeInvalidRequest)
}

func TestService_Delete_Permissions(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryPostRepo()
	svc := newTestService(repo, nil)

	post, err := svc.Create(ctx, alice, "mine")
	if err != nil {
		t.Fatal(err)
	}

	assertCode(t, svc.Delete(ctx, post.ID, bob), model.ErrCodeForbidden)
	if err := svc.Delete(ctx, post.ID, alice); err != nil {
		t.Fatalf("Delete() by author error = %v", err)
	}
	assertCode(t, svc.Delete(ctx, post.ID, alice), model.ErrCodePostNotFound)

	other, err := svc.Create(ctx, bob, "moderate me")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, other.ID, admin); err != nil {
		t.Errorf("Delete() by admin error = %v", err)
	}
}

func TestService_List_Pagination(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryPostRepo()
	svc := newTestService(repo, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		repo.posts[string(rune('a'+i))] = &model.Post{
			ID:        string(rune('a' + i)),
			AuthorID:  alice.ID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}

	page1, err := svc.List(ctx, bob.ID, "", "", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page1.Posts) != 2 || !page1.HasMore {
		t.Fatalf("page1 = %d posts, hasMore=%v", len(page1.Posts), page1.HasMore)
	}
	if page1.Posts[0].ID != "e" || page1.Posts[1].ID != "d" {
		t.Errorf("page1 order = %s, %s", page1.Posts[0].ID, page1.Posts[1].ID)
	}

	page2, err := svc.List(ctx, bob.ID, "", page1.NextCursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Posts) != 2 || page2.Posts[0].ID != "c" {
		t.Errorf("page2 = %+v", page2.Posts)
	}

	page3, err := svc.List(ctx, bob.ID, "", page2.NextCursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Posts) != 1 || page3.HasMore || page3.NextCursor != "" {
		t.Errorf("page3 = %d posts, hasMore=%v, cursor=%q", len(page3.Posts), page3.HasMore, page3.NextCursor)
	}
}

func TestService_List_InvalidCursor(t *testing.T) {
	_, err := newTestService(newMemoryPostRepo(), nil).List(context.Background(), "", "", "yesterday", 10)
	assertCode(t, err, model.ErrCodeInvalidRequest)
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultPageSize, -3: DefaultPageSize, 5: 5, 1000: MaxPageSize} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
