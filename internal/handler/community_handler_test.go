package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeanikt/uniconnect/internal/model"
)

func TestCommunityHandler_ListCommunities(t *testing.T) {
	svc := &mockCommunityService{
		listFn: func(ctx context.Context, viewerID string) ([]*model.Community, error) {
			return []*model.Community{
				{ID: "c1", Name: "Go", MemberCount: 3, Joined: viewerID == "user-1"},
				{ID: "c2", Name: "Rust", MemberCount: 1},
			}, nil
		},
	}
	h := NewCommunityHandler(svc)

	rec := httptest.NewRecorder()
	h.ListCommunities(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/communities", nil), testUser()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp []communityResponse
	decodeBody(t, rec, &resp)
	if len(resp) != 2 || !resp[0].Joined || resp[1].Joined {
		t.Errorf("communities = %+v", resp)
	}
}

func TestCommunityHandler_CreateCommunity(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"created", `{"name":"Go","description":"gophers"}`, nil, http.StatusCreated},
		{"missing name", `{"description":"x"}`, nil, http.StatusBadRequest},
		{"duplicate", `{"name":"Go"}`, model.NewCommunityExistsError("Go"), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCommunityService{
				createFn: func(ctx context.Context, owner *model.User, name, description string) (*model.Community, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Community{ID: "c1", Name: name, OwnerID: owner.ID, MemberCount: 1, Joined: true}, nil
				},
			}
			h := NewCommunityHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/communities", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.CreateCommunity(rec, withUser(req, testUser()))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestCommunityHandler_JoinAndLeave(t *testing.T) {
	members := 1
	svc := &mockCommunityService{
		joinFn: func(ctx context.Context, id, userID string) (*model.Community, error) {
			members++
			return &model.Community{ID: id, MemberCount: members, Joined: true}, nil
		},
		leaveFn: func(ctx context.Context, id, userID string) (*model.Community, error) {
			members--
			return &model.Community{ID: id, MemberCount: members}, nil
		},
	}
	h := NewCommunityHandler(svc)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/communities/c1/members", nil), "id", "c1")
	rec := httptest.NewRecorder()
	h.Join(rec, withUser(req, testUser()))
	var joined communityResponse
	decodeBody(t, rec, &joined)
	if !joined.Joined || joined.MemberCount != 2 {
		t.Errorf("after join = %+v", joined)
	}

	req = withURLParam(httptest.NewRequest(http.MethodDelete, "/api/communities/c1/members", nil), "id", "c1")
	rec = httptest.NewRecorder()
	h.Leave(rec, withUser(req, testUser()))
	var left communityResponse
	decodeBody(t, rec, &left)
	if left.Joined || left.MemberCount != 1 {
		t.Errorf("after leave = %+v", left)
	}
}

func TestCommunityHandler_Join_NotFound(t *testing.T) {
	svc := &mockCommunityService{
		joinFn: func(ctx context.Context, id, userID string) (*model.Community, error) {
			return nil, model.NewCommunityNotFoundError(id)
		},
	}
	h := NewCommunityHandler(svc)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/communities/nope/members", nil), "id", "nope")
	rec := httptest.NewRecorder()
	h.Join(rec, withUser(req, testUser()))

	assertErrorCode(t, rec, http.StatusNotFound, model.ErrCodeCommunityNotFound)
}
