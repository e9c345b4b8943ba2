package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/civicconnect/civic-backend/internal/notifications"
	"github.com/civicconnect/civic-backend/pkg/enums"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
)

type testNotificationsService struct {
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	markReadFn    func(ctx context.Context, recipientID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, recipientID uuid.UUID) (int64, error)
	statsFn       func(ctx context.Context, recipientID uuid.UUID) (*notifications.Stats, error)
	adminListFn   func(ctx context.Context, filter notifications.AdminListFilter) (*notifications.AdminPage, error)
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, recipientID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, recipientID)
	}
	return 0, nil
}

func (s *testNotificationsService) Stats(ctx context.Context, recipientID uuid.UUID) (*notifications.Stats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, recipientID)
	}
	return &notifications.Stats{}, nil
}

func (s *testNotificationsService) AdminList(ctx context.Context, filter notifications.AdminListFilter) (*notifications.AdminPage, error) {
	if s.adminListFn != nil {
		return s.adminListFn(ctx, filter)
	}
	return &notifications.AdminPage{}, nil
}

func TestMarkNotificationReadScopesToCaller(t *testing.T) {
	actor := citizen()
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, rid, nid uuid.UUID) error {
			called = true
			if rid != actor.UserID {
				t.Fatalf("unexpected recipient %s", rid)
			}
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := newRequest(http.MethodPut, "/api/v1/notifications/"+notificationID.String()+"/read", nil, &actor,
		map[string]string{"notificationId": notificationID.String()})
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data["read"] {
		t.Fatalf("expected read=true, got %v", envelope.Data)
	}
}

func TestMarkNotificationReadForeignRecord(t *testing.T) {
	actor := citizen()
	svc := &testNotificationsService{
		markReadFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	id := uuid.NewString()
	req := newRequest(http.MethodPut, "/api/v1/notifications/"+id+"/read", nil, &actor, map[string]string{"notificationId": id})
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestMarkNotificationReadInvalidID(t *testing.T) {
	actor := citizen()
	req := newRequest(http.MethodPut, "/api/v1/notifications/nope/read", nil, &actor, map[string]string{"notificationId": "nope"})
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListNotificationsParsesQuery(t *testing.T) {
	actor := citizen()
	var got notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{Cursor: "next"}, nil
		},
	}

	req := newRequest(http.MethodGet, "/api/v1/notifications?limit=5&unreadOnly=true&cursor=abc", nil, &actor, nil)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.RecipientID != actor.UserID || got.Limit != 5 || !got.UnreadOnly || got.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestListNotificationsRejectsBadUnreadFlag(t *testing.T) {
	actor := citizen()
	req := newRequest(http.MethodGet, "/api/v1/notifications?unreadOnly=maybe", nil, &actor, nil)
	resp := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestListNotificationsRequiresActor(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/notifications", nil, nil, nil)
	resp := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestNotificationStats(t *testing.T) {
	actor := citizen()
	svc := &testNotificationsService{
		statsFn: func(context.Context, uuid.UUID) (*notifications.Stats, error) {
			return &notifications.Stats{Total: 3, Unread: 1, ByKind: map[enums.NotificationKind]int64{enums.NotificationKindCommentAdded: 3}}, nil
		},
	}
	req := newRequest(http.MethodGet, "/api/v1/notifications/stats", nil, &actor, nil)
	resp := httptest.NewRecorder()
	NotificationStats(svc, testLogger())(resp, req)

	var envelope struct {
		Data notifications.Stats `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Unread != 1 || envelope.Data.Total != 3 {
		t.Fatalf("unexpected stats %+v", envelope.Data)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	actor := citizen()
	svc := &testNotificationsService{
		markAllReadFn: func(_ context.Context, rid uuid.UUID) (int64, error) {
			if rid != actor.UserID {
				t.Fatalf("unexpected recipient %s", rid)
			}
			return 4, nil
		},
	}
	req := newRequest(http.MethodPut, "/api/v1/notifications/read-all", nil, &actor, nil)
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, req)

	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data["updated"] != 4 {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
