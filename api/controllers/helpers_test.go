package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civicconnect/civic-backend/api/middleware"
	pkgAuth "github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/civicconnect/civic-backend/pkg/enums"
	"github.com/civicconnect/civic-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func citizen() pkgAuth.Actor {
	return pkgAuth.Actor{UserID: uuid.New(), Role: enums.UserRoleCitizen}
}

func admin() pkgAuth.Actor {
	return pkgAuth.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
}

// newRequest builds a request carrying the actor and chi url params.
func newRequest(method, target string, body io.Reader, actor *pkgAuth.Actor, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := req.Context()
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	if len(params) > 0 {
		rc := chi.NewRouteContext()
		for k, v := range params {
			rc.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, resp.Body.String())
	}
	return payload.Error.Code
}
