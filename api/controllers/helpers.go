package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civicconnect/civic-backend/api/middleware"
	pkgAuth "github.com/civicconnect/civic-backend/pkg/auth"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
)

func requireActor(r *http.Request) (pkgAuth.Actor, error) {
	actor := middleware.ActorFromContext(r.Context())
	if !actor.Valid() {
		return pkgAuth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
