package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/api/middleware"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test-controllers", Level: "debug", Output: io.Discard})
}

func runnerActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleRunner}
}

func requesterActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleRequester}
}

// newRequest builds a request carrying actor and chi URL params given as
// name/value pairs.
func newRequest(t *testing.T, method, target, body string, actor auth.Actor, params ...string) *http.Request {
	t.Helper()
	if len(params)%2 != 0 {
		t.Fatalf("params must be name/value pairs")
	}
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	ctx := context.Background()
	if actor.Valid() {
		ctx = middleware.WithActor(ctx, actor)
	}
	rctx := chi.NewRouteContext()
	for i := 0; i < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}
