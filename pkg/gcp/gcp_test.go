package gcp

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
)

func TestClientOptions(t *testing.T) {
	cases := map[string]struct {
		cfg  config.GCPConfig
		want int
	}{
		"json wins over file": {config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}, 1},
		"file only":           {config.GCPConfig{ApplicationCredentials: "/tmp/creds"}, 1},
		"default credentials": {config.GCPConfig{CredentialsJSON: "  "}, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Len(t, ClientOptions(tc.cfg), tc.want)
		})
	}
}

func TestProjectID(t *testing.T) {
	id, err := ProjectID(config.GCPConfig{ProjectID: " maiyom-prod "})
	assert.NoError(t, err)
	assert.Equal(t, "maiyom-prod", id)

	_, err = ProjectID(config.GCPConfig{})
	assert.ErrorIs(t, err, ErrProjectIDRequired)
}

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/maiyom-prod/subscriptions/analytics", ResourceName("maiyom-prod", "subscriptions", "analytics"))
	assert.Equal(t, "projects/other/subscriptions/x", ResourceName("maiyom-prod", "subscriptions", "projects/other/subscriptions/x"))
	assert.Equal(t, "projects/maiyom-prod/topics/maiyom-mission-events", ResourceName("maiyom-prod", "topics", " maiyom-mission-events "))
	assert.Equal(t, "", ResourceName("maiyom-prod", "topics", "  "))
	assert.Equal(t, "", ResourceName("", "topics", "events"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, IsNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.True(t, IsNotFound(status.Error(codes.NotFound, "no such subscription")))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.False(t, IsNotFound(nil))
}
