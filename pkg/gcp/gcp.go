// Package gcp holds credential and naming helpers shared by the Google Cloud
// clients (Pub/Sub, BigQuery, Cloud Storage).
package gcp

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
)

var ErrProjectIDRequired = errors.New("gcp project id is required")

// ClientOptions picks inline JSON credentials over a credentials file. With
// neither set the SDKs fall back to application default credentials.
func ClientOptions(cfg config.GCPConfig, extra ...option.ClientOption) []option.ClientOption {
	var opts []option.ClientOption
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(js)))
	} else if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	return append(opts, extra...)
}

// ProjectID returns the trimmed project id or ErrProjectIDRequired.
func ProjectID(cfg config.GCPConfig) (string, error) {
	id := strings.TrimSpace(cfg.ProjectID)
	if id == "" {
		return "", ErrProjectIDRequired
	}
	return id, nil
}

// ResourceName expands a short topic or subscription id into its full
// "projects/<p>/<collection>/<id>" form. Names already in that form pass
// through untouched.
func ResourceName(project, collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + name
}

// IsNotFound reports a 404 from either the REST or the gRPC surface.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return status.Code(err) == codes.NotFound
}
