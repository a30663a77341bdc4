package controllers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/internal/media"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

// multipartOverhead leaves room for boundaries and the kind field on top of
// the file size cap.
const multipartOverhead = 64 << 10

// UploadPhoto accepts a multipart form with a `kind` field and a `file` part,
// stores the photo and returns its public URL.
func UploadPhoto(svc media.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "media")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		reader, err := r.MultipartReader()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "multipart form required"))
			return
		}

		var kind enums.MediaKind
		for {
			part, err := reader.NextPart()
			if errors.Is(err, io.EOF) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "file is required"))
				return
			}
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read multipart form"))
				return
			}

			switch part.FormName() {
			case "kind":
				raw, err := io.ReadAll(io.LimitReader(part, 64))
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read kind"))
					return
				}
				parsed, err := enums.ParseMediaKind(strings.TrimSpace(string(raw)))
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
					return
				}
				kind = parsed
			case "file":
				if kind == "" {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "kind must precede file"))
					return
				}
				upload(w, r, svc, logg, actor, kind, part)
				return
			}
		}
	}
}

func upload(w http.ResponseWriter, r *http.Request, svc media.Service, logg *logger.Logger, actor auth.Actor, kind enums.MediaKind, part *multipart.Part) {
	defer part.Close()

	out, err := svc.UploadPhoto(r.Context(), actor, media.UploadInput{
		Kind:        kind,
		ContentType: part.Header.Get("Content-Type"),
		Body:        part,
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, out)
}
