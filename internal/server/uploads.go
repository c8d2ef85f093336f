package server

import (
	"errors"
	"net/http"

	"crowdfund/internal/storage"
	"crowdfund/pkg/types"
)

const multipartMemory = 8 << 20

// receiveUpload streams the "file" part of a multipart request into bucket.
// The body is capped just above the bucket's size limit so oversized uploads
// fail before they reach storage.
func (s *Service) receiveUpload(w http.ResponseWriter, r *http.Request, bucket storage.Bucket, ownerID string) (*storage.Object, error) {
	policy, ok := storage.PolicyFor(bucket)
	if !ok {
		return nil, errors.New("server: upload to unknown bucket")
	}

	r.Body = http.MaxBytesReader(w, r.Body, policy.MaxBytes+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, &types.Error{Code: types.CodeFileTooLarge, Field: "file"}
		}
		return nil, types.NewValidationError("file", "expected a multipart form upload")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, types.NewValidationError("file", "file is required")
	}
	defer file.Close()

	return s.objects.Upload(r.Context(), bucket, ownerID, header.Filename, header.Size, file)
}

// discardUpload removes an object whose owning record could not be updated.
func (s *Service) discardUpload(r *http.Request, object *storage.Object) {
	if err := s.objects.Delete(r.Context(), object.Bucket, object.Key); err != nil {
		s.logger.WithError(err).WithField("key", object.Key).Warn("failed to remove orphaned upload")
	}
}
