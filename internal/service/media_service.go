package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog"

	"vidtube/api/internal/apperr"
	"vidtube/api/internal/ids"
	"vidtube/api/internal/media/sniffer"
)

// ObjectPutter is the slice of the object store the media service needs.
type ObjectPutter interface {
	Put(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (string, error)
}

// MediaService moves uploaded profile images into object storage and hands
// back their public URLs. It never touches the user record; callers persist
// the returned URL themselves.
type MediaService struct {
	store ObjectPutter
	log   zerolog.Logger
}

func NewMediaService(store ObjectPutter, log zerolog.Logger) *MediaService {
	return &MediaService{
		store: store,
		log:   log,
	}
}

const maxImageBytes = 10 << 20 // 10 MiB

// UploadImage validates the payload by magic bytes, cross-checks the declared
// content type, and streams the object under kind/yyyy/mm/dd/<id>.<ext>.
func (s *MediaService) UploadImage(ctx context.Context, file multipart.File, header *multipart.FileHeader, kind string) (string, error) {
	if file == nil || header == nil {
		return "", apperr.Validation("image file is required")
	}
	if header.Size == 0 {
		return "", apperr.Validation("image file is empty")
	}
	if header.Size > maxImageBytes {
		return "", apperr.Validation("image file is too large")
	}

	// ReadFull, not Read: a reader may legally return short reads and the
	// sniffer must never see a truncated head on a valid payload.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", apperr.Internal("read upload", err)
	}
	head = head[:n]

	result, err := sniffer.DetectHead(head)
	if err != nil {
		return "", apperr.Validation("unsupported image type")
	}

	declared := sniffer.MimeTypeFromHTTP(http.Header(header.Header))
	if declared != "" && declared != result.MIME {
		return "", apperr.Validation(fmt.Sprintf("content type mismatch: declared %s, detected %s", declared, result.MIME))
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", apperr.Internal("rewind upload", err)
	}

	objectKey := buildObjectKey(kind, string(result.Type))

	url, err := s.store.Put(ctx, objectKey, file, header.Size, result.MIME)
	if err != nil {
		return "", apperr.Internal("store upload", err)
	}

	s.log.Debug().
		Str("object_key", objectKey).
		Int64("size_bytes", header.Size).
		Msg("image uploaded")

	return url, nil
}

func buildObjectKey(kind, ext string) string {
	datePrefix := time.Now().UTC().Format("2006/01/02")
	return path.Join(kind, datePrefix, fmt.Sprintf("%s.%s", ids.New(), ext))
}
