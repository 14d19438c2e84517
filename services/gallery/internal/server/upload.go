package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"jstagram/pkg/domain"
)

// File parts are accepted under either name; browsers send picfile.
var fileFields = map[string]bool{"picfile": true, "file": true}

// Sniffed content types accepted as pictures.
var supportedImageTypes = map[string]bool{
	"image/png":    true,
	"image/jpeg":   true,
	"image/gif":    true,
	"image/webp":   true,
	"image/bmp":    true,
	"image/x-icon": true,
}

// Declared names that sniff as a different canonical type.
var imageTypeAliases = map[string]string{
	"image/jpg":                "image/jpeg",
	"image/pjpeg":              "image/jpeg",
	"image/x-png":              "image/png",
	"image/x-ms-bmp":           "image/bmp",
	"image/vnd.microsoft.icon": "image/x-icon",
}

const (
	maxFieldBytes = 64 << 10
	sniffLen      = 512
)

type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

func rejectUpload(status int, msg string) error {
	return &uploadError{status: status, msg: msg}
}

type upload struct {
	file  domain.IncomingFile
	title string
}

// discard removes the temp file if the store did not take it.
func (u *upload) discard() {
	if u == nil || u.file.TempPath == "" {
		return
	}
	_ = os.Remove(u.file.TempPath)
}

// readUpload streams a multipart form into a temp file under the upload
// directory. On error no temp file is left behind.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	bodyLimit := s.maxUploadBytes + int64(s.maxUploadFields+1)*maxFieldBytes
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)

	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, rejectUpload(http.StatusUnsupportedMediaType, "file required")
		}
		return nil, rejectUpload(http.StatusBadRequest, "invalid form data")
	}

	up := &upload{}
	var (
		haveFile  bool
		haveTitle bool
		fields    int
		declared  string
	)
	fail := func(err error) (*upload, error) {
		up.discard()
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(partError(err))
		}

		if part.FileName() == "" {
			fields++
			if fields > s.maxUploadFields {
				part.Close()
				return fail(rejectUpload(http.StatusBadRequest, "too many fields"))
			}
			value, err := readField(part)
			part.Close()
			if err != nil {
				return fail(err)
			}
			if part.FormName() == "title" && !haveTitle {
				up.title, haveTitle = value, true
			}
			continue
		}

		if !fileFields[part.FormName()] {
			part.Close()
			return fail(rejectUpload(http.StatusBadRequest, "unexpected file field"))
		}
		if haveFile {
			part.Close()
			return fail(rejectUpload(http.StatusBadRequest, "only one file allowed"))
		}
		haveFile = true
		declared = strings.TrimSpace(part.Header.Get("Content-Type"))
		tempPath, err := s.spool(part)
		part.Close()
		if err != nil {
			return fail(err)
		}
		up.file.TempPath = tempPath
	}

	if !haveFile {
		return fail(rejectUpload(http.StatusUnsupportedMediaType, "file required"))
	}
	if !haveTitle {
		return fail(rejectUpload(http.StatusBadRequest, "title required"))
	}
	mimeType, err := acceptedType(declared, up.file.TempPath)
	if err != nil {
		return fail(err)
	}
	up.file.MimeType = mimeType
	return up, nil
}

// acceptedType checks the declared part type and the sniffed content. An
// image/* part must sniff as the type it declares and keeps its declared
// name; octet-stream parts take the sniffed type.
func acceptedType(declared, tempPath string) (string, error) {
	if declared == "" {
		return "", rejectUpload(http.StatusUnsupportedMediaType, "unsupported mimetype")
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", rejectUpload(http.StatusUnsupportedMediaType, "unsupported mimetype")
	}
	isImage := strings.HasPrefix(mediaType, "image/")
	if !isImage && mediaType != "application/octet-stream" {
		return "", rejectUpload(http.StatusUnsupportedMediaType,
			fmt.Sprintf("'%s' is an unsupported mimetype", mediaType))
	}

	sniffed, err := sniff(tempPath)
	if err != nil {
		return "", err
	}
	if !supportedImageTypes[sniffed] {
		return "", rejectUpload(http.StatusUnsupportedMediaType, "unsupported media type")
	}
	if !isImage {
		return sniffed, nil
	}
	canonical := mediaType
	if alias, ok := imageTypeAliases[mediaType]; ok {
		canonical = alias
	}
	if canonical != sniffed {
		return "", rejectUpload(http.StatusUnsupportedMediaType,
			fmt.Sprintf("'%s' does not match file content", mediaType))
	}
	return mediaType, nil
}

func sniff(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	mt, _, _ := strings.Cut(http.DetectContentType(buf[:n]), ";")
	return mt, nil
}

// spool copies a file part to a fresh temp file, enforcing maxUploadBytes.
func (s *Server) spool(src io.Reader) (string, error) {
	if s.uploadDir != "" {
		if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
			return "", fmt.Errorf("create upload dir: %w", err)
		}
	}
	f, err := os.CreateTemp(s.uploadDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(src, s.maxUploadBytes+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(f.Name())
		return "", partError(copyErr)
	case n > s.maxUploadBytes:
		_ = os.Remove(f.Name())
		return "", rejectUpload(http.StatusRequestEntityTooLarge, "file too large")
	case closeErr != nil:
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", closeErr)
	}
	return f.Name(), nil
}

func readField(part io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", partError(err)
	}
	if len(data) > maxFieldBytes {
		return "", rejectUpload(http.StatusRequestEntityTooLarge, "field too large")
	}
	return string(data), nil
}

func partError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return rejectUpload(http.StatusRequestEntityTooLarge, "file too large")
	}
	return rejectUpload(http.StatusBadRequest, "invalid form data")
}
