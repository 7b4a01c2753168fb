package client

import (
	"fmt"
	"io"
	"mime/multipart"
)

// MultipartFile streams src as a single file field of a multipart/form-data body.
// The returned reader must be consumed (or closed) for the copy goroutine to exit;
// src is closed once it has been copied.
func MultipartFile(field, filename string, src io.ReadCloser) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer src.Close()

		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("failed to create form file: %w", err))
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(fmt.Errorf("failed to stream %s: %w", filename, err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType()
}
