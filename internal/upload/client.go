// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package upload posts report images to the backend, one file per request,
// and tracks each in-flight upload as a cancelable single-shot session.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/StepanNazar/city-report/internal/http"
	"github.com/StepanNazar/city-report/internal/imageproc"
	"github.com/StepanNazar/city-report/internal/logger"
)

// fieldName is the multipart form field the backend expects the image in.
const fieldName = "image"

// Result is the backend's answer to a stored image.
type Result struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// TokenSource provides the bearer token for authenticated requests. An empty
// token sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

// Client uploads single image files to the backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *logger.Logger
}

// NewClient returns an upload client posting to <baseURL>/uploads/images.
func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		logger:     log,
	}
}

// Upload posts one file as a multipart request. There is no fixed deadline;
// the request stays cancelable through ctx for as long as it runs.
func (c *Client) Upload(ctx context.Context, file imageproc.File) (Result, error) {
	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return Result{}, err
	}

	headers := map[string]string{"Content-Type": contentType}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	}

	var result Result
	status, err := c.httpClient.PostNoTimeout(ctx, c.baseURL+"/uploads/images", &result, body, headers)
	if err != nil {
		return Result{}, fmt.Errorf("failed to upload image: %w", err)
	}
	if status < 200 || status > 299 {
		return Result{}, fmt.Errorf("image upload failed with HTTP status %d", status)
	}
	if result.ID == "" {
		return Result{}, errors.New("image upload response carries no ID")
	}
	c.logger.Debug("uploaded image", "name", file.Name, "id", result.ID)
	return result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, `\"`)

func encodeMultipart(file imageproc.File) (*bytes.Buffer, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="%s"`,
		fieldName, quoteEscaper.Replace(file.Name)))
	contentType := file.MIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err = part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buffer, writer.FormDataContentType(), nil
}
