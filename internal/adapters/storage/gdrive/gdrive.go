package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"avatarsynth/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive.
// Uploads use the object key as the file name; the returned key is the
// Drive file id, which Get and Delete expect.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{Name: in.ObjectKey, MimeType: in.ContentType}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true).Fields("id", "size")
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	size := created.Size
	if size == 0 {
		size = in.Size
	}
	return ports.PutObjectOutput{ObjectKey: created.Id, Size: size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, err
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	return err
}

// Check reads the Drive account the service authenticates as.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.srv.About.Get().Fields("user").Context(ctx).Do()
	return err
}
