package storage

import (
	"context"
	"fmt"
	"io"

	"avatarsynth/internal/pkg/logger"
	"avatarsynth/internal/ports"
)

const videoContentType = "video/mp4"

// Downloader fetches a finished video from the speech service.
type Downloader interface {
	Download(ctx context.Context, resultURL string) (io.ReadCloser, string, int64, error)
}

// Archive copies succeeded videos into a Provider so they outlive the
// speech service's pre-signed result URLs.
type Archive struct {
	sp  Provider
	dl  Downloader
	log *logger.Logger
}

func NewArchive(sp Provider, dl Downloader, log *logger.Logger) *Archive {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Archive{sp: sp, dl: dl, log: log.WithComponent("archive")}
}

// VideoKey is the object key a job's video is archived under.
func VideoKey(jobID string) string {
	return "videos/" + jobID + ".mp4"
}

// Archive downloads resultURL and stores it. It returns the provider's object key.
func (a *Archive) Archive(ctx context.Context, jobID, resultURL string) (string, error) {
	body, _, size, err := a.dl.Download(ctx, resultURL)
	if err != nil {
		return "", fmt.Errorf("download result: %w", err)
	}
	defer body.Close()

	out, err := a.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   VideoKey(jobID),
		ContentType: videoContentType,
		Reader:      body,
		Size:        size,
	})
	if err != nil {
		return "", fmt.Errorf("store video: %w", err)
	}

	a.log.WithJobID(jobID).Info("video archived",
		"provider", a.sp.Provider(),
		"object_key", out.ObjectKey,
		"size", out.Size,
	)
	return out.ObjectKey, nil
}

// Open returns the archived video stored under objectKey.
func (a *Archive) Open(ctx context.Context, objectKey string) (io.ReadCloser, int64, error) {
	rc, _, size, err := a.sp.GetObject(ctx, objectKey)
	if err != nil {
		return nil, 0, err
	}
	return rc, size, nil
}

// Remove deletes the archived video stored under objectKey.
func (a *Archive) Remove(ctx context.Context, objectKey string) error {
	return a.sp.DeleteObject(ctx, objectKey)
}

// Check reports whether the provider is usable.
func (a *Archive) Check(ctx context.Context) error {
	return a.sp.Check(ctx)
}

func (a *Archive) Provider() string {
	return a.sp.Provider()
}
