package handlers

import (
	"io"
	"net/http"
	"strconv"

	"avatarsynth/internal/httpkit"
	"avatarsynth/internal/jobs"
	"avatarsynth/internal/metrics"
	apperrors "avatarsynth/internal/pkg/errors"
	"avatarsynth/internal/speech"
)

const videoContentType = "video/mp4"

// PlayVideo streams the video of a succeeded job. The job is addressed by
// job_id or by the exact result URL the service reported for it; any other
// reference is refused.
func (h *Handler) PlayVideo(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	q := r.URL.Query()
	jobID := q.Get("job_id")
	ref := q.Get("video_url")

	if jobID == "" && ref == "" {
		return apperrors.Validation("job_id or video_url is required")
	}

	var (
		j   *jobs.Job
		err error
	)
	if jobID != "" {
		j, err = h.store.Get(ctx, jobID)
	} else {
		j, err = h.store.FindByResult(ctx, ref)
	}
	if err != nil {
		if apperrors.IsNotFound(err) {
			writeVideoNotFound(w, jobID, ref)
			return nil
		}
		return err
	}
	if !j.Succeeded() {
		writeVideoNotFound(w, j.ID, ref)
		return nil
	}

	log := h.log.FromContext(ctx).WithJobID(j.ID)

	if j.VideoObjectKey != "" && h.archive != nil {
		rc, size, err := h.archive.Open(ctx, j.VideoObjectKey)
		if err == nil {
			metrics.IncVideoServed("archive")
			streamVideo(w, rc, videoContentType, size)
			return nil
		}
		log.WithError(err).Warn("archived video unavailable, using result url",
			"object_key", j.VideoObjectKey,
		)
	}

	rc, ct, size, err := h.speech.Download(ctx, j.ResultURL)
	if err != nil {
		return apperrors.Upstream("speech.download", speech.StatusCode(err), err).
			WithField("job_id", j.ID)
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = videoContentType
	}
	metrics.IncVideoServed("upstream")
	streamVideo(w, rc, ct, size)
	return nil
}

func writeVideoNotFound(w http.ResponseWriter, jobID, ref string) {
	details := map[string]any{}
	if jobID != "" {
		details["job_id"] = jobID
	}
	if ref != "" {
		details["video_url"] = ref
	}
	httpkit.WriteErr(w, http.StatusNotFound, "VIDEO_NOT_FOUND", "video not found", details)
}

func streamVideo(w http.ResponseWriter, rc io.ReadCloser, ct string, size int64) {
	defer rc.Close()

	w.Header().Set("Content-Type", ct)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
}
