package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"avatarsynth/internal/httpkit"
	apperrors "avatarsynth/internal/pkg/errors"
	"avatarsynth/internal/synthesis"
	"avatarsynth/internal/worker"
)

type SynthesizeResponse struct {
	Status   string `json:"status"`
	JobID    string `json:"job_id"`
	VideoURL string `json:"video_url,omitempty"`
	PlayURL  string `json:"play_url,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

func playURL(jobID string) string {
	return "/play_video?" + url.Values{"job_id": {jobID}}.Encode()
}

func decodeInput(r *http.Request) (synthesis.Input, error) {
	var in synthesis.Input
	if err := httpkit.DecodeOptionalJSON(r, &in); err != nil {
		return in, apperrors.Validation("invalid json body").WithField("cause", err.Error())
	}
	return in, nil
}

// Synthesize submits a job and blocks until it is done.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) error {
	in, err := decodeInput(r)
	if err != nil {
		return err
	}

	j, err := h.synth.Synthesize(r.Context(), in)
	if err != nil {
		return err
	}

	if j.Succeeded() {
		httpkit.WriteJSON(w, http.StatusOK, SynthesizeResponse{
			Status:   "success",
			JobID:    j.ID,
			VideoURL: j.ResultURL,
			PlayURL:  playURL(j.ID),
		})
		return nil
	}

	httpkit.WriteJSON(w, http.StatusOK, SynthesizeResponse{
		Status: "failed",
		JobID:  j.ID,
		Reason: string(j.Outcome),
		Error:  j.Error,
	})
	return nil
}

// PostJob submits a job and polls it in the background.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	in, err := decodeInput(r)
	if err != nil {
		return err
	}

	j, err := h.synth.Submit(r.Context(), in)
	if err != nil {
		return err
	}

	if j.Done() {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": j})
		return nil
	}

	if err := h.runner.Start(j); err != nil {
		if errors.Is(err, worker.ErrStopped) {
			return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "jobs.start", "service is shutting down")
		}
		return err
	}

	w.Header().Set("Location", "/jobs/"+j.ID)
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": j})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	j, err := h.store.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		return err
	}

	out := map[string]any{"job": j}
	if j.Succeeded() {
		out["play_url"] = playURL(j.ID)
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
	return nil
}

// DeleteJob stops polling a job and removes it from the speech service.
// Remote and archive cleanup are best effort. The record stays, without
// its video references, so play_video answers 404 for it afterwards.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobId")
	log := h.log.FromContext(ctx).WithJobID(jobID)

	j, err := h.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	canceled := h.runner.Cancel(jobID)

	remoteDeleted := true
	if err := h.speech.Delete(ctx, jobID); err != nil {
		remoteDeleted = false
		log.WithError(err).Warn("remote job delete failed")
	}

	if j.VideoObjectKey != "" && h.archive != nil {
		if err := h.archive.Remove(ctx, j.VideoObjectKey); err != nil {
			log.WithError(err).Warn("archived video delete failed", "object_key", j.VideoObjectKey)
		}
	}

	videoRemoved := false
	if j.ResultURL != "" || j.VideoObjectKey != "" {
		j.ResultURL = ""
		j.VideoObjectKey = ""
		j.Error = "video deleted"
		j.UpdatedAt = time.Now()
		if err := h.store.Update(ctx, j); err != nil {
			log.WithError(err).Warn("job record update failed")
		} else {
			videoRemoved = true
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"job_id":         jobID,
		"canceled":       canceled,
		"remote_deleted": remoteDeleted,
		"video_removed":  videoRemoved,
	})
	return nil
}
