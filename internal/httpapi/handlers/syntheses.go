package handlers

import (
	"net/http"
	"strconv"

	"avatarsynth/internal/httpkit"
	apperrors "avatarsynth/internal/pkg/errors"
	"avatarsynth/internal/speech"
)

const maxPageSize = 100

// ListSyntheses proxies the speech service's batch synthesis listing.
func (h *Handler) ListSyntheses(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	skip := 0
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return apperrors.ValidationField("skip", "skip must be a non-negative integer")
		}
		skip = n
	}

	size := maxPageSize
	if v := q.Get("maxpagesize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return apperrors.ValidationField("maxpagesize", "maxpagesize must be between 1 and 100")
		}
		size = n
	}

	list, err := h.speech.List(r.Context(), skip, size)
	if err != nil {
		return apperrors.Upstream("speech.list", speech.StatusCode(err), err)
	}

	out := map[string]any{
		"items": list.Value,
		"skip":  skip,
		"limit": size,
	}
	if list.NextLink != "" {
		out["next_skip"] = skip + len(list.Value)
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
	return nil
}
