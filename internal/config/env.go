package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOverlay applies environment variables on top of cfg. Unset or blank
// variables leave the current value alone.
type envOverlay struct {
	errs []error
}

func (o *envOverlay) str(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (o *envOverlay) boolean(key string, dst *bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		o.errs = append(o.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (o *envOverlay) integer(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		o.errs = append(o.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (o *envOverlay) duration(key string, dst *time.Duration) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		o.errs = append(o.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (o *envOverlay) csv(key string, dst *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

// keyValues parses "name=value,name2=value2" into a map.
func (o *envOverlay) keyValues(key string, dst *map[string]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	out := make(map[string]string)
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			o.errs = append(o.errs, fmt.Errorf("%s: expected name=value, got %q", key, p))
			return
		}
		out[k] = v
	}
	if len(out) > 0 {
		*dst = out
	}
}
