package handlers

import (
	"context"
	"io"

	"avatarsynth/internal/jobs"
	"avatarsynth/internal/pkg/logger"
	"avatarsynth/internal/speech"
	"avatarsynth/internal/synthesis"
)

// Synthesizer submits jobs and drives them to completion.
type Synthesizer interface {
	Submit(ctx context.Context, in synthesis.Input) (*jobs.Job, error)
	Synthesize(ctx context.Context, in synthesis.Input) (*jobs.Job, error)
	Options(in synthesis.Input) speech.AvatarOptions
}

// Runner polls jobs in the background.
type Runner interface {
	Start(j *jobs.Job) error
	Cancel(id string) bool
}

// SpeechAPI is the direct speech service access the handlers need.
type SpeechAPI interface {
	List(ctx context.Context, skip, maxPageSize int) (*speech.SynthesisList, error)
	Delete(ctx context.Context, id string) error
	Download(ctx context.Context, resultURL string) (io.ReadCloser, string, int64, error)
}

// Archive reads and removes archived videos.
type Archive interface {
	Open(ctx context.Context, objectKey string) (io.ReadCloser, int64, error)
	Remove(ctx context.Context, objectKey string) error
	Check(ctx context.Context) error
	Provider() string
}

// Pinger is implemented by the Redis job store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Synth  Synthesizer
	Runner Runner
	Store  jobs.Store
	Speech SpeechAPI
	// Archive is nil when no storage provider is configured.
	Archive Archive
	// Redis is nil when jobs are kept in memory.
	Redis    Pinger
	AuthMode string
	Version  string
	Log      *logger.Logger
}

type Handler struct {
	synth    Synthesizer
	runner   Runner
	store    jobs.Store
	speech   SpeechAPI
	archive  Archive
	redis    Pinger
	authMode string
	version  string
	log      *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		synth:    d.Synth,
		runner:   d.Runner,
		store:    d.Store,
		speech:   d.Speech,
		archive:  d.Archive,
		redis:    d.Redis,
		authMode: d.AuthMode,
		version:  d.Version,
		log:      log,
	}
}
