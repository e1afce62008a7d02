// Package synthesis drives a batch avatar synthesis job from submission to a
// terminal outcome and records every step on the job's record.
package synthesis

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"avatarsynth/internal/jobs"
	"avatarsynth/internal/metrics"
	apperrors "avatarsynth/internal/pkg/errors"
	"avatarsynth/internal/pkg/logger"
	"avatarsynth/internal/speech"
)

// Speech is the part of the speech client the orchestrator uses.
type Speech interface {
	Submit(ctx context.Context, id string, req speech.SynthesisRequest) (*speech.Synthesis, error)
	Get(ctx context.Context, id string) (*speech.Synthesis, error)
}

// Archiver copies a finished video somewhere durable and returns its object key.
type Archiver interface {
	Archive(ctx context.Context, jobID, resultURL string) (string, error)
}

type Config struct {
	PollInterval  time.Duration
	MaxWait       time.Duration
	MaxPollErrors int
	Defaults      speech.AvatarOptions
}

type Deps struct {
	Speech   Speech
	Store    jobs.Store
	Archiver Archiver
	Log      *logger.Logger
}

// Input is the optional per-request override of the avatar defaults.
type Input struct {
	Text            string `json:"text,omitempty"`
	Voice           string `json:"voice,omitempty"`
	Character       string `json:"character,omitempty"`
	Style           string `json:"style,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	Customized      *bool  `json:"customized,omitempty"`
	// CustomVoices adds voice name to deployment id entries over the defaults.
	CustomVoices map[string]string `json:"custom_voices,omitempty"`
}

// PollResult is one observation of a remote job. ResultURL is set only when
// Status is Succeeded.
type PollResult struct {
	Status    string
	ResultURL string
	Reason    string
}

type Orchestrator struct {
	speech   Speech
	store    jobs.Store
	archiver Archiver
	log      *logger.Logger
	cfg      Config

	now   func() time.Time
	newID func() string
}

func New(d Deps, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Minute
	}
	if cfg.MaxPollErrors < 1 {
		cfg.MaxPollErrors = 3
	}
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{
		speech:   d.Speech,
		store:    d.Store,
		archiver: d.Archiver,
		log:      log.WithComponent("synthesis"),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    NewJobID,
	}
}

// NewJobID returns a random version 4 UUID.
func NewJobID() string {
	return uuid.New().String()
}

const maxIDAttempts = 3

// Options merges in over the configured defaults.
func (o *Orchestrator) Options(in Input) speech.AvatarOptions {
	opts := o.cfg.Defaults
	if s := strings.TrimSpace(in.Text); s != "" {
		opts.Text = s
	}
	if in.Voice != "" {
		opts.Voice = in.Voice
	}
	if in.Character != "" {
		opts.Character = in.Character
	}
	if in.Style != "" {
		opts.Style = in.Style
	}
	if in.BackgroundColor != "" {
		opts.BackgroundColor = in.BackgroundColor
	}
	if in.Customized != nil {
		opts.Customized = *in.Customized
	}
	if len(in.CustomVoices) > 0 {
		merged := make(map[string]string, len(opts.CustomVoices)+len(in.CustomVoices))
		maps.Copy(merged, opts.CustomVoices)
		maps.Copy(merged, in.CustomVoices)
		opts.CustomVoices = merged
	}
	return opts
}

// Submit records a new job and submits it. A refused submission is not an
// error: the returned job is done with outcome rejected. Errors are reserved
// for job store failures.
func (o *Orchestrator) Submit(ctx context.Context, in Input) (*jobs.Job, error) {
	opts := o.Options(in)
	if opts.Text == "" {
		return nil, apperrors.ValidationField("text", "text must not be empty")
	}

	j, err := o.create(ctx, opts)
	if err != nil {
		return nil, err
	}
	log := o.log.WithJobID(j.ID)

	_, err = o.speech.Submit(ctx, j.ID, speech.NewSynthesisRequest(opts))
	if err != nil {
		metrics.IncSubmitted(false)
		var se *speech.StatusError
		if errors.As(err, &se) {
			log.Error("synthesis submission rejected", "status", se.StatusCode, "body", se.Body)
		} else {
			log.Error("synthesis submission failed", "error", err.Error())
		}
		j.Error = err.Error()
		j.Finish(jobs.OutcomeRejected, o.now())
		o.save(ctx, j)
		metrics.ObserveCompleted(string(j.Outcome), 0)
		return j, nil
	}

	metrics.IncSubmitted(true)
	log.Info("synthesis job submitted")

	j.Phase = jobs.PhasePolling
	j.UpdatedAt = o.now()
	o.save(ctx, j)
	return j, nil
}

func (o *Orchestrator) create(ctx context.Context, opts speech.AvatarOptions) (*jobs.Job, error) {
	var lastErr error
	for i := 0; i < maxIDAttempts; i++ {
		now := o.now()
		j := &jobs.Job{
			ID:        o.newID(),
			Phase:     jobs.PhaseSubmitting,
			Voice:     opts.Voice,
			Character: opts.Character,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := o.store.Create(ctx, j)
		if err == nil {
			return j, nil
		}
		if !apperrors.IsCode(err, apperrors.CodeConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Poll reads the remote state of job id once.
func (o *Orchestrator) Poll(ctx context.Context, id string) (PollResult, error) {
	s, err := o.speech.Get(ctx, id)
	if err != nil {
		return PollResult{}, err
	}

	res := PollResult{Status: s.Status}
	switch s.Status {
	case speech.StatusSucceeded:
		res.ResultURL = s.ResultURL()
	case speech.StatusFailed:
		res.Reason = s.FailureReason()
	}
	return res, nil
}

// Await polls j until it reaches a terminal outcome, MaxWait elapses or ctx is
// canceled. The first poll is immediate. The returned job is always done.
func (o *Orchestrator) Await(ctx context.Context, j *jobs.Job) *jobs.Job {
	if j.Done() {
		return j
	}

	log := o.log.WithJobID(j.ID)
	start := o.now()
	deadline := start.Add(o.cfg.MaxWait)

	timer := time.NewTimer(o.cfg.PollInterval)
	timer.Stop()
	defer timer.Stop()

	consecutiveErrs := 0
	for {
		if ctx.Err() != nil {
			o.finish(ctx, j, jobs.OutcomeCanceled, start)
			return j
		}

		res, err := o.Poll(ctx, j.ID)
		j.PollCount++
		j.UpdatedAt = o.now()

		switch {
		case err != nil && ctx.Err() != nil:
			o.finish(ctx, j, jobs.OutcomeCanceled, start)
			return j

		case err != nil:
			consecutiveErrs++
			j.Error = err.Error()
			transient := speech.IsTransient(err)
			if !transient {
				metrics.IncPoll("permanent_error")
				log.Error("job status check failed", "error", err.Error(), "status", speech.StatusCode(err))
				o.finish(ctx, j, jobs.OutcomeUnreachable, start)
				return j
			}
			metrics.IncPoll("transient_error")
			if consecutiveErrs >= o.cfg.MaxPollErrors {
				log.Error("job status unreachable, giving up",
					"error", err.Error(),
					"consecutive_errors", consecutiveErrs,
				)
				o.finish(ctx, j, jobs.OutcomeUnreachable, start)
				return j
			}
			log.Warn("job status check failed, retrying",
				"error", err.Error(),
				"consecutive_errors", consecutiveErrs,
			)

		default:
			metrics.IncPoll("ok")
			consecutiveErrs = 0
			j.Error = ""
			j.RemoteStatus = res.Status

			switch res.Status {
			case speech.StatusSucceeded:
				if res.ResultURL == "" {
					j.Error = "service reported success without a result"
					o.finish(ctx, j, jobs.OutcomeFailed, start)
					return j
				}
				j.ResultURL = res.ResultURL
				log.Info("synthesis job succeeded", "video_url", res.ResultURL)
				o.archive(ctx, j)
				o.finish(ctx, j, jobs.OutcomeSucceeded, start)
				return j

			case speech.StatusFailed:
				j.Error = res.Reason
				log.Error("synthesis job failed", "reason", res.Reason)
				o.finish(ctx, j, jobs.OutcomeFailed, start)
				return j

			default:
				log.Info("synthesis job still running", "status", res.Status)
			}
		}

		o.save(ctx, j)

		remaining := deadline.Sub(o.now())
		if remaining <= 0 {
			o.finish(ctx, j, jobs.OutcomeTimedOut, start)
			return j
		}
		timer.Reset(min(o.cfg.PollInterval, remaining))

		select {
		case <-ctx.Done():
			o.finish(ctx, j, jobs.OutcomeCanceled, start)
			return j
		case <-timer.C:
		}

		if !o.now().Before(deadline) {
			log.Warn("synthesis job exceeded max wait", "max_wait", o.cfg.MaxWait.String())
			o.finish(ctx, j, jobs.OutcomeTimedOut, start)
			return j
		}
	}
}

// Synthesize submits in and waits for the outcome.
func (o *Orchestrator) Synthesize(ctx context.Context, in Input) (*jobs.Job, error) {
	j, err := o.Submit(ctx, in)
	if err != nil {
		return nil, err
	}
	return o.Await(ctx, j), nil
}

func (o *Orchestrator) archive(ctx context.Context, j *jobs.Job) {
	if o.archiver == nil {
		return
	}
	key, err := o.archiver.Archive(ctx, j.ID, j.ResultURL)
	if err != nil {
		o.log.WithJobID(j.ID).WithError(err).Warn("video archive failed, serving from upstream")
		return
	}
	j.VideoObjectKey = key
}

func (o *Orchestrator) finish(ctx context.Context, j *jobs.Job, outcome jobs.Outcome, start time.Time) {
	now := o.now()
	j.Finish(outcome, now)
	o.save(ctx, j)
	metrics.ObserveCompleted(string(outcome), now.Sub(start))
	o.log.WithJobID(j.ID).Info("synthesis job done", "outcome", string(outcome), "polls", j.PollCount)
}

// save writes j, detached from ctx so terminal states survive cancellation.
func (o *Orchestrator) save(ctx context.Context, j *jobs.Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.store.Update(ctx, j); err != nil {
		o.log.WithJobID(j.ID).WithError(err).Warn("job record update failed")
	}
}
