package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"bidsmith/internal/domain"
)

// ErrDraftFailed is returned when both the staged flow and the emergency
// fallback failed before producing any output.
var ErrDraftFailed = errors.New("pipeline: draft failed")

// DraftPath records which branch produced the streamed answer.
type DraftPath string

const (
	PathRefined   DraftPath = "refined"
	PathFollowUp  DraftPath = "follow_up"
	PathEmergency DraftPath = "emergency"
)

// DraftRequest is one chat or proposal turn.
type DraftRequest struct {
	Messages    domain.Conversation
	Context     string
	Constraints string
}

// DraftResult carries the answer stream. The stream has already produced its
// first chunk, so a caller can commit response headers before reading it.
// Errors from Recv after that point mean the answer was cut short.
type DraftResult struct {
	Stream   domain.TextStream
	Path     DraftPath
	Critique Critique
	Feedback string
}

// Draft runs writer, critic and refiner for first turns and refiner alone
// for follow-ups, failing over once to the emergency model.
type Draft struct {
	gen     Generator
	router  ModelSelector
	prompts PromptSource
	logger  *slog.Logger
}

func NewDraft(gen Generator, router ModelSelector, prompts PromptSource, logger *slog.Logger) (*Draft, error) {
	if gen == nil {
		return nil, errors.New("pipeline: generator must not be nil")
	}
	if router == nil {
		return nil, errors.New("pipeline: router must not be nil")
	}
	if prompts == nil {
		return nil, errors.New("pipeline: prompt source must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Draft{gen: gen, router: router, prompts: prompts, logger: logger}, nil
}

// Run produces the answer for req. It returns an error wrapping
// ErrDraftFailed only when the emergency fallback also failed.
func (d *Draft) Run(ctx context.Context, req DraftRequest) (DraftResult, error) {
	if len(req.Messages) == 0 {
		return DraftResult{}, errors.New("pipeline: conversation is empty")
	}
	res, err := d.staged(ctx, req)
	if err == nil {
		return res, nil
	}
	d.logger.Warn("draft pipeline failed, using emergency model", "err", err)

	stream, emergencyErr := d.emergency(ctx, req)
	if emergencyErr != nil {
		d.logger.Error("emergency fallback failed", "err", emergencyErr)
		return DraftResult{}, fmt.Errorf("%w: %w", ErrDraftFailed, errors.Join(err, emergencyErr))
	}
	return DraftResult{
		Stream:   stream,
		Path:     PathEmergency,
		Feedback: FeedbackEmergency,
	}, nil
}

func (d *Draft) staged(ctx context.Context, req DraftRequest) (DraftResult, error) {
	if !req.Messages.IsFirstTurn() {
		msgs := append([]domain.ChatMessage{system(d.prompts.Prompt(ctx, domain.RoleWriter) + contextBlock(req))}, req.Messages...)
		stream, err := d.open(ctx, domain.RoleRefiner, msgs)
		if err != nil {
			return DraftResult{}, fmt.Errorf("refine: %w", err)
		}
		return DraftResult{Stream: stream, Path: PathFollowUp, Critique: Critique{Kind: CritiqueSkipped}, Feedback: FeedbackFollowUp}, nil
	}

	writerMsgs := append([]domain.ChatMessage{system(d.prompts.Prompt(ctx, domain.RoleWriter) + contextBlock(req))}, req.Messages...)
	draft, err := d.gen.Generate(ctx, d.router.Select(domain.RoleWriter), writerMsgs)
	if err != nil {
		return DraftResult{}, fmt.Errorf("write: %w", err)
	}

	critique := d.critique(ctx, req, draft)

	refineMsgs := []domain.ChatMessage{system(d.prompts.Prompt(ctx, domain.RoleRefiner) + contextBlock(req))}
	refineMsgs = append(refineMsgs, req.Messages...)
	refineMsgs = append(refineMsgs, assistant(draft), user(refineInstruction(critique)))
	stream, err := d.open(ctx, domain.RoleRefiner, refineMsgs)
	if err != nil {
		return DraftResult{}, fmt.Errorf("refine: %w", err)
	}
	return DraftResult{Stream: stream, Path: PathRefined, Critique: critique, Feedback: critique.Feedback()}, nil
}

// critique never fails: a critic outage after one fallback attempt is
// reported as CritiqueUnavailable and treated as compliant downstream.
func (d *Draft) critique(ctx context.Context, req DraftRequest, draft string) Critique {
	msgs := []domain.ChatMessage{
		system(d.prompts.Prompt(ctx, domain.RoleCritic)),
		user(criticPrompt(req, draft)),
	}
	text, err := d.gen.Generate(ctx, d.router.Select(domain.RoleCritic), msgs)
	if err == nil {
		return ClassifyCritique(text)
	}
	d.logger.Warn("critic failed, retrying with fallback critic", "err", err)
	text, err = d.gen.Generate(ctx, d.router.Select(domain.RoleCriticFallback), msgs)
	if err == nil {
		return ClassifyCritique(text)
	}
	d.logger.Warn("fallback critic failed, skipping critique", "err", err)
	return Critique{Kind: CritiqueUnavailable}
}

func (d *Draft) emergency(ctx context.Context, req DraftRequest) (domain.TextStream, error) {
	msgs := []domain.ChatMessage{
		system(d.prompts.Prompt(ctx, domain.RoleEmergency) + contextBlock(req)),
		user(req.Messages.LastUserMessage()),
	}
	return d.open(ctx, domain.RoleEmergency, msgs)
}

// open starts a stream and waits for its first chunk so that failures
// surface before the caller commits to a response.
func (d *Draft) open(ctx context.Context, role domain.Role, msgs []domain.ChatMessage) (domain.TextStream, error) {
	ref := d.router.Select(role)
	stream, err := d.gen.Stream(ctx, ref, msgs)
	if err != nil {
		return nil, err
	}
	for {
		first, err := stream.Recv()
		if err != nil {
			_ = stream.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s returned an empty stream", ref)
			}
			return nil, err
		}
		if first != "" {
			return &peekedStream{first: first, pending: true, inner: stream}, nil
		}
	}
}

type peekedStream struct {
	first   string
	pending bool
	inner   domain.TextStream
}

func (s *peekedStream) Recv() (string, error) {
	if s.pending {
		s.pending = false
		return s.first, nil
	}
	return s.inner.Recv()
}

func (s *peekedStream) Close() error {
	return s.inner.Close()
}

// Collect drains stream into a string and closes it.
func Collect(stream domain.TextStream) (string, error) {
	defer stream.Close()
	var out []byte
	for {
		chunk, err := stream.Recv()
		out = append(out, chunk...)
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
	}
}
