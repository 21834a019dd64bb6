package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bidsmith/internal/domain"
	"bidsmith/internal/llm"
)

// Stage names recorded in DegradedStages.
const (
	StageExtract    = "extract"
	StageStrategize = "strategize"
	StageScore      = "score"
)

const fallbackWinScore = 50

// extraction mirrors the extractor's JSON reply.
type extraction struct {
	IsValidRfp      bool     `json:"isValidRfp"`
	RejectionReason string   `json:"rejectionReason"`
	ProjectTitle    string   `json:"projectTitle"`
	Agency          string   `json:"agency"`
	NAICSCode       string   `json:"naicsCode"`
	SetAside        string   `json:"setAside"`
	EstValue        string   `json:"estValue"`
	Deadline        string   `json:"deadline"`
	ComplianceItems []string `json:"complianceItems"`
}

type strategy struct {
	WinThemes    []string `json:"winThemes"`
	KeyRisks     []string `json:"keyRisks"`
	ExecBriefing string   `json:"execBriefing"`
}

type scoreReply struct {
	WinScore float64 `json:"winScore"`
}

var (
	extractionFallback = extraction{
		RejectionReason: "Failed to parse AI response.",
		ProjectTitle:    "N/A",
		Agency:          "N/A",
		NAICSCode:       "N/A",
		SetAside:        "N/A",
		EstValue:        "N/A",
		Deadline:        "N/A",
		ComplianceItems: []string{},
	}
	strategyFallback = strategy{
		WinThemes:    []string{"Technical excellence", "Past performance", "Cost efficiency"},
		KeyRisks:     []string{"Tight deadline", "Complex compliance requirements"},
		ExecBriefing: "Analysis unavailable.",
	}
)

// Analysis runs Extract, then Strategize and Score, over solicitation text.
type Analysis struct {
	gen                Generator
	router             ModelSelector
	prompts            PromptSource
	logger             *slog.Logger
	concurrentPrescore bool
}

// AnalysisOption configures an Analysis.
type AnalysisOption func(*Analysis)

// WithConcurrentPrescore runs a discarded preliminary score alongside
// Strategize, trading one extra call for latency parity with a parallel
// fan-out. The persisted score always comes from the rescore.
func WithConcurrentPrescore(enabled bool) AnalysisOption {
	return func(a *Analysis) { a.concurrentPrescore = enabled }
}

func WithAnalysisLogger(logger *slog.Logger) AnalysisOption {
	return func(a *Analysis) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAnalysis(gen Generator, router ModelSelector, prompts PromptSource, opts ...AnalysisOption) (*Analysis, error) {
	if gen == nil {
		return nil, errors.New("pipeline: generator must not be nil")
	}
	if router == nil {
		return nil, errors.New("pipeline: router must not be nil")
	}
	if prompts == nil {
		return nil, errors.New("pipeline: prompt source must not be nil")
	}
	a := &Analysis{gen: gen, router: router, prompts: prompts, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run analyzes source. Provider errors at any stage fail the run; malformed
// model output degrades to stage defaults and is listed in DegradedStages.
// The returned record has no ID, Owner or CreatedAt.
func (a *Analysis) Run(ctx context.Context, source string) (domain.SolicitationIntelligence, error) {
	var degraded []string

	ext, ok, err := a.extract(ctx, source)
	if err != nil {
		return domain.SolicitationIntelligence{}, fmt.Errorf("pipeline: extract: %w", err)
	}
	if !ok {
		degraded = append(degraded, StageExtract)
	}

	rec := domain.SolicitationIntelligence{
		IsValid:         ext.IsValidRfp,
		ProjectTitle:    ext.ProjectTitle,
		Agency:          ext.Agency,
		NAICSCode:       ext.NAICSCode,
		SetAsideType:    ext.SetAside,
		EstimatedValue:  ext.EstValue,
		Deadline:        ext.Deadline,
		ComplianceItems: capItems(ext.ComplianceItems, domain.MaxComplianceItems),
	}
	if !ext.IsValidRfp {
		rec.InvalidReason = strings.TrimSpace(ext.RejectionReason)
		if rec.InvalidReason == "" {
			rec.InvalidReason = "Document is not a procurement solicitation."
		}
		rec.ClearStrategy()
		rec.DegradedStages = nonNil(degraded)
		a.logger.Info("analysis rejected input", "reason", rec.InvalidReason)
		return rec, nil
	}

	strat, stratOK, err := a.strategizeAndPrescore(ctx, source, ext)
	if err != nil {
		return domain.SolicitationIntelligence{}, err
	}
	if !stratOK {
		degraded = append(degraded, StageStrategize)
	}

	score, scoreOK, err := a.score(ctx, ext, strat)
	if err != nil {
		return domain.SolicitationIntelligence{}, fmt.Errorf("pipeline: score: %w", err)
	}
	if !scoreOK {
		degraded = append(degraded, StageScore)
	}

	rec.WinThemes = nonNil(strat.WinThemes)
	rec.KeyRisks = nonNil(strat.KeyRisks)
	rec.ExecutiveBriefing = strat.ExecBriefing
	rec.WinScore = score
	rec.MatchScore = domain.MatchScoreFor(score)
	rec.DegradedStages = nonNil(degraded)
	if len(degraded) > 0 {
		a.logger.Warn("analysis completed with degraded stages", "stages", degraded)
	}
	return rec, nil
}

func (a *Analysis) strategizeAndPrescore(ctx context.Context, source string, ext extraction) (strategy, bool, error) {
	if !a.concurrentPrescore {
		strat, ok, err := a.strategize(ctx, source, ext)
		if err != nil {
			return strategy{}, false, fmt.Errorf("pipeline: strategize: %w", err)
		}
		return strat, ok, nil
	}

	var (
		strat strategy
		ok    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		strat, ok, err = a.strategize(gctx, source, ext)
		if err != nil {
			return fmt.Errorf("pipeline: strategize: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Preliminary score without strategy; only the rescore is kept.
		if _, _, err := a.score(gctx, ext, strategy{}); err != nil {
			return fmt.Errorf("pipeline: prescore: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return strategy{}, false, err
	}
	return strat, ok, nil
}

func (a *Analysis) extract(ctx context.Context, source string) (extraction, bool, error) {
	raw, err := a.call(ctx, domain.RoleExtractor, extractPrompt(source))
	if err != nil {
		return extraction{}, false, err
	}
	ext, ok := llm.ParseStructured(a.logger, StageExtract, raw, extractionFallback)
	return ext, ok, nil
}

func (a *Analysis) strategize(ctx context.Context, source string, ext extraction) (strategy, bool, error) {
	raw, err := a.call(ctx, domain.RoleStrategist, strategizePrompt(source, ext))
	if err != nil {
		return strategy{}, false, err
	}
	strat, ok := llm.ParseStructured(a.logger, StageStrategize, raw, strategyFallback)
	return strat, ok, nil
}

func (a *Analysis) score(ctx context.Context, ext extraction, strat strategy) (int, bool, error) {
	raw, err := a.call(ctx, domain.RoleScorer, scorePrompt(ext, strat))
	if err != nil {
		return 0, false, err
	}
	reply, ok := llm.ParseStructured(a.logger, StageScore, raw, scoreReply{WinScore: fallbackWinScore})
	// Bound before converting: out-of-range float to int is implementation-defined.
	score := math.Min(math.Max(reply.WinScore, 0), 100)
	return domain.ClampScore(int(math.Round(score))), ok, nil
}

func (a *Analysis) call(ctx context.Context, role domain.Role, prompt string) (string, error) {
	ref := a.router.Select(role)
	start := time.Now()
	raw, err := a.gen.Generate(ctx, ref, []domain.ChatMessage{
		system(a.prompts.Prompt(ctx, role)),
		user(prompt),
	})
	a.logger.Debug("analysis stage call", "role", role, "model", ref.String(), "duration_ms", time.Since(start).Milliseconds(), "ok", err == nil)
	return raw, err
}

func capItems(items []string, max int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		if len(out) == max {
			break
		}
		out = append(out, item)
	}
	return out
}
