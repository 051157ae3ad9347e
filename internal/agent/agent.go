// Package agent implements the query orchestrator: every query is classified,
// dispatched to exactly one handler and returned with its provenance.
//
// A query moves through Received → Classified → Dispatched → Completed, or to
// Failed from any state. A failed handler is never silently replaced by
// another; the error names the tool that was tried.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/rag"
	"github.com/54b3r/raga-go/internal/router"
	"github.com/54b3r/raga-go/internal/store"
	"github.com/54b3r/raga-go/internal/tools"
)

// State is a step of the query state machine.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateDispatched State = "dispatched"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Answer sources recorded in QueryResponse.Source.
const (
	SourceDocuments = "documents"
	SourceNoContext = "no_context"
)

// Snippet is one retrieved passage returned with a document answer.
type Snippet struct {
	Source  string  `json:"source"`
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
	Ordinal int     `json:"ordinal"`
}

// QueryResponse is the result of one query. It is not modified after Query
// returns.
type QueryResponse struct {
	Query          string        `json:"query"`
	Answer         string        `json:"answer"`
	Tool           router.Route  `json:"tool"`
	Rationale      string        `json:"rationale"`
	MatchedPattern string        `json:"matched_pattern,omitempty"`
	Source         string        `json:"source,omitempty"`
	Snippets       []Snippet     `json:"snippets"`
	State          State         `json:"state"`
	Duration       time.Duration `json:"-"`
}

// Retriever fetches the context bundle for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, minScore float32) ([]rag.Result, error)
}

// Answerer generates text from a context bundle or a free-form prompt.
// Answer returns the subset of results the model was actually shown.
type Answerer interface {
	Answer(ctx context.Context, query string, results []rag.Result) (string, []rag.Result, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// Calculator evaluates arithmetic in a query.
type Calculator interface {
	Evaluate(ctx context.Context, text string) (tools.Calculation, error)
}

// Definer resolves term definitions.
type Definer interface {
	Define(ctx context.Context, term string) (tools.Definition, error)
}

// Sampler returns random stored chunks.
type Sampler interface {
	Sample(ctx context.Context, n int) ([]rag.Chunk, error)
}

// Observer receives query outcomes, e.g. for metrics. Optional.
type Observer interface {
	ObserveQuery(tool, status string, d time.Duration)
	ObserveRetrieval(results int)
}

// Config holds the dependencies of an Orchestrator.
type Config struct {
	Retriever  Retriever
	Generator  Answerer
	Calculator Calculator
	Dictionary Definer
	// Sampler feeds Suggest. Optional.
	Sampler Sampler
	// Log records every query outcome. Optional.
	Log store.QueryLog
	// Observer receives outcomes for metrics. Optional.
	Observer Observer
	// TopK and MinScore are passed to the retriever; zero and negative
	// values select its defaults.
	TopK     int
	MinScore float32
	// Timeout bounds one query. Zero disables the bound.
	Timeout time.Duration
}

// Orchestrator routes queries to their handler.
type Orchestrator struct {
	cfg Config
}

// New constructs an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Retriever == nil:
		return nil, apperr.New(apperr.KindConfiguration, "agent: Retriever must not be nil")
	case cfg.Generator == nil:
		return nil, apperr.New(apperr.KindConfiguration, "agent: Generator must not be nil")
	case cfg.Calculator == nil:
		return nil, apperr.New(apperr.KindConfiguration, "agent: Calculator must not be nil")
	case cfg.Dictionary == nil:
		return nil, apperr.New(apperr.KindConfiguration, "agent: Dictionary must not be nil")
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Query classifies query, dispatches it to one handler and returns the
// response. On failure the partial response still carries the chosen tool and
// rationale, the answer and snippets stay empty, and the error is attributed
// to the tool.
func (o *Orchestrator) Query(ctx context.Context, query string) (*QueryResponse, error) {
	start := time.Now()
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}
	ctx, log := logging.With(ctx, "component", "orchestrator")

	resp := &QueryResponse{Query: query, State: StateReceived, Snippets: []Snippet{}}
	finish := func(err error) (*QueryResponse, error) {
		resp.Duration = time.Since(start)
		status := store.StatusCompleted
		if err != nil {
			resp.State = StateFailed
			resp.Answer = ""
			resp.Source = ""
			resp.Snippets = []Snippet{}
			status = store.StatusFailed
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !apperr.Is(err, apperr.KindTimeout) {
				err = apperr.Wrap(err, apperr.KindTimeout, "query deadline exceeded")
			}
			if resp.Tool != "" {
				err = apperr.WithTool(err, string(resp.Tool))
			}
			log.Warn("query failed",
				"tool", resp.Tool,
				"kind", apperr.KindOf(err),
				"duration_ms", resp.Duration.Milliseconds(),
				"error", err,
			)
		} else {
			resp.State = StateCompleted
			log.Info("query completed",
				"tool", resp.Tool,
				"source", resp.Source,
				"snippets", len(resp.Snippets),
				"duration_ms", resp.Duration.Milliseconds(),
			)
		}
		o.record(ctx, resp, status, err)
		return resp, err
	}

	if strings.TrimSpace(query) == "" {
		return finish(apperr.New(apperr.KindValidation, "query must not be empty"))
	}

	decision := router.Classify(query)
	resp.Tool = decision.Route
	resp.Rationale = decision.Rationale
	resp.MatchedPattern = decision.MatchedPattern
	resp.State = StateClassified
	log.Debug("query classified",
		"tool", decision.Route,
		"pattern", decision.MatchedPattern,
		"rationale", decision.Rationale,
	)

	resp.State = StateDispatched
	var err error
	switch decision.Route {
	case router.RouteCalculator:
		err = o.calculate(ctx, query, resp)
	case router.RouteDictionary:
		err = o.define(ctx, query, resp)
	default:
		err = o.answer(ctx, query, resp)
	}
	return finish(err)
}

func (o *Orchestrator) calculate(ctx context.Context, query string, resp *QueryResponse) error {
	res, err := o.cfg.Calculator.Evaluate(ctx, query)
	if err != nil {
		return err
	}
	resp.Answer = res.String()
	return nil
}

func (o *Orchestrator) define(ctx context.Context, query string, resp *QueryResponse) error {
	def, err := o.cfg.Dictionary.Define(ctx, tools.ExtractTerm(query))
	if err != nil {
		return err
	}
	resp.Answer = def.Text
	resp.Source = string(def.Source)
	return nil
}

func (o *Orchestrator) answer(ctx context.Context, query string, resp *QueryResponse) error {
	results, err := o.cfg.Retriever.Retrieve(ctx, query, o.cfg.TopK, o.minScore())
	if err != nil {
		return err
	}
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveRetrieval(len(results))
	}
	answer, used, err := o.cfg.Generator.Answer(ctx, query, results)
	if err != nil {
		return err
	}
	resp.Answer = answer
	resp.Source = SourceDocuments
	if len(used) == 0 {
		resp.Source = SourceNoContext
	}
	resp.Snippets = make([]Snippet, len(used))
	for i, r := range used {
		resp.Snippets[i] = Snippet{Source: r.Source(), Text: r.Text, Score: r.Score, Ordinal: r.Ordinal}
	}
	return nil
}

// minScore maps the zero value to "use the retriever default".
func (o *Orchestrator) minScore() float32 {
	if o.cfg.MinScore == 0 {
		return -1
	}
	return o.cfg.MinScore
}

// record writes the outcome to the query log and observer. Failures to log
// never fail the query.
func (o *Orchestrator) record(ctx context.Context, resp *QueryResponse, status string, qerr error) {
	tool := string(resp.Tool)
	if tool == "" {
		tool = "none"
	}
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveQuery(tool, status, resp.Duration)
	}
	if o.cfg.Log == nil {
		return
	}
	rec := store.QueryRecord{
		Query:      resp.Query,
		Tool:       tool,
		Rationale:  resp.Rationale,
		Status:     status,
		DurationMS: resp.Duration.Milliseconds(),
	}
	if qerr != nil {
		rec.Kind = string(apperr.KindOf(qerr))
	}
	// The request context may already be done; the log write gets its own.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := o.cfg.Log.Append(lctx, rec); err != nil {
		logging.FromContext(ctx).Warn("query log: failed to record query", "error", fmt.Errorf("agent: %w", err))
	}
}
