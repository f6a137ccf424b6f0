// Package recommend is the recommendation orchestrator. Each call builds a
// prompt from the caller's preferences, resolves a provider, dispatches a
// blocking or streaming generation and parses the answer into a recipe.
// Daily plans run one pass per meal type and weekly plans seven daily
// plans, strictly in sequence.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/history"
	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/provider"
	"github.com/54b3r/eatwhat-go/internal/recipe"
)

// DaysPerWeek is the number of daily plans in a weekly plan.
const DaysPerWeek = 7

// Request is a generative recommendation request.
type Request struct {
	Preferences recipe.Preferences `json:"preferences"`
	// MealType is only honoured by single-meal calls.
	MealType recipe.MealType `json:"mealType,omitempty"`
	// Provider names the backend; empty and unknown names mean coze.
	Provider string `json:"provider,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// Resolver maps a provider kind and user to a Provider.
type Resolver interface {
	Resolve(ctx context.Context, kind provider.Kind, userID string) (provider.Provider, error)
}

// Orchestrator runs recommendation calls. It is safe for concurrent use.
type Orchestrator struct {
	router  Resolver
	history history.Log
	metrics *Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory appends every generated recipe to log.
func WithHistory(log history.Log) Option {
	return func(o *Orchestrator) { o.history = log }
}

// WithMetrics records call metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New returns an Orchestrator resolving providers through router.
func New(router Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{router: router, history: history.Nop{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Single returns one recipe for req.MealType (or any meal when unset).
func (o *Orchestrator) Single(ctx context.Context, req *Request) (rec *recipe.Recipe, err error) {
	defer o.observe(history.OpSingle, req, time.Now(), &err)
	return o.generate(ctx, history.OpSingle, req, req.MealType, nil)
}

// Daily returns breakfast, lunch and dinner in that order.
func (o *Orchestrator) Daily(ctx context.Context, req *Request) (recs []*recipe.Recipe, err error) {
	defer o.observe(history.OpDaily, req, time.Now(), &err)
	return o.day(ctx, history.OpDaily, req, nil)
}

// Weekly returns seven daily plans.
func (o *Orchestrator) Weekly(ctx context.Context, req *Request) (week [][]*recipe.Recipe, err error) {
	defer o.observe(history.OpWeekly, req, time.Now(), &err)

	week = make([][]*recipe.Recipe, 0, DaysPerWeek)
	for d := 0; d < DaysPerWeek; d++ {
		plan, err := o.day(logging.With(ctx, slog.Int("day", d+1)), history.OpWeekly, req, nil)
		if err != nil {
			return nil, fmt.Errorf("recommend: weekly day %d: %w", d+1, err)
		}
		week = append(week, plan)
	}
	return week, nil
}

// StreamSingle is Single with every piece of provider output passed to
// onChunk as it arrives.
func (o *Orchestrator) StreamSingle(ctx context.Context, req *Request, onChunk func(string)) (rec *recipe.Recipe, err error) {
	defer o.observe(history.OpStreamSingle, req, time.Now(), &err)
	return o.generate(ctx, history.OpStreamSingle, req, req.MealType, onChunk)
}

// StreamDaily is Daily with streamed provider output. All three passes use
// req.Provider.
func (o *Orchestrator) StreamDaily(ctx context.Context, req *Request, onChunk func(string)) (recs []*recipe.Recipe, err error) {
	defer o.observe(history.OpStreamDaily, req, time.Now(), &err)
	return o.day(ctx, history.OpStreamDaily, req, onChunk)
}

func (o *Orchestrator) day(ctx context.Context, op history.Operation, req *Request, onChunk func(string)) ([]*recipe.Recipe, error) {
	out := make([]*recipe.Recipe, 0, len(recipe.DailyMeals))
	for _, meal := range recipe.DailyMeals {
		rec, err := o.generate(ctx, op, req, meal, onChunk)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// generate runs one pass: build the prompt, resolve and dispatch the
// provider, then parse. A nil onChunk selects the blocking call.
func (o *Orchestrator) generate(ctx context.Context, op history.Operation, req *Request, meal recipe.MealType, onChunk func(string)) (*recipe.Recipe, error) {
	kind := provider.ParseKind(req.Provider)
	ctx = logging.With(ctx,
		slog.String("provider", string(kind)),
		slog.String("operation", string(op)),
		slog.String("meal_type", string(meal)),
	)
	log := logging.FromContext(ctx)

	preq := &provider.Request{
		Prompt: provider.BuildPrompt(req.Preferences, meal),
		UserID: req.UserID,
		Inputs: provider.WorkflowInputs(req.Preferences),
	}
	log.Debug("recommend: prompt built")

	p, err := o.router.Resolve(ctx, kind, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("recommend: %s resolve: %w", kind, err)
	}
	log.Debug("recommend: dispatched", slog.Bool("stream", onChunk != nil))

	var rec *recipe.Recipe
	if onChunk == nil {
		rec, err = o.complete(ctx, p, preq)
	} else {
		rec, err = o.stream(ctx, p, preq, onChunk)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("recommend: parsed", slog.String("recipe", rec.Name))

	o.record(ctx, op, kind, req.UserID, meal, rec)
	return rec, nil
}

func (o *Orchestrator) complete(ctx context.Context, p provider.Provider, req *provider.Request) (*recipe.Recipe, error) {
	res, err := p.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("recommend: %s complete: %w", p.Kind(), err)
	}
	var rec *recipe.Recipe
	if res.Outputs != nil {
		rec, err = recipe.ParseOutputs(res.Outputs)
	} else {
		rec, err = recipe.Parse(res.Text)
	}
	if err != nil {
		return nil, fmt.Errorf("recommend: %s parse: %w", p.Kind(), err)
	}
	return rec, nil
}

// stream forwards chunks to onChunk. Text providers accumulate the chunks
// and parse the whole answer; workflow providers parse the last outputs
// object seen on the stream.
func (o *Orchestrator) stream(ctx context.Context, p provider.Provider, req *provider.Request, onChunk func(string)) (*recipe.Recipe, error) {
	var (
		text    strings.Builder
		watcher outputsWatcher
	)
	workflow := p.Kind().Workflow()
	err := p.Stream(ctx, req, func(chunk string) {
		onChunk(chunk)
		if workflow {
			watcher.observe(chunk)
		} else {
			text.WriteString(chunk)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("recommend: %s stream: %w", p.Kind(), err)
	}

	var rec *recipe.Recipe
	if workflow {
		outputs := watcher.result()
		if outputs == nil {
			return nil, &apperr.EmptyResultError{Service: string(p.Kind()), Reason: "stream produced no workflow outputs"}
		}
		rec, err = recipe.ParseOutputs(outputs)
	} else {
		if strings.TrimSpace(text.String()) == "" {
			return nil, &apperr.EmptyResultError{Service: string(p.Kind()), Reason: "stream ended without any text"}
		}
		rec, err = recipe.Parse(text.String())
	}
	if err != nil {
		return nil, fmt.Errorf("recommend: %s parse: %w", p.Kind(), err)
	}
	return rec, nil
}

// record appends rec to the history log. Failures are logged only.
func (o *Orchestrator) record(ctx context.Context, op history.Operation, kind provider.Kind, userID string, meal recipe.MealType, rec *recipe.Recipe) {
	log := logging.FromContext(ctx)
	data, err := json.Marshal(rec)
	if err != nil {
		log.Warn("recommend: encode history entry", slog.String("error", err.Error()))
		return
	}
	err = o.history.Append(ctx, history.Entry{
		UserID:    userID,
		Provider:  string(kind),
		Operation: op,
		MealType:  string(meal),
		Recipe:    string(data),
	})
	if err != nil {
		log.Warn("recommend: append history", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) observe(op history.Operation, req *Request, start time.Time, errp *error) {
	o.metrics.observe(string(op), string(provider.ParseKind(req.Provider)), start, *errp)
}

// outputsWatcher remembers the most recent workflow event that carries a
// result. Events whose outputs are present win over bare data payloads.
type outputsWatcher struct {
	outputs map[string]any
	data    map[string]any
}

func (w *outputsWatcher) observe(chunk string) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(chunk), &obj); err != nil {
		return
	}
	if out, ok := obj["outputs"].(map[string]any); ok {
		w.outputs = out
		return
	}
	data, ok := obj["data"].(map[string]any)
	if !ok {
		return
	}
	if out, ok := data["outputs"].(map[string]any); ok {
		w.outputs = out
		return
	}
	w.data = data
}

func (w *outputsWatcher) result() map[string]any {
	if w.outputs != nil {
		return w.outputs
	}
	return w.data
}
