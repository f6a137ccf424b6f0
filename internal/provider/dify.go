package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/sse"
)

// DifyConfig configures a DifyProvider.
type DifyConfig struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
	// Timeout bounds each blocking HTTP exchange (0 means no bound).
	Timeout time.Duration
	Breaker BreakerSettings
}

// DifyProvider implements Provider against a Dify workflow. It sends the
// structured Request.Inputs and returns the workflow's outputs object.
type DifyProvider struct {
	http *upstream
	log  *slog.Logger
}

var _ Provider = (*DifyProvider)(nil)

// NewDifyProvider constructs a DifyProvider.
func NewDifyProvider(cfg *DifyConfig, log *slog.Logger) (*DifyProvider, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" {
		return nil, &apperr.ConfigurationError{Component: "dify", Reason: "DIFY_API_KEY and DIFY_API_ENDPOINT are required"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &DifyProvider{
		http: newUpstream("dify", cfg.Endpoint, cfg.APIKey, cfg.HTTPClient, cfg.Timeout, cfg.Breaker, log),
		log:  log,
	}, nil
}

// Kind implements Provider.
func (p *DifyProvider) Kind() Kind { return KindDify }

type workflowRunRequest struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

// workflowRunResponse accepts both the flat and the data-nested response
// shapes.
type workflowRunResponse struct {
	WorkflowRunID string         `json:"workflow_run_id"`
	Status        string         `json:"status"`
	Outputs       map[string]any `json:"outputs"`
	Error         string         `json:"error"`
	Data          *struct {
		Status  string         `json:"status"`
		Outputs map[string]any `json:"outputs"`
		Error   string         `json:"error"`
	} `json:"data"`
}

func (p *DifyProvider) request(req *Request, mode string) *workflowRunRequest {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]string{}
	}
	return &workflowRunRequest{Inputs: inputs, ResponseMode: mode, User: req.userOrDefault()}
}

// workflowErr prefixes upstream error messages the way the workflow API
// reports them.
func workflowErr(err error) error {
	var te *apperr.TransportError
	if errors.As(err, &te) && te.Status != 0 {
		te.Message = "Dify workflow error: " + te.Message
	}
	return err
}

// Complete implements Provider. Outputs are read from the top level or from
// under "data".
func (p *DifyProvider) Complete(ctx context.Context, req *Request) (*Result, error) {
	var out workflowRunResponse
	if err := p.http.sendJSON(ctx, http.MethodPost, "/workflows/run", p.request(req, "blocking"), &out); err != nil {
		return nil, workflowErr(err)
	}

	outputs, errMsg := out.Outputs, out.Error
	if out.Data != nil {
		if len(outputs) == 0 {
			outputs = out.Data.Outputs
		}
		if errMsg == "" {
			errMsg = out.Data.Error
		}
	}
	if len(outputs) == 0 {
		if errMsg == "" {
			errMsg = "Dify workflow returned no outputs"
		}
		return nil, &apperr.EmptyResultError{Service: "dify", Reason: errMsg}
	}
	p.log.Debug("dify: workflow finished", slog.String("workflow_run_id", out.WorkflowRunID))
	return &Result{Outputs: outputs}, nil
}

// Stream implements Provider. Events are blank-line separated; the raw JSON
// text of each event is passed to onChunk unchanged.
func (p *DifyProvider) Stream(ctx context.Context, req *Request, onChunk func(string)) error {
	resp, err := p.http.send(ctx, http.MethodPost, "/workflows/run", p.request(req, "streaming"))
	if err != nil {
		return workflowErr(err)
	}
	return sse.Read(ctx, resp.Body, sse.Blocks, func(payload string) error {
		onChunk(payload)
		return nil
	})
}
