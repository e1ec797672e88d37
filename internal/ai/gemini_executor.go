package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"resumecrew/internal/config"
	"resumecrew/internal/crew"
	"resumecrew/internal/errors"
)

// GeminiExecutor runs crew tasks on Gemini with function calling.
type GeminiExecutor struct {
	client  *genai.Client
	cfg     config.AIConfig
	breaker *CircuitBreaker
	logger  *errors.Logger

	retryBase time.Duration
}

var _ crew.Executor = (*GeminiExecutor)(nil)

// clientOptions overrides the Gemini endpoint. Used by tests.
type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

func newGeminiExecutor(ctx context.Context, cfg config.AIConfig, apiKey string, breaker *CircuitBreaker, logger *errors.Logger, opts clientOptions) (*GeminiExecutor, error) {
	if apiKey == "" {
		return nil, errors.NewValidationError(errors.ErrCodeMissingAPIKey, "Gemini API key is required", nil)
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.httpClient,
	}
	if opts.baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = opts.baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create Gemini client", err)
	}

	return &GeminiExecutor{
		client:    client,
		cfg:       cfg,
		breaker:   breaker,
		logger:    logger,
		retryBase: time.Second,
	}, nil
}

// Execute completes one task. Tool calls requested by the model are run and
// their results fed back until the model answers in text or the step limit
// is reached, after which tools are withdrawn and a final answer is forced.
func (g *GeminiExecutor) Execute(ctx context.Context, req crew.Request) (*crew.Response, error) {
	tracer := otel.Tracer("resumecrew.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini.execute_task")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.cfg.Model),
		attribute.Float64("ai.temperature", float64(g.cfg.Temperature)),
		attribute.String("crew.agent", req.Agent.Name),
		attribute.String("crew.task", req.Task.Name),
		attribute.Int("crew.tools", len(req.Tools)),
	)

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(req.Agent), genai.RoleUser),
		Temperature:       genai.Ptr(g.cfg.Temperature),
		MaxOutputTokens:   g.cfg.MaxOutputTokens,
	}
	tools := make(map[string]crew.Tool, len(req.Tools))
	if len(req.Tools) > 0 {
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(req.Tools)}}
		for _, t := range req.Tools {
			tools[t.Name()] = t
		}
	}

	history := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	var usage crew.Usage
	toolCalls := 0

	for step := 0; ; step++ {
		final := step >= g.cfg.MaxToolSteps
		if final && genCfg.Tools != nil {
			genCfg.Tools = nil
			history = append(history, genai.NewContentFromText(finalAnswerPrompt, genai.RoleUser))
		}

		resp, err := g.generate(ctx, req.Task.Name, history, genCfg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generate content failed")
			return nil, err
		}
		addUsage(&usage, resp)

		calls := resp.FunctionCalls()
		if len(calls) == 0 || final {
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				err := errors.NewAIError(errors.ErrCodeAIServiceFailed, "Model returned an empty answer for task "+req.Task.Name, nil)
				span.RecordError(err)
				span.SetStatus(codes.Error, "empty answer")
				return nil, err
			}
			span.SetAttributes(
				attribute.Int("crew.tool_calls", toolCalls),
				attribute.Int64("ai.tokens.input", int64(usage.PromptTokens)),
				attribute.Int64("ai.tokens.output", int64(usage.CompletionTokens)),
				attribute.Int64("ai.tokens.total", int64(usage.TotalTokens)),
				attribute.Int("output.length", len(text)),
			)
			return &crew.Response{Output: text, Usage: usage}, nil
		}

		history = append(history, resp.Candidates[0].Content)
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			toolCalls++
			parts = append(parts, g.callTool(ctx, tools, call))
		}
		history = append(history, genai.NewContentFromParts(parts, genai.RoleUser))
	}
}

// generate performs one GenerateContent round trip under the breaker, with
// retries and a per-call timeout.
func (g *GeminiExecutor) generate(ctx context.Context, task string, history []*genai.Content, genCfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.breaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return withRetry(ctx, g.logger, "generate_content", g.cfg.MaxRetries, g.retryBase, func() (*genai.GenerateContentResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
			return g.client.Models.GenerateContent(callCtx, g.cfg.Model, history, genCfg)
		})
	})
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to generate content for task "+task, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Model returned no candidates for task "+task, nil)
	}
	return resp, nil
}

// callTool runs one function call. Tool failures are reported back to the
// model instead of failing the task.
func (g *GeminiExecutor) callTool(ctx context.Context, tools map[string]crew.Tool, call *genai.FunctionCall) *genai.Part {
	tool, ok := tools[call.Name]
	if !ok {
		return toolResponse(call, map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)})
	}

	start := time.Now()
	out, err := tool.Call(ctx, call.Args)
	if err != nil {
		g.logger.Warn("Tool call failed", "tool", call.Name, "duration", time.Since(start), "error", err.Error())
		return toolResponse(call, map[string]any{"error": err.Error()})
	}
	g.logger.Debug("Tool call completed", "tool", call.Name, "duration", time.Since(start), "output_length", len(out))
	return toolResponse(call, map[string]any{"output": out})
}

func toolResponse(call *genai.FunctionCall, response map[string]any) *genai.Part {
	part := genai.NewPartFromFunctionResponse(call.Name, response)
	part.FunctionResponse.ID = call.ID
	return part
}

func functionDeclarations(tools []crew.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
		}
		if params := t.Parameters(); len(params) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(params)),
			}
			for _, p := range params {
				schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			decl.Parameters = schema
		}
		decls = append(decls, decl)
	}
	return decls
}

func addUsage(u *crew.Usage, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	u.PromptTokens += resp.UsageMetadata.PromptTokenCount
	u.CompletionTokens += resp.UsageMetadata.CandidatesTokenCount
	u.TotalTokens += resp.UsageMetadata.TotalTokenCount
}
