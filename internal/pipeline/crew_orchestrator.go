package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"resumecrew/internal/config"
	"resumecrew/internal/crew"
	"resumecrew/internal/errors"
)

// scrapeLimit caps the page text handed back to the model by the scrape tool.
const scrapeLimit = 20000

// ExecutorFactory is satisfied by ai.ExecutorFactory.
type ExecutorFactory interface {
	NewExecutor(ctx context.Context, apiKey string) (crew.Executor, error)
}

// CrewFactory builds crew-backed orchestrators from the active definition.
type CrewFactory struct {
	store     *crew.Store
	executors ExecutorFactory
	scraper   crew.Scraper
	client    *http.Client
	cfg       config.CrewConfig
	logger    *errors.Logger
}

var _ OrchestratorFactory = (*CrewFactory)(nil)

// NewCrewFactory creates a factory. client is used for search API calls and
// may be nil.
func NewCrewFactory(store *crew.Store, executors ExecutorFactory, scraper crew.Scraper, client *http.Client, cfg config.CrewConfig, logger *errors.Logger) *CrewFactory {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &CrewFactory{
		store:     store,
		executors: executors,
		scraper:   scraper,
		client:    client,
		cfg:       cfg,
		logger:    logger,
	}
}

// NewOrchestrator snapshots the current definition and binds creds to the
// executor and the search tool.
func (f *CrewFactory) NewOrchestrator(ctx context.Context, creds crew.Credentials) (Orchestrator, error) {
	if creds.SerperAPIKey == "" {
		return nil, errors.NewValidationError(errors.ErrCodeMissingAPIKey, "Serper API key is required", nil)
	}
	executor, err := f.executors.NewExecutor(ctx, creds.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	return &crewOrchestrator{
		def:      f.store.Current(),
		executor: executor,
		scrape:   crew.NewScrapeTool(f.scraper, scrapeLimit),
		search:   crew.NewSearchTool(f.client, f.cfg.SearchEndpoint, creds.SerperAPIKey, f.cfg.SearchResults),
		logger:   f.logger,
	}, nil
}

type crewOrchestrator struct {
	def      *crew.Definition
	executor crew.Executor
	scrape   crew.Tool
	search   crew.Tool
	logger   *errors.Logger
}

// Run kicks off the crew. The resume tool reads the file named by the
// resume_text_path input.
func (o *crewOrchestrator) Run(ctx context.Context, inputs map[string]string) (*Artifacts, error) {
	resumePath := inputs[InputResumeTextPath]
	if resumePath == "" {
		return nil, fmt.Errorf("input %s is required", InputResumeTextPath)
	}

	tools := crew.NewToolset(o.scrape, o.search, crew.NewReadFileTool(resumePath))
	c := crew.New(o.def, o.executor, tools, o.logger)
	c.OnTaskComplete = func(out crew.TaskOutput) {
		o.logger.Debug("Crew task output", "task", out.Task, "output_length", len(out.Output))
	}

	result, err := c.Kickoff(ctx, inputs)
	if err != nil {
		return nil, err
	}

	resume, ok := result.Files[crew.ResumeOutputFile]
	if !ok {
		return nil, fmt.Errorf("crew definition produced no %s", crew.ResumeOutputFile)
	}
	interview, ok := result.Files[crew.InterviewOutputFile]
	if !ok {
		return nil, fmt.Errorf("crew definition produced no %s", crew.InterviewOutputFile)
	}
	return &Artifacts{Resume: resume, Interview: interview, Usage: result.Usage}, nil
}
