package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cli/go-gh/v2/pkg/browser"
	"github.com/cli/go-gh/v2/pkg/text"
	"github.com/rs/zerolog"

	"github.com/rusty-ci/rusty-tui/internal/api"
	"github.com/rusty-ci/rusty-tui/internal/cache"
	"github.com/rusty-ci/rusty-tui/internal/config"
	"github.com/rusty-ci/rusty-tui/internal/logging"
	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/ops"
	"github.com/rusty-ci/rusty-tui/internal/pager"
	"github.com/rusty-ci/rusty-tui/internal/search"
	"github.com/rusty-ci/rusty-tui/internal/subscription"
	"github.com/rusty-ci/rusty-tui/internal/tui/cacheview"
	"github.com/rusty-ci/rusty-tui/internal/tui/confirm"
	"github.com/rusty-ci/rusty-tui/internal/tui/details"
	"github.com/rusty-ci/rusty-tui/internal/tui/logview"
	"github.com/rusty-ci/rusty-tui/internal/tui/pagedlist"
	"github.com/rusty-ci/rusty-tui/internal/tui/searchview"
	"github.com/rusty-ci/rusty-tui/internal/ui"
)

type Screen int

const (
	ScreenProjects Screen = iota
	ScreenJobs
	ScreenPipelines
	ScreenLogs
	ScreenCache
)

type Pane int

const (
	PaneLeft Pane = iota
	PaneRight
)

const actionTimeout = 30 * time.Second

// statusCycle is the order in which the s key steps through the pipeline
// status filter.
var statusCycle = []model.PipelineStatus{
	"",
	model.PipelineInProgress,
	model.PipelineSuccess,
	model.PipelineFailure,
}

// bridge forwards messages produced outside the event loop, such as
// subscription pushes, into the running program.
type bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (b *bridge) Send(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

type App struct {
	cfg      config.Config
	cred     model.Credential
	client   *api.Client
	subs     *subscription.Manager
	logCache *cache.LogCache
	loader   ops.LogLoader
	search   *search.Engine
	bridge   *bridge
	log      zerolog.Logger

	// Views
	groupsView    pagedlist.Model[model.Group]
	projectsView  pagedlist.Model[model.Project]
	jobsView      pagedlist.Model[model.Job]
	pipelinesView pagedlist.Model[model.Pipeline]
	detailsView   details.Model
	logView       logview.Model
	searchView    searchview.Model
	cacheView     cacheview.Model
	confirmDialog confirm.Model

	// Navigation
	screen       Screen
	cacheReturn  Screen
	focusedPane  Pane
	group        model.Group
	project      *model.Project
	job          *model.Job
	pipeline     *model.Pipeline // pipeline whose logs are open
	statusFilter int             // index into statusCycle

	// Live subscriptions
	pipelineSub   *subscription.Handle
	pipelineState subscription.State
	logSub        *subscription.Handle
	logState      subscription.State
	logLoading    bool
	logPending    []model.LogRecord

	width    int
	height   int
	status   string
	failed   bool
	showHelp bool
}

func NewApp(cfg config.Config, client *api.Client, subs *subscription.Manager, logCache *cache.LogCache) App {
	cred := model.Credential(cfg.Token)
	plog := logging.WithComponent("pager")

	groups := pager.New("groups", client.GroupsFetcher(cred),
		pager.WithKey(groupKey), pager.WithLogger[model.Group](plog))
	projects := pager.New("projects", client.ProjectsFetcher(cred, true),
		pager.WithKey(projectKey), pager.WithLogger[model.Project](plog))
	jobs := pager.New("jobs", client.JobsFetcher(cred),
		pager.WithKey(jobKey), pager.WithLogger[model.Job](plog))
	pipelines := pager.New("pipelines", client.PipelinesFetcher(cred),
		pager.WithKey(pipelineKey), pager.WithLogger[model.Pipeline](plog))

	return App{
		cfg:      cfg,
		cred:     cred,
		client:   client,
		subs:     subs,
		logCache: logCache,
		loader: ops.LogLoader{
			Fetcher: client,
			Cache:   logCache,
			Logger:  logging.WithComponent("logs"),
		},
		search: search.New(),
		bridge: &bridge{},
		log:    logging.WithComponent("tui"),

		groupsView: pagedlist.New(groups, renderGroup, pagedlist.Options[model.Group]{
			Empty: "No groups.",
		}),
		projectsView: pagedlist.New(projects, renderProject, pagedlist.Options[model.Project]{
			Height:      2,
			Filterable:  true,
			Placeholder: "project name",
			Empty:       "No projects in this group.",
		}),
		jobsView: pagedlist.New(jobs, renderJob, pagedlist.Options[model.Job]{
			Height:      2,
			Key:         jobKey,
			Filterable:  true,
			Placeholder: "job name",
			Empty:       "No jobs in this project.",
		}),
		pipelinesView: pagedlist.New(pipelines, renderPipeline, pagedlist.Options[model.Pipeline]{
			Filterable:  true,
			Placeholder: "branch",
			Empty:       "No pipelines yet. Press n to register one.",
		}),
		detailsView: details.New(),
		logView:     logview.New(),
		searchView:  searchview.New(),
		cacheView:   cacheview.New(),
		screen:      ScreenProjects,
		focusedPane: PaneLeft,
		group:       model.DefaultGroup,
		status:      "Loading projects...",
	}
}

// Attach routes messages from subscriptions and background jobs into p.
// It must be called before p.Run.
func (a App) Attach(p *tea.Program) {
	a.bridge.mu.Lock()
	a.bridge.send = p.Send
	a.bridge.mu.Unlock()
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.groupsView.Load(), a.projectsView.Load())
}

// --- Subscriptions ---

func (a *App) openSub(jobID, selection string) *subscription.Handle {
	send := a.bridge.Send
	return a.subs.Open(context.Background(), subscription.Subscription{
		Credential: a.cred,
		ScopeID:    jobID,
		Selection:  selection,
	}, func(h *subscription.Handle, ev model.PipelineEvent) {
		send(ui.PipelineEventMsg{Handle: h, Event: ev})
	}, subscription.WithStateListener(func(h *subscription.Handle, s subscription.State) {
		send(ui.SubscriptionStateMsg{Handle: h, State: s})
	}))
}

func (a *App) openPipelineSub(jobID string) {
	a.closePipelineSub()
	if a.subs == nil {
		return
	}
	a.pipelineState = subscription.Disconnected
	a.pipelineSub = a.openSub(jobID, subscription.SelectPipelines)
}

func (a *App) openLogSub(jobID string) {
	a.closeLogSub()
	if a.subs == nil {
		return
	}
	a.logState = subscription.Disconnected
	a.logSub = a.openSub(jobID, subscription.SelectLogs)
	a.logView.SetTailing(true)
}

func (a *App) closePipelineSub() {
	if a.pipelineSub != nil {
		a.pipelineSub.Close()
		a.pipelineSub = nil
	}
}

func (a *App) closeLogSub() {
	if a.logSub != nil {
		a.logSub.Close()
		a.logSub = nil
	}
	a.logView.SetTailing(false)
}

// --- Commands ---

func (a App) loadLogs(p model.Pipeline) tea.Cmd {
	loader, cred := a.loader, a.cred
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		logs, fromCache, err := loader.Load(ctx, cred, p)
		return ui.LogsLoadedMsg{PipelineID: p.ID, Logs: logs, FromCache: fromCache, Err: err}
	}
}

func (a App) fetchPipeline(id string) tea.Cmd {
	client, cred := a.client, a.cred
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		p, err := client.GetPipeline(ctx, cred, id)
		return ui.PipelineLoadedMsg{Pipeline: p, Err: err}
	}
}

func (a App) doRegister(jobID, branch string) tea.Cmd {
	client, cred := a.client, a.cred
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		id, err := client.RegisterPipeline(ctx, cred, jobID, branch)
		return ui.PipelineRegisteredMsg{JobID: jobID, PipelineID: id, Err: err}
	}
}

func (a App) doTrigger(jobIDs []string, branch string) tea.Cmd {
	client, cred, send, log := a.client, a.cred, a.bridge.Send, a.log
	return func() tea.Msg {
		res, err := ops.TriggerPipelines(context.Background(), client, cred, jobIDs, branch, ops.DefaultTriggerRate,
			func(completed, total int) {
				send(ui.TriggerProgressMsg{Completed: completed, Total: total})
			})
		summary := &ui.TriggerSummary{}
		if res != nil {
			summary.Registered = len(res.Registered)
			summary.Failed = res.Failed
			for _, e := range res.Errors {
				log.Warn().Err(e).Str("branch", branch).Msg("register pipeline failed")
			}
		}
		return ui.TriggerDoneMsg{Result: summary, Err: err}
	}
}

func (a App) executeSearch(query model.SearchQuery) tea.Cmd {
	logs := a.logView.Logs().Clone()
	eng := a.search
	return func() tea.Msg {
		if err := search.Validate(query); err != nil {
			return ui.SearchDoneMsg{Err: err}
		}
		return ui.SearchDoneMsg{Results: eng.Search(logs, query)}
	}
}

func (a App) openBrowser(url string) tea.Cmd {
	return func() tea.Msg {
		err := browser.New("", io.Discard, io.Discard).Browse(url)
		return ui.BrowseDoneMsg{URL: url, Err: err}
	}
}

func (a App) fetchCacheEntries() tea.Cmd {
	lc := a.logCache
	return func() tea.Msg {
		if lc == nil {
			return ui.CacheEntriesLoadedMsg{}
		}
		entries, err := lc.ListEntries()
		if err != nil {
			return ui.CacheEntriesLoadedMsg{Err: err}
		}
		size, err := lc.TotalSize()
		return ui.CacheEntriesLoadedMsg{Entries: entries, TotalSize: size, Err: err}
	}
}

func (a App) deleteCacheEntry(id string) tea.Cmd {
	lc := a.logCache
	return func() tea.Msg {
		return ui.CacheEntryDeletedMsg{PipelineID: id, Err: lc.DeleteEntry(id)}
	}
}

func (a App) clearCache() tea.Cmd {
	lc := a.logCache
	return func() tea.Msg {
		return ui.CacheEntryDeletedMsg{Err: lc.DeleteAll()}
	}
}

// --- Navigation ---

func (a *App) setStatus(s string) {
	a.status = s
	a.failed = false
}

func (a *App) setError(err error) {
	a.status = "Error: " + err.Error()
	a.failed = true
	a.log.Debug().Err(err).Msg("shown to user")
}

func (a *App) openProject(p model.Project) tea.Cmd {
	a.project = &p
	a.screen = ScreenJobs
	a.focusedPane = PaneLeft
	a.setStatus(fmt.Sprintf("Jobs of %s", p.Name))
	a.propagateSize()
	if a.jobsView.Scope() == p.ID {
		return a.jobsView.Load()
	}
	return a.jobsView.SetScope(p.ID)
}

func (a *App) openJob(j model.Job) tea.Cmd {
	a.job = &j
	a.screen = ScreenPipelines
	a.focusedPane = PaneLeft
	a.statusFilter = 0
	a.pipelinesView.SetNarrow(nil)
	a.setStatus(fmt.Sprintf("Pipelines of %s", j.Name))
	a.openPipelineSub(j.ID)
	a.propagateSize()
	var cmd tea.Cmd
	if a.pipelinesView.Scope() == j.ID {
		cmd = a.pipelinesView.Load()
	} else {
		cmd = a.pipelinesView.SetScope(j.ID)
	}
	a.syncDetails()
	return cmd
}

func (a *App) openLogs(p model.Pipeline) tea.Cmd {
	a.pipeline = &p
	a.screen = ScreenLogs
	a.logLoading = true
	a.logPending = nil
	a.logView.SetLoading(a.logTitle(p))
	a.logView.SetStageStatus(p.StageStatus)
	a.closeLogSub()
	if p.Status.Running() {
		a.openLogSub(p.JobID)
	}
	a.propagateSize()
	return a.loadLogs(p)
}

func (a App) logTitle(p model.Pipeline) string {
	job := ""
	if a.job != nil {
		job = a.job.Name + " "
	}
	return fmt.Sprintf("%s#%d (%s)", job, p.Number, p.Branch)
}

func (a *App) back() {
	switch a.screen {
	case ScreenJobs:
		a.screen = ScreenProjects
		a.focusedPane = PaneRight
	case ScreenPipelines:
		a.closePipelineSub()
		a.screen = ScreenJobs
		a.focusedPane = PaneLeft
	case ScreenLogs:
		a.closeLogSub()
		a.pipeline = nil
		a.screen = ScreenPipelines
	case ScreenCache:
		a.screen = a.cacheReturn
	}
	a.propagateSize()
}

func (a *App) syncDetails() {
	name := ""
	if a.job != nil {
		name = a.job.Name
	}
	a.detailsView.SetPipeline(name, a.pipelinesView.Selected())
}

func (a *App) cycleStatusFilter() {
	a.statusFilter = (a.statusFilter + 1) % len(statusCycle)
	status := statusCycle[a.statusFilter]
	if status == "" {
		a.pipelinesView.SetNarrow(nil)
		a.setStatus("Showing all pipelines")
	} else {
		a.pipelinesView.SetNarrow(func(ps []model.Pipeline) []model.Pipeline {
			return ops.FilterPipelines(ps, ops.PipelineFilter{Status: status})
		})
		a.setStatus(fmt.Sprintf("Showing %s pipelines", status))
	}
	a.syncDetails()
}

// promptRegister asks for a branch and registers a pipeline for every
// selected job, or the job under the cursor.
func (a *App) promptRegister() tea.Cmd {
	var jobIDs []string
	branch := ""
	switch a.screen {
	case ScreenJobs:
		jobIDs = a.jobsView.SelectedKeys()
		if len(jobIDs) == 0 {
			if j := a.jobsView.Selected(); j != nil {
				jobIDs = []string{j.ID}
			}
		}
	case ScreenPipelines:
		if a.job != nil {
			jobIDs = []string{a.job.ID}
		}
		if p := a.pipelinesView.Selected(); p != nil {
			branch = p.Branch
		}
	}
	if len(jobIDs) == 0 {
		return nil
	}
	title := "New pipeline"
	if len(jobIDs) > 1 {
		title = fmt.Sprintf("New pipelines for %s", text.Pluralize(len(jobIDs), "job"))
	}
	a.confirmDialog = confirm.NewInput(title, "Branch:", branch, "register", jobIDs)
	return a.confirmDialog.Init()
}

// isListFiltering reports whether the focused list is editing its filter.
func (a App) isListFiltering() bool {
	switch a.screen {
	case ScreenProjects:
		if a.focusedPane == PaneLeft {
			return a.groupsView.IsEditing()
		}
		return a.projectsView.IsEditing()
	case ScreenJobs:
		return a.jobsView.IsEditing()
	case ScreenPipelines:
		return a.focusedPane == PaneLeft && a.pipelinesView.IsEditing()
	case ScreenCache:
		return a.cacheView.IsFiltering()
	}
	return false
}

// updateFocused hands msg to the component that owns the keyboard.
func (a *App) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.screen {
	case ScreenProjects:
		if a.focusedPane == PaneLeft {
			a.groupsView, cmd = a.groupsView.Update(msg)
		} else {
			a.projectsView, cmd = a.projectsView.Update(msg)
		}
	case ScreenJobs:
		a.jobsView, cmd = a.jobsView.Update(msg)
	case ScreenPipelines:
		if a.focusedPane == PaneLeft {
			a.pipelinesView, cmd = a.pipelinesView.Update(msg)
			a.syncDetails()
		} else {
			a.detailsView, cmd = a.detailsView.Update(msg)
		}
	case ScreenLogs:
		a.logView, cmd = a.logView.Update(msg)
	case ScreenCache:
		a.cacheView, cmd = a.cacheView.Update(msg)
	}
	return cmd
}

func (a *App) refresh() tea.Cmd {
	switch a.screen {
	case ScreenProjects:
		a.setStatus("Refreshing projects...")
		return tea.Batch(a.groupsView.Reload(), a.projectsView.Reload())
	case ScreenJobs:
		return a.jobsView.Reload()
	case ScreenPipelines:
		return a.pipelinesView.Reload()
	case ScreenLogs:
		if a.pipeline != nil {
			a.logLoading = true
			a.logView.SetLoading(a.logTitle(*a.pipeline))
			return a.loadLogs(*a.pipeline)
		}
	case ScreenCache:
		return a.fetchCacheEntries()
	}
	return nil
}

// matchesBranchFilter applies the pipelines list's server-side branch
// filter to a pipeline that did not come from that query.
func (a App) matchesBranchFilter(p model.Pipeline) bool {
	f := a.pipelinesView.Filter()
	return f == "" || strings.Contains(p.Branch, f)
}

func (a *App) applyPipelineEvent(msg ui.PipelineEventMsg) tea.Cmd {
	ev := msg.Event
	switch {
	case msg.Handle != nil && msg.Handle == a.logSub:
		if ev.Kind != model.PipelineLogAppended || ev.Log == nil {
			return nil
		}
		if a.logLoading {
			a.logPending = append(a.logPending, *ev.Log)
			return nil
		}
		a.logView.Append(*ev.Log)
		return nil

	case msg.Handle != nil && msg.Handle == a.pipelineSub:
		if ev.Pipeline == nil {
			return nil
		}
		p := *ev.Pipeline
		if a.job != nil && p.JobID != "" && p.JobID != a.job.ID {
			return nil
		}
		switch ev.Kind {
		case model.PipelineInserted:
			if a.matchesBranchFilter(p) {
				a.pipelinesView.Prepend(p)
			}
		case model.PipelineUpdated:
			a.pipelinesView.Upsert(p)
		}
		a.syncDetails()

		if a.pipeline == nil || a.pipeline.ID != p.ID {
			return nil
		}
		a.pipeline = &p
		a.logView.SetStageStatus(p.StageStatus)
		if p.Status.Finished() && a.logSub != nil {
			a.closeLogSub()
			a.setStatus(fmt.Sprintf("Pipeline #%d finished: %s", p.Number, p.Status))
			a.logLoading = true
			return a.loadLogs(p)
		}
	}
	return nil
}

// --- Update ---

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// Handle confirm dialog result (arrives AFTER dialog deactivates itself)
	if result, ok := msg.(confirm.ResultMsg); ok {
		if result.Confirmed {
			switch result.Action {
			case "register":
				jobIDs := result.Data.([]string)
				branch := strings.TrimSpace(result.Value)
				if len(jobIDs) == 1 {
					a.setStatus(fmt.Sprintf("Registering pipeline on %s...", branch))
					cmds = append(cmds, a.doRegister(jobIDs[0], branch))
				} else {
					a.setStatus(fmt.Sprintf("Registering %s on %s...", text.Pluralize(len(jobIDs), "pipeline"), branch))
					a.jobsView.ClearSelection()
					cmds = append(cmds, a.doTrigger(jobIDs, branch))
				}
			case "delete-cache-entry":
				id := result.Data.(string)
				a.setStatus("Deleting cached log...")
				cmds = append(cmds, a.deleteCacheEntry(id))
			case "clear-cache":
				a.setStatus("Clearing log cache...")
				cmds = append(cmds, a.clearCache())
			}
		}
		return &a, tea.Batch(cmds...)
	}

	// Handle confirmation dialog input (key events while dialog is showing)
	if a.confirmDialog.IsActive() {
		var cmd tea.Cmd
		a.confirmDialog, cmd = a.confirmDialog.Update(msg)
		return &a, cmd
	}

	// Handle search input/results mode
	if _, isKey := msg.(tea.KeyMsg); isKey && a.searchView.IsActive() {
		var cmd tea.Cmd
		inputMode := a.searchView.IsInputMode()
		a.searchView, cmd = a.searchView.Update(msg)
		cmds = append(cmds, cmd)

		if msg.(tea.KeyMsg).String() == "enter" {
			if inputMode {
				if a.searchView.Query() != "" {
					cmds = append(cmds, a.executeSearch(a.searchView.SearchQuery()))
				}
			} else if match := a.searchView.SelectedMatch(); match != nil {
				a.searchView.Deactivate()
				a.logView.GotoRecord(match.Stage, match.Line)
			}
		}
		return &a, tea.Batch(cmds...)
	}

	// Keys go directly to the log view while it edits its search
	if _, isKey := msg.(tea.KeyMsg); isKey && a.screen == ScreenLogs && a.logView.IsSearching() {
		var cmd tea.Cmd
		a.logView, cmd = a.logView.Update(msg)
		return &a, cmd
	}

	// Handle list filter mode: keys go directly to the filtering list,
	// skip app-level handlers (quit, back, etc.)
	if _, isKey := msg.(tea.KeyMsg); isKey && a.isListFiltering() {
		return &a, a.updateFocused(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.propagateSize()

	case tea.KeyMsg:
		// Help overlay dismisses on any key
		if a.showHelp {
			a.showHelp = false
			return &a, nil
		}
		cmds = append(cmds, a.handleKey(msg))

	case pagedlist.ResultMsg[model.Group]:
		var cmd tea.Cmd
		a.groupsView, cmd = a.groupsView.Update(msg)
		cmds = append(cmds, cmd)
		if msg.Result.Err != nil && a.groupsView.Err() == msg.Result.Err {
			a.setError(msg.Result.Err)
		}

	case pagedlist.ResultMsg[model.Project]:
		var cmd tea.Cmd
		a.projectsView, cmd = a.projectsView.Update(msg)
		cmds = append(cmds, cmd)
		failed := msg.Result.Err != nil && a.projectsView.Err() == msg.Result.Err
		if failed {
			a.setError(msg.Result.Err)
		} else if a.screen == ScreenProjects {
			a.setStatus(fmt.Sprintf("%s | %s", a.group.Name, text.Pluralize(a.projectsView.State().Total, "project")))
		}

	case pagedlist.ResultMsg[model.Job]:
		var cmd tea.Cmd
		a.jobsView, cmd = a.jobsView.Update(msg)
		cmds = append(cmds, cmd)
		if msg.Result.Err != nil && a.jobsView.Err() == msg.Result.Err {
			a.setError(msg.Result.Err)
		}

	case pagedlist.ResultMsg[model.Pipeline]:
		var cmd tea.Cmd
		a.pipelinesView, cmd = a.pipelinesView.Update(msg)
		cmds = append(cmds, cmd)
		failed := msg.Result.Err != nil && a.pipelinesView.Err() == msg.Result.Err
		a.syncDetails()
		if failed {
			a.setError(msg.Result.Err)
		}

	case ui.PipelineEventMsg:
		cmds = append(cmds, a.applyPipelineEvent(msg))

	case ui.SubscriptionStateMsg:
		switch msg.Handle {
		case a.pipelineSub:
			a.pipelineState = msg.State
		case a.logSub:
			a.logState = msg.State
		}

	case ui.LogsLoadedMsg:
		if a.pipeline == nil || msg.PipelineID != a.pipeline.ID {
			return &a, nil
		}
		a.logLoading = false
		if msg.Err != nil {
			a.logView.SetError(msg.Err)
			a.setError(msg.Err)
			a.logPending = nil
			return &a, nil
		}
		a.logView.SetLogs(a.logTitle(*a.pipeline), msg.Logs)
		for _, rec := range a.logPending {
			a.logView.Append(rec)
		}
		a.logPending = nil
		switch {
		case msg.FromCache:
			a.setStatus(fmt.Sprintf("%s (cached)", text.Pluralize(msg.Logs.Len(), "line")))
		case a.logSub != nil:
			a.setStatus("Following live log")
		default:
			a.setStatus(text.Pluralize(msg.Logs.Len(), "line"))
		}

	case ui.SearchDoneMsg:
		var cmd tea.Cmd
		a.searchView, cmd = a.searchView.Update(msg)
		cmds = append(cmds, cmd)
		if msg.Err != nil {
			a.setError(msg.Err)
		} else if msg.Results != nil {
			a.setStatus(searchview.Summary(msg.Results))
		}

	case ui.PipelineRegisteredMsg:
		if msg.Err != nil {
			a.setError(msg.Err)
			break
		}
		a.setStatus(fmt.Sprintf("Registered pipeline %s", msg.PipelineID))
		if a.screen == ScreenPipelines && a.job != nil && a.job.ID == msg.JobID &&
			a.pipelineState != subscription.Subscribed {
			cmds = append(cmds, a.fetchPipeline(msg.PipelineID))
		}

	case ui.PipelineLoadedMsg:
		if msg.Err != nil {
			a.setError(msg.Err)
			break
		}
		if p := msg.Pipeline; p != nil && a.job != nil && p.JobID == a.job.ID && a.matchesBranchFilter(*p) {
			a.pipelinesView.Prepend(*p)
			a.syncDetails()
		}

	case ui.TriggerProgressMsg:
		a.setStatus(fmt.Sprintf("Registering pipelines... %d/%d", msg.Completed, msg.Total))

	case ui.TriggerDoneMsg:
		switch {
		case msg.Err != nil:
			a.setError(msg.Err)
		case msg.Result.Failed > 0:
			a.status = fmt.Sprintf("Registered %d, failed %d", msg.Result.Registered, msg.Result.Failed)
			a.failed = true
		default:
			a.setStatus(fmt.Sprintf("Registered %s", text.Pluralize(msg.Result.Registered, "pipeline")))
		}

	case ui.BrowseDoneMsg:
		if msg.Err != nil {
			a.setError(msg.Err)
		} else {
			a.setStatus("Opened " + msg.URL)
		}

	case ui.CacheEntriesLoadedMsg:
		var cmd tea.Cmd
		a.cacheView, cmd = a.cacheView.Update(msg)
		cmds = append(cmds, cmd)
		if msg.Err != nil {
			a.setError(msg.Err)
		}

	case ui.CacheEntryDeletedMsg:
		if msg.Err != nil {
			a.setError(msg.Err)
		} else if msg.PipelineID != "" {
			a.setStatus("Deleted cached log of " + msg.PipelineID)
		} else {
			a.setStatus("Log cache cleared")
		}
		cmds = append(cmds, a.fetchCacheEntries())

	case ui.StatusMsg:
		a.setStatus(msg.Text)

	case ui.ErrorMsg:
		a.setError(msg.Err)

	default:
		cmds = append(cmds, a.updateFocused(msg))
	}

	return &a, tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, ui.Keys.Quit):
		a.closeLogSub()
		a.closePipelineSub()
		return tea.Quit
	case key.Matches(msg, ui.Keys.Help):
		a.showHelp = true
		return nil
	case key.Matches(msg, ui.Keys.Back):
		if a.screen != ScreenProjects {
			a.back()
		}
		return nil
	case key.Matches(msg, ui.Keys.Refresh):
		return a.refresh()
	case key.Matches(msg, ui.Keys.Cache) && a.screen != ScreenCache && a.screen != ScreenLogs:
		a.cacheReturn = a.screen
		a.screen = ScreenCache
		a.propagateSize()
		return a.fetchCacheEntries()
	}

	switch a.screen {
	case ScreenProjects:
		switch {
		case key.Matches(msg, ui.Keys.Tab), key.Matches(msg, ui.Keys.ShiftTab):
			a.focusedPane = 1 - a.focusedPane
			return nil
		case key.Matches(msg, ui.Keys.Enter):
			if a.focusedPane == PaneLeft {
				g := a.groupsView.Selected()
				if g == nil {
					return nil
				}
				a.group = *g
				a.focusedPane = PaneRight
				a.setStatus("Loading projects of " + g.Name + "...")
				return a.projectsView.SetScope(g.ID)
			}
			if p := a.projectsView.Selected(); p != nil {
				return a.openProject(*p)
			}
			return nil
		case key.Matches(msg, ui.Keys.Open) && a.focusedPane == PaneRight:
			if p := a.projectsView.Selected(); p != nil {
				return a.browse(p.URL)
			}
			return nil
		}

	case ScreenJobs:
		switch {
		case key.Matches(msg, ui.Keys.Enter):
			if j := a.jobsView.Selected(); j != nil {
				return a.openJob(*j)
			}
			return nil
		case key.Matches(msg, ui.Keys.Register):
			return a.promptRegister()
		case key.Matches(msg, ui.Keys.Open):
			if a.project != nil {
				return a.browse(a.project.URL)
			}
			return nil
		}

	case ScreenPipelines:
		switch {
		case key.Matches(msg, ui.Keys.Tab), key.Matches(msg, ui.Keys.ShiftTab):
			a.focusedPane = 1 - a.focusedPane
			return nil
		case key.Matches(msg, ui.Keys.Enter) && a.focusedPane == PaneLeft:
			if p := a.pipelinesView.Selected(); p != nil {
				return a.openLogs(*p)
			}
			return nil
		case key.Matches(msg, ui.Keys.Status):
			a.cycleStatusFilter()
			return nil
		case key.Matches(msg, ui.Keys.Register):
			return a.promptRegister()
		case key.Matches(msg, ui.Keys.Open):
			if a.project != nil {
				return a.browse(a.project.URL)
			}
			return nil
		}

	case ScreenLogs:
		if key.Matches(msg, ui.Keys.Search) {
			if a.logView.Logs().Len() == 0 {
				a.setStatus("No log lines to search")
				return nil
			}
			a.searchView.Activate()
			return nil
		}

	case ScreenCache:
		switch {
		case key.Matches(msg, ui.Keys.Delete):
			if e := a.cacheView.SelectedEntry(); e != nil {
				a.confirmDialog = confirm.New("Delete cached log",
					fmt.Sprintf("Delete the cached log of pipeline #%d (%s)?", e.Number, ui.FormatSize(e.Size)),
					"delete-cache-entry", e.PipelineID)
			}
			return nil
		case key.Matches(msg, ui.Keys.ClearAll):
			a.confirmDialog = confirm.New("Clear log cache", "Delete every cached pipeline log?", "clear-cache", nil)
			return nil
		}
	}

	return a.updateFocused(msg)
}

func (a *App) browse(url string) tea.Cmd {
	if url == "" {
		a.setStatus("No URL for this project")
		return nil
	}
	return a.openBrowser(url)
}

func (a *App) propagateSize() {
	// header(1) + breadcrumbs(1) + status(1) = 3 lines of chrome
	// pane border top(1) + bottom(1) = 2 lines
	contentH := a.height - 5
	if contentH < 1 {
		contentH = 1
	}
	full := a.width - 4
	if full < 1 {
		full = 1
	}

	leftW := a.width * 30 / 100
	rightW := a.width - leftW - 4
	if rightW < 1 {
		rightW = 1
	}
	a.groupsView, _ = a.groupsView.Update(tea.WindowSizeMsg{Width: leftW, Height: contentH})
	a.projectsView, _ = a.projectsView.Update(tea.WindowSizeMsg{Width: rightW, Height: contentH})

	a.jobsView, _ = a.jobsView.Update(tea.WindowSizeMsg{Width: full, Height: contentH})

	listW := a.width * 55 / 100
	detailsW := a.width - listW - 4
	if detailsW < 1 {
		detailsW = 1
	}
	a.pipelinesView, _ = a.pipelinesView.Update(tea.WindowSizeMsg{Width: listW, Height: contentH})
	a.detailsView, _ = a.detailsView.Update(tea.WindowSizeMsg{Width: detailsW, Height: contentH})

	a.logView, _ = a.logView.Update(tea.WindowSizeMsg{Width: full, Height: contentH})
	a.searchView, _ = a.searchView.Update(tea.WindowSizeMsg{Width: full, Height: contentH})
	a.cacheView, _ = a.cacheView.Update(tea.WindowSizeMsg{Width: full, Height: contentH})
}

// --- View ---

func (a App) View() string {
	state, live := a.pipelineState, a.pipelineSub != nil
	if a.screen == ScreenLogs && a.logSub != nil {
		state, live = a.logState, true
	}
	header := RenderHeader(a.cfg.Endpoint, state, live, a.width)
	crumbs := a.renderBreadcrumbs()

	contentH := a.height - 5
	if contentH < 1 {
		contentH = 1
	}
	fullPane := ui.StylePaneFocused.Width(a.width - 2).Height(contentH)

	var content string
	switch a.screen {
	case ScreenProjects:
		content = a.renderTwoPane(a.groupsView.View(), a.projectsView.View(), a.width*30/100, contentH)
	case ScreenJobs:
		content = fullPane.Render(a.jobsView.View())
	case ScreenPipelines:
		content = a.renderTwoPane(a.pipelinesView.View(), a.detailsView.View(), a.width*55/100, contentH)
	case ScreenLogs:
		if a.searchView.IsActive() {
			content = fullPane.Render(a.searchView.View())
		} else {
			content = fullPane.Render(a.logView.View())
		}
	case ScreenCache:
		content = fullPane.Render(a.cacheView.View())
	}

	if a.showHelp {
		content = a.renderHelp()
	} else if a.confirmDialog.IsActive() {
		content = a.confirmDialog.View()
	}

	statusBar := RenderStatusBar(a.status, a.failed, a.contextHints(), a.width)

	// Hard clamp: ensure content never overflows the terminal.
	maxContentLines := a.height - 3
	if maxContentLines > 0 {
		lines := strings.Split(content, "\n")
		if len(lines) > maxContentLines {
			lines = lines[:maxContentLines]
			content = strings.Join(lines, "\n")
		}
	}

	return header + "\n" + crumbs + "\n" + content + "\n" + statusBar
}

func (a App) renderTwoPane(left, right string, leftW, contentH int) string {
	rightW := a.width - leftW - 4
	if rightW < 1 {
		rightW = 1
	}
	leftStyle := ui.StylePane.Width(leftW).Height(contentH)
	rightStyle := ui.StylePane.Width(rightW).Height(contentH)
	if a.focusedPane == PaneLeft {
		leftStyle = ui.StylePaneFocused.Width(leftW).Height(contentH)
	} else {
		rightStyle = ui.StylePaneFocused.Width(rightW).Height(contentH)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, leftStyle.Render(left), rightStyle.Render(right))
}

func (a App) renderBreadcrumbs() string {
	crumbStyle := lipgloss.NewStyle().Padding(0, 1)
	active := crumbStyle.Bold(true).Foreground(ui.ColorPrimary)
	inactive := crumbStyle.Foreground(ui.ColorMuted)

	crumbs := []string{a.group.Name}
	if a.screen != ScreenProjects && a.project != nil {
		crumbs = append(crumbs, a.project.Name)
	}
	if (a.screen == ScreenPipelines || a.screen == ScreenLogs) && a.job != nil {
		crumbs = append(crumbs, a.job.Name)
	}
	if a.screen == ScreenLogs && a.pipeline != nil {
		crumbs = append(crumbs, fmt.Sprintf("#%d", a.pipeline.Number))
	}
	if a.screen == ScreenCache {
		crumbs = []string{"Log cache"}
	}

	rendered := make([]string, len(crumbs))
	for i, c := range crumbs {
		if i == len(crumbs)-1 {
			rendered[i] = active.Render(c)
		} else {
			rendered[i] = inactive.Render(c)
		}
	}
	return strings.Join(rendered, ui.StyleMuted.Render(">"))
}

func (a App) contextHints() string {
	switch a.screen {
	case ScreenProjects:
		if a.focusedPane == PaneLeft {
			return "enter:show projects  tab:projects  r:refresh  c:cache  ?:help"
		}
		return "enter:jobs  f:filter  o:open  tab:groups  r:refresh  c:cache  ?:help"
	case ScreenJobs:
		return "enter:pipelines  space:select  n:new pipeline  f:filter  o:open  esc:back  ?:help"
	case ScreenPipelines:
		legend := fmt.Sprintf("%s=pass %s=fail %s=unstable %s=run",
			ui.StatusIcon(model.PipelineSuccess),
			ui.StatusIcon(model.PipelineFailure),
			ui.StatusIcon(model.PipelineUnstable),
			ui.StatusIcon(model.PipelineInProgress),
		)
		filter := ""
		if s := statusCycle[a.statusFilter]; s != "" {
			filter = "[" + string(s) + "]  "
		}
		return legend + "  |  " + filter + "enter:logs  s:status  f:branch  n:new  esc:back  ?:help"
	case ScreenLogs:
		if a.searchView.IsActive() {
			if a.searchView.IsInputMode() {
				return "enter:search  esc:close"
			}
			return "enter:jump to line  j/k:navigate  /:new search  esc:close"
		}
		if a.logView.IsSearching() {
			return "enter:confirm  esc:cancel"
		}
		hints := "/:find  n/N:match  S:search stages  g/G:top/bot  esc:back"
		if a.logView.IsTailing() {
			return "[LIVE]  " + hints
		}
		return hints
	case ScreenCache:
		return "d:delete  x:clear all  s:sort  f:filter  r:refresh  esc:back"
	}
	return "?:help  q:quit"
}

func (a App) renderHelp() string {
	contentH := a.height - 5
	if contentH < 1 {
		contentH = 1
	}

	bold := lipgloss.NewStyle().Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(ui.ColorPrimary).Bold(true).Width(14)
	desc := lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB"))

	row := func(k, d string) string {
		return "  " + keyStyle.Render(k) + desc.Render(d) + "\n"
	}

	var b strings.Builder
	b.WriteString("\n" + bold.Render("  Navigation") + "\n\n")
	b.WriteString(row("enter", "Open selected item"))
	b.WriteString(row("esc / bksp", "Back"))
	b.WriteString(row("tab", "Switch pane"))
	b.WriteString(row("j / k", "Move down / up"))
	b.WriteString(row("r", "Refresh"))
	b.WriteString(row("c", "Log cache"))
	b.WriteString(row("q", "Quit"))

	b.WriteString("\n" + bold.Render("  Lists") + "\n\n")
	b.WriteString(row("f", "Server-side filter (name, or branch for pipelines)"))
	b.WriteString(row("space", "Select job"))
	b.WriteString(row("n", "Register pipeline for the job or selected jobs"))
	b.WriteString(row("s", "Cycle pipeline status filter"))
	b.WriteString(row("o", "Open project in browser"))

	b.WriteString("\n" + bold.Render("  Log Viewer") + "\n\n")
	b.WriteString(row("/", "Find in log"))
	b.WriteString(row("n / N", "Next / previous match"))
	b.WriteString(row("S", "Search stages"))
	b.WriteString(row("g / G", "Go to top / bottom"))
	b.WriteString(row("PgUp/PgDn", "Page up / page down"))

	b.WriteString("\n" + bold.Render("  Log Cache") + "\n\n")
	b.WriteString(row("s", "Cycle sort mode (last read / cached / size)"))
	b.WriteString(row("d", "Delete cached log"))
	b.WriteString(row("x", "Clear cache"))

	b.WriteString("\n" + lipgloss.NewStyle().Foreground(ui.ColorMuted).Render("  Press any key to close") + "\n")

	style := ui.StylePaneFocused.Width(a.width - 2).Height(contentH)
	return style.Render(b.String())
}
