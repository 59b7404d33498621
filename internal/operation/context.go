package operation

import (
	"context"
	"maps"

	"github.com/Iron-Ham/phasebuild/internal/workspace"
)

// ChangeAnalyzer answers whether a project's last known output for a given
// task key is still valid. Runners consult it to decide SKIPPED.
type ChangeAnalyzer interface {
	IsUpToDate(ctx context.Context, project *workspace.Project, key string) (bool, error)
	// RecordSuccess remembers the project's current inputs as producing a
	// valid output for key.
	RecordSuccess(ctx context.Context, project *workspace.Project, key string) error
}

// BuildCache is the build-cache capability. A nil BuildCache on the context
// means caching is disabled for the cycle.
type BuildCache interface {
	// TryRestore restores the output for key, reporting whether it did.
	TryRestore(ctx context.Context, project *workspace.Project, key string) (bool, error)
	TrySave(ctx context.Context, project *workspace.Project, key string) error
}

// CreateContextOptions holds the values of a CreateContext.
type CreateContextOptions struct {
	BuildCache                BuildCache
	CustomParameters          map[string]string
	IsIncrementalBuildAllowed bool
	IsInitial                 bool
	IsWatch                   bool
	// Clean requests removal of each phase's clean targets before it runs.
	Clean                  bool
	PhaseOriginal          []*workspace.Phase
	PhaseSelection         []*workspace.Phase
	ProjectSelection       []*workspace.Project
	ProjectsInUnknownState []*workspace.Project
	ChangeAnalyzer         ChangeAnalyzer
	Workspace              *workspace.Workspace
	Cycle                  int
}

// CreateContext describes one build invocation (one cycle in watch mode).
// It is built once per cycle, passed by reference to every hook and runner,
// and never changes afterwards: accessors return copies.
type CreateContext struct {
	opts          CreateContextOptions
	unknownByName map[string]bool
}

// NewCreateContext freezes opts into a CreateContext. When
// ProjectsInUnknownState is nil it defaults to the full project selection.
func NewCreateContext(opts CreateContextOptions) *CreateContext {
	frozen := opts
	frozen.CustomParameters = maps.Clone(opts.CustomParameters)
	if frozen.CustomParameters == nil {
		frozen.CustomParameters = map[string]string{}
	}
	frozen.PhaseOriginal = append([]*workspace.Phase(nil), opts.PhaseOriginal...)
	frozen.PhaseSelection = append([]*workspace.Phase(nil), opts.PhaseSelection...)
	frozen.ProjectSelection = append([]*workspace.Project(nil), opts.ProjectSelection...)
	if opts.ProjectsInUnknownState == nil {
		frozen.ProjectsInUnknownState = append([]*workspace.Project(nil), opts.ProjectSelection...)
	} else {
		frozen.ProjectsInUnknownState = append([]*workspace.Project(nil), opts.ProjectsInUnknownState...)
	}

	unknown := make(map[string]bool, len(frozen.ProjectsInUnknownState))
	for _, p := range frozen.ProjectsInUnknownState {
		unknown[p.Name] = true
	}
	return &CreateContext{opts: frozen, unknownByName: unknown}
}

// BuildCache returns the build cache, or nil when caching is disabled.
func (c *CreateContext) BuildCache() BuildCache { return c.opts.BuildCache }

// CustomParameters returns a copy of the parsed custom CLI parameters.
func (c *CreateContext) CustomParameters() map[string]string {
	return maps.Clone(c.opts.CustomParameters)
}

// CustomParameter returns one custom parameter value.
func (c *CreateContext) CustomParameter(name string) (string, bool) {
	v, ok := c.opts.CustomParameters[name]
	return v, ok
}

// IsIncrementalBuildAllowed reports whether runners may reuse earlier results.
func (c *CreateContext) IsIncrementalBuildAllowed() bool { return c.opts.IsIncrementalBuildAllowed }

// IsInitial reports whether this is the first cycle of the process.
func (c *CreateContext) IsInitial() bool { return c.opts.IsInitial }

// IsWatch reports whether the command runs in watch mode.
func (c *CreateContext) IsWatch() bool { return c.opts.IsWatch }

// Clean reports whether a clean build was requested.
func (c *CreateContext) Clean() bool { return c.opts.Clean }

// PhaseOriginal returns the phases the user asked for.
func (c *CreateContext) PhaseOriginal() []*workspace.Phase {
	return append([]*workspace.Phase(nil), c.opts.PhaseOriginal...)
}

// PhaseSelection returns the requested phases plus the phases they depend on.
func (c *CreateContext) PhaseSelection() []*workspace.Phase {
	return append([]*workspace.Phase(nil), c.opts.PhaseSelection...)
}

// ProjectSelection returns the selected projects.
func (c *CreateContext) ProjectSelection() []*workspace.Project {
	return append([]*workspace.Project(nil), c.opts.ProjectSelection...)
}

// ProjectsInUnknownState returns the selected projects whose up-to-date state
// must be checked. On the first cycle this is the whole selection.
func (c *CreateContext) ProjectsInUnknownState() []*workspace.Project {
	return append([]*workspace.Project(nil), c.opts.ProjectsInUnknownState...)
}

// IsProjectInUnknownState reports whether p's up-to-date state is unknown.
func (c *CreateContext) IsProjectInUnknownState(p *workspace.Project) bool {
	return p != nil && c.unknownByName[p.Name]
}

// ChangeAnalyzer returns the change analyzer, which may be nil.
func (c *CreateContext) ChangeAnalyzer() ChangeAnalyzer { return c.opts.ChangeAnalyzer }

// Workspace returns the loaded workspace definition, which may be nil for
// operation sets assembled without one.
func (c *CreateContext) Workspace() *workspace.Workspace { return c.opts.Workspace }

// Cycle returns the 1-based cycle number.
func (c *CreateContext) Cycle() int { return c.opts.Cycle }
