package agents

import (
	"context"
	"strings"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
)

// maxSpecFiles bounds the listing shown to the architect.
const maxSpecFiles = 200

// Architect writes spec.md from the goal and the current file listing.
// A model failure is not fatal: the session continues on the raw goal.
type Architect struct {
	deps Deps
}

// Name implements Node.
func (a *Architect) Name() Name { return NodeArchitect }

// Run implements Node.
func (a *Architect) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(a.deps, NodeArchitect, st)

	files, err := a.deps.Sandbox.ListFiles(ctx, st.SandboxName, ".")
	if err != nil {
		log.Warn().Err(err).Msg("could not list sandbox files")
	}
	if len(files) > maxSpecFiles {
		files = files[:maxSpecFiles]
	}

	var existing string
	if data, err := a.deps.Sandbox.ReadFile(ctx, st.SandboxName, constants.SpecFileName); err == nil {
		existing = string(data)
	}

	data := prompts.ArchitectData{
		Goal:         st.Goal,
		Stack:        st.Stack,
		Files:        files,
		ExistingSpec: existing,
	}
	if st.ErrorCategory == constants.CategoryInfrastructure {
		data.LastError = truncate(st.LastError(), constants.MaxLogEntryLength)
	}

	u := domain.Update{}
	status := constants.StatusWaitingApproval
	if st.SpecApproved {
		status = constants.StatusSpecReady
	}
	u.Status = domain.Ptr(status)

	spec, err := a.writeSpec(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Warn().Err(err).Msg("spec generation failed, continuing with raw goal")
		u.AppendLogs = []string{logf(NodeArchitect, "spec generation failed, continuing with raw goal: %v", err)}
		u.Context = domain.Ptr(rawContext(st.Goal, existing, files))
		if existing == "" {
			if werr := a.deps.Sandbox.WriteFile(ctx, st.SandboxName, constants.SpecFileName,
				[]byte("# Specification\n\n"+st.Goal+"\n")); werr != nil {
				log.Warn().Err(werr).Msg("could not write fallback spec")
			}
		}
		return u, nil
	}

	if err := a.deps.Sandbox.WriteFile(ctx, st.SandboxName, constants.SpecFileName, []byte(spec)); err != nil {
		log.Warn().Err(err).Msg("could not write spec")
		u.AppendLogs = append(u.AppendLogs, logf(NodeArchitect, "could not write %s: %v", constants.SpecFileName, err))
	}
	u.Context = domain.Ptr(spec)
	u.AppendLogs = append(u.AppendLogs, logf(NodeArchitect, "wrote %s (%d bytes), status %s",
		constants.SpecFileName, len(spec), status))
	log.Info().Int("bytes", len(spec)).Str("status", status.String()).Msg("spec written")
	return u, nil
}

func (a *Architect) writeSpec(ctx context.Context, data prompts.ArchitectData) (string, error) {
	msgs, err := renderUser(prompts.Architect, data)
	if err != nil {
		return "", err
	}
	text, err := a.deps.Client.Complete(ctx, llm.Request{
		Node:     NodeArchitect.String(),
		System:   architectSystem,
		Messages: msgs,
	})
	if err != nil {
		return "", llm.AsModelError(NodeArchitect.String(), err)
	}
	spec := strings.TrimSpace(StripFences(text))
	if spec == "" {
		return "", &llm.ModelError{Node: NodeArchitect.String(), Kind: llm.KindEmpty, Attempts: 1}
	}
	return spec + "\n", nil
}

func rawContext(goal, spec string, files []string) string {
	var b strings.Builder
	b.WriteString("## Goal\n")
	b.WriteString(goal)
	b.WriteString("\n")
	if spec != "" {
		b.WriteString("\n## Specification\n")
		b.WriteString(spec)
	}
	if len(files) > 0 {
		b.WriteString("\n## Files\n")
		b.WriteString(strings.Join(files, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// SpecApproval is the human gate. The engine pauses before it; running it
// means the operator approved the spec.
type SpecApproval struct {
	deps Deps
}

// Name implements Node.
func (s *SpecApproval) Name() Name { return NodeSpecApproval }

// Run implements Node.
func (s *SpecApproval) Run(_ context.Context, _ *domain.WorkflowState) (domain.Update, error) {
	return domain.Update{
		Status:       domain.Ptr(constants.StatusSpecApproved),
		SpecApproved: domain.Ptr(true),
		AppendLogs:   []string{logf(NodeSpecApproval, "specification approved")},
	}, nil
}
