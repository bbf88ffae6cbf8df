package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
	"gopkg.in/yaml.v3"
)

// workflowFile is the YAML layout accepted by `workflow run`:
//
//	session: <id>            # optional; a new cross-dimensional session otherwise
//	strategy: sequential     # or parallel
//	dimensions: [content, insights]
//	steps:
//	  - name: draft
//	    dimension: content
//	    action: put_state
//	    params: {key: draft, value: hello}
type workflowFile struct {
	Session    string         `yaml:"session"`
	Strategy   string         `yaml:"strategy"`
	Dimensions []string       `yaml:"dimensions"`
	Steps      []workflowStep `yaml:"steps"`
}

type workflowStep struct {
	Name      string         `yaml:"name"`
	Dimension string         `yaml:"dimension"`
	Action    string         `yaml:"action"`
	Params    map[string]any `yaml:"params"`
}

func newWorkflowCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run multi-step workflows across dimensions",
	}

	cmd.AddCommand(newWorkflowRunCmd(app))

	return cmd
}

func newWorkflowRunCmd(app *app) *cobra.Command {
	var (
		file      string
		sessionID string
		strategy  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow described in a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := readWorkflowFile(cmd, file)
			if err != nil {
				return err
			}
			if sessionID != "" {
				wf.Session = sessionID
			}
			if strategy != "" {
				wf.Strategy = strategy
			}
			return app.execute(cmd, wf.command())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow YAML file, or - for stdin")
	cmd.Flags().StringVar(&sessionID, "session", "", "run inside this session instead of the file's")
	cmd.Flags().StringVar(&strategy, "strategy", "", "override the file's execution strategy")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readWorkflowFile(cmd *cobra.Command, path string) (workflowFile, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return workflowFile{}, fmt.Errorf("read workflow file: %w", err)
	}

	var wf workflowFile
	if err := yaml.Unmarshal(raw, &wf); err != nil {
		return workflowFile{}, fmt.Errorf("parse workflow file: %w", err)
	}
	if len(wf.Steps) == 0 {
		return workflowFile{}, fmt.Errorf("%w: workflow file has no steps", domain.ErrInvalidArgument)
	}
	return wf, nil
}

func (wf workflowFile) command() application.ExecuteWorkflowCommand {
	steps := make([]domain.WorkflowStep, 0, len(wf.Steps))
	for _, s := range wf.Steps {
		steps = append(steps, domain.WorkflowStep{
			Name:      s.Name,
			Dimension: domain.DimensionID(s.Dimension),
			Action:    s.Action,
			Params:    s.Params,
		})
	}

	strategy := domain.ExecutionStrategy(wf.Strategy)
	if strategy == "" {
		strategy = domain.ExecutionSequential
	}

	return application.ExecuteWorkflowCommand{
		SessionID:  domain.SessionID(wf.Session),
		Dimensions: dimensionIDs(wf.Dimensions),
		Steps:      steps,
		Strategy:   strategy,
	}
}
