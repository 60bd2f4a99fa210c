package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/trendscope/cmd/trendscope/ui"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/pkg/engine"
)

type askOptions struct {
	maxResults int
	minScore   float64
	deadline   time.Duration
	remote     string
}

type answerFunc func(ctx context.Context, req engine.AnswerRequest) (*domain.OrchestratedResponse, error)

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, or start an interactive session without one",
		Example: `  trendscope ask "Top 10 channels by total views"
  trendscope ask --json --max-results 5 "videos about cooking"
  trendscope ask --remote http://localhost:8000 "gaming videos"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, opts, args)
		},
	}
	cmd.Flags().IntVar(&opts.maxResults, "max-results", 0, "maximum rows per agent (1-100)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "minimum similarity score for semantic results")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 0, "request deadline, e.g. 30s")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "base URL of a trendscope-api server")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootOptions, opts *askOptions, args []string) error {
	out := root.ui(cmd)

	base := engine.AnswerRequest{MaxResults: opts.maxResults}
	if cmd.Flags().Changed("min-score") {
		base.MinScore = &opts.minScore
	}
	if cmd.Flags().Changed("deadline") {
		ms := opts.deadline.Milliseconds()
		base.DeadlineMs = &ms
	}

	answer, closeFn, err := answerer(cmd, root, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	if len(args) > 0 {
		req := base
		req.Query = strings.Join(args, " ")
		resp, err := ask(cmd.Context(), out, answer, req, root.verbose)
		if err != nil {
			return err
		}
		return responseError(resp)
	}
	return interactive(cmd, out, answer, base, root.verbose)
}

// answerer returns a function answering through a remote server or a local engine.
func answerer(cmd *cobra.Command, root *rootOptions, opts *askOptions) (answerFunc, func(), error) {
	if opts.remote != "" {
		client := engine.NewClient(engine.ClientConfig{BaseURL: opts.remote})
		return func(ctx context.Context, req engine.AnswerRequest) (*domain.OrchestratedResponse, error) {
			resp, err := client.Answer(ctx, req)
			if err != nil {
				if connect.CodeOf(err) == connect.CodeResourceExhausted {
					return nil, exitf(ExitDependency, fmt.Errorf("server is overloaded: %w", err))
				}
				return nil, exitf(ExitDependency, fmt.Errorf("remote request failed: %w", err))
			}
			return resp, nil
		}, func() {}, nil
	}

	e, err := root.openEngine(cmd)
	if err != nil {
		return nil, nil, err
	}
	return func(ctx context.Context, req engine.AnswerRequest) (*domain.OrchestratedResponse, error) {
		return e.Orchestrator.Answer(ctx, req.Query, req.Options()), nil
	}, func() { _ = e.Close() }, nil
}

func ask(ctx context.Context, out *ui.UI, answer answerFunc, req engine.AnswerRequest, verbose bool) (*domain.OrchestratedResponse, error) {
	spin := out.NewSpinner("Thinking...")
	spin.Start()
	resp, err := answer(ctx, req)
	spin.Stop()
	if err != nil {
		return nil, err
	}

	if out.JSON() {
		return resp, out.PrintJSON(resp)
	}
	out.Response(resp, verbose)
	return resp, nil
}

// interactive answers one question per input line until EOF or "exit".
func interactive(cmd *cobra.Command, out *ui.UI, answer answerFunc, base engine.AnswerRequest, verbose bool) error {
	ctx := cmd.Context()
	out.Info("Interactive mode. Type a question, or \"exit\" to quit.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		if !out.JSON() {
			fmt.Fprint(out.Out(), "\n> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		req := base
		req.Query = line
		if _, err := ask(ctx, out, answer, req, verbose); err != nil {
			var ee *ExitError
			if !errors.As(err, &ee) || ee.Code != ExitDependency {
				return err
			}
			out.Error("%v", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
