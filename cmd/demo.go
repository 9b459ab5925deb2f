package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/formflow/internal/adapters/render/form"
	"github.com/bnema/formflow/internal/adapters/transport/terminal"
	"github.com/bnema/formflow/internal/application"
	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
	"github.com/bnema/formflow/internal/screens/demo"
)

const demoSession = domain.SessionID("terminal")

type demoOptions struct {
	listDelay time.Duration
	timeout   time.Duration
	locale    string
}

func newDemoCmd(root *rootOptions) *cobra.Command {
	opts := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through the guild forms in the terminal",
		Long:  "Run the guild demo flow against a local session. Pick buttons by number, fill inputs as id=value pairs, or type back to close the current form.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, root, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.listDelay, "list-delay", 300*time.Millisecond, "simulated latency of the guild list")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "override the default form timeout")
	cmd.Flags().StringVar(&opts.locale, "locale", "en", "locale used for cached forms")

	return cmd
}

func runDemo(cmd *cobra.Command, root *rootOptions, opts *demoOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := wireApp(ctx, root.configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		a.cfg.Timeout.DefaultSeconds = int(opts.timeout / time.Second)
	}

	out := cmd.OutOrStdout()
	sender := terminal.NewSender(out, demoSession, form.Render, a.clock)
	engine, err := a.newEngine(ctx, sender, sender)
	if err != nil {
		_ = a.store.Close()
		return err
	}
	defer func() {
		sender.Close()
		if err := shutdownEngine(engine, 5*time.Second); err != nil {
			a.logger.Warn("engine shutdown failed", "error", err)
		}
	}()

	flow := demo.NewFlow(demo.NewRegistry(demoGuilds(a.clock.Now())...), opts.locale, a.clock)
	flow.ListDelay = opts.listDelay

	session := engine.Session(demoSession)
	if err := session.Open(ctx, flow.Root()); err != nil {
		return fmt.Errorf("open demo: %w", err)
	}

	d := &demoLoop{
		ctx:     ctx,
		out:     out,
		status:  cmd.ErrOrStderr(),
		engine:  engine,
		session: session,
		sender:  sender,
		clock:   a.clock,
		wait:    &formWait{ctx: ctx, session: session, sender: sender},
	}
	return d.run(bufio.NewScanner(cmd.InOrStdin()))
}

type demoLoop struct {
	ctx     context.Context
	out     io.Writer
	status  io.Writer
	engine  *application.Engine
	session *application.Session
	sender  *terminal.Sender
	clock   ports.Clock
	wait    *formWait
}

func (d *demoLoop) run(scanner *bufio.Scanner) error {
	if err := d.settle(); err != nil {
		return err
	}

	for d.session.Depth() > 0 {
		d.prompt()
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		}

		delivery, ok := d.sender.Last()
		if !ok {
			return nil
		}
		resp, err := terminal.ParseInput(delivery, scanner.Text())
		if err != nil {
			fmt.Fprintf(d.out, "%v\n", err)
			continue
		}

		if err := d.session.Submit(d.ctx, resp); err != nil {
			if errors.Is(err, domain.ErrStaleResponse) {
				fmt.Fprintln(d.out, "That form is no longer open.")
				continue
			}
			return fmt.Errorf("submit: %w", err)
		}
		if err := d.settle(); err != nil {
			return err
		}
	}

	return nil
}

// settle waits until the form on top of the stack has been written.
func (d *demoLoop) settle() error {
	return awaitForm(d.status, d.wait)
}

func (d *demoLoop) prompt() {
	deadline, _, ok := d.engine.Timeouts().Active(demoSession)
	if ok {
		fmt.Fprintln(d.out, form.Countdown(deadline, d.clock.Now()))
	}
	fmt.Fprint(d.out, "> ")
}

func demoGuilds(now time.Time) []demo.Guild {
	return []demo.Guild{
		{Name: "Oak", Color: "green", Public: true, Owner: "ada", CreatedAt: now.Add(-48 * time.Hour)},
		{Name: "Harbor", Color: "blue", Public: false, Owner: "lin", CreatedAt: now.Add(-2 * time.Hour)},
	}
}
