package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/policydesk/api/internal/batchfile"
	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/config"
	"github.com/policydesk/api/internal/identity"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/policy"
	"github.com/policydesk/api/internal/service"
)

var (
	submitTarget  string
	submitDate    string
	submitContent string
	submitGroups  []string
	submitWait    bool
	batchFile     string
	batchRegister bool
)

func init() {
	// submit command
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one target for rendering",
		RunE:  runSubmit,
	}
	submitCmd.Flags().StringVar(&submitTarget, "target", "", "target id")
	submitCmd.Flags().StringVar(&submitDate, "date", "", "apply date text")
	submitCmd.Flags().StringVar(&submitContent, "content", "", "apply content text")
	submitCmd.Flags().StringSliceVar(&submitGroups, "groups", nil, "access group ids")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "follow the job until it finishes")
	_ = submitCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(submitCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch JOBID",
		Short: "Follow a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	// batch command
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Render every target of a batch file, one at a time",
		RunE:  runBatch,
	}
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "batch.toml", "batch file")
	batchCmd.Flags().BoolVar(&batchRegister, "register", false, "publish finished tables (also set by register = true)")
	rootCmd.AddCommand(batchCmd)

	// register command
	registerCmd := &cobra.Command{
		Use:   "register ARTIFACT...",
		Short: "Publish rendered tables as the official version",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRegister,
	}
	rootCmd.AddCommand(registerCmd)
}

// app holds the relay side of the client, built from config plus flags
type app struct {
	cfg       *config.Config
	relay     *client.RelayClient
	submitter *service.Submitter
	poller    *service.Poller
	owner     identity.Identity
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if relayURL != "" {
		cfg.Relay.BaseURL = relayURL
	}
	if apiKey != "" {
		cfg.Relay.APIKey = apiKey
	}
	relay := client.NewRelayClient(&cfg.Relay)
	if !relay.IsConfigured() {
		return nil, errors.New("relay base url is not configured")
	}
	return &app{
		cfg:       cfg,
		relay:     relay,
		submitter: service.NewSubmitter(relay, nil),
		poller:    service.NewPoller(relay, cfg.Poll),
		owner:     identity.Identity{UserID: userID},
	}, nil
}

// signalContext carries the caller identity and ends on Ctrl-C
func (a *app) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if a.owner.UserID != "" {
		ctx = identity.WithIdentity(ctx, a.owner)
	}
	return ctx, cancel
}

func runSubmit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.signalContext()
	defer cancel()

	content, err := policy.ResolveApplyContent(submitContent, nil)
	if err != nil {
		return err
	}
	sub, err := a.submitter.Submit(ctx, model.JobRequest{
		TargetID:         submitTarget,
		ApplyDateText:    submitDate,
		ApplyContentText: content,
		AccessGroupIDs:   submitGroups,
	})
	if err != nil {
		return err
	}

	if sub.Adopted {
		fmt.Printf("target %s already has job %s in flight\n", submitTarget, sub.JobID)
	} else {
		fmt.Printf("submitted %s as job %s\n", submitTarget, sub.JobID)
	}
	printStatus(sub.Status)

	if !submitWait {
		return nil
	}
	return a.watch(ctx, sub.JobID, &sub.Status)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.signalContext()
	defer cancel()
	return a.watch(ctx, args[0], nil)
}

func (a *app) watch(ctx context.Context, jobID string, initial *model.JobStatus) error {
	final, err := a.poller.Poll(ctx, jobID, initial, printStatus)
	if err != nil {
		return err
	}
	if final.Status == model.JobStateFailed {
		return fmt.Errorf("job %s failed: %s", jobID, firstNonEmpty(final.FailureReason, final.Error, final.Message))
	}
	if final.Result != nil {
		fmt.Printf("artifact %s: %s\n", final.Result.ArtifactID, final.Result.ImageURL)
	}
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.signalContext()
	defer cancel()

	registrar := service.NewRegistrar(a.relay, nil, a.cfg.Batch.RegisterConcurrency)
	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARTIFACT\tREGISTRATION\tREASON")
	for _, id := range args {
		state := registrar.RegisterOne(ctx, model.JobResult{ArtifactID: id})
		if state.Kind == model.RegistrationFailed {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, state.Kind, orDash(state.Reason))
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d registrations failed", failed, len(args))
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	file, err := batchfile.Load(batchFile)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.signalContext()
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, file.RunTimeout())
	defer cancelRun()

	orch := service.NewOrchestrator(a.submitter, a.poller, service.NewRelayGate("relay", a.cfg.Batch.SettleDelay))
	registrar := service.NewRegistrar(a.relay, nil, a.cfg.Batch.RegisterConcurrency)
	local := &localDispatcher{ctx: ctx}
	batches := service.NewBatchService(orch, registrar, local, progressPrinter{}, nil, nil)
	local.batches = batches

	// dispatch runs inline, so Create returns once every target finished
	run, err := batches.Create(ctx, a.owner, file.Request())
	if err != nil {
		return err
	}
	defer batches.Close(run.ID, a.owner)

	for attempt := 0; attempt < file.Retries && ctx.Err() == nil; attempt++ {
		failed := failedTargets(run.Store.Snapshot())
		if len(failed) == 0 {
			break
		}
		for _, id := range failed {
			if _, err := batches.Retry(ctx, run.ID, id, a.owner); err != nil {
				fmt.Fprintf(os.Stderr, "retry of %s: %v\n", id, err)
			}
		}
	}

	snap := run.Store.Snapshot()
	if (batchRegister || file.Register) && snap.PublishOffered {
		summary, err := batches.RegisterAll(ctx, run.ID, a.owner)
		if err != nil {
			return err
		}
		snap = summary.Snapshot
	}

	printSnapshot(snap)
	if ctx.Err() != nil {
		return fmt.Errorf("batch stopped: %w", ctx.Err())
	}
	if snap.Counts.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", snap.Counts.Failed, snap.Counts.Total)
	}
	return nil
}

// localDispatcher runs batch work in the calling goroutine
type localDispatcher struct {
	ctx     context.Context
	batches *service.BatchService
}

func (d *localDispatcher) DispatchRun(_ context.Context, batchID string) error {
	_, err := d.batches.ExecuteRun(d.ctx, batchID)
	return err
}

func (d *localDispatcher) DispatchRetry(_ context.Context, batchID, targetID string) error {
	err := d.batches.ExecuteRetry(d.ctx, batchID, targetID)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// progressPrinter prints one line per changed item
type progressPrinter struct{}

func (progressPrinter) PublishSnapshot(snap model.BatchSnapshot) {
	c := snap.Counts
	fmt.Printf("\r[%d/%d] completed=%d failed=%d queued=%d processing=%d   ",
		c.Completed+c.Failed, c.Total, c.Completed, c.Failed, c.Queued, c.Processing)
	if snap.Finished {
		fmt.Println()
	}
}

func (progressPrinter) PublishClosed(string) {}

func failedTargets(snap model.BatchSnapshot) []string {
	var ids []string
	for _, it := range snap.Items {
		if it.State() == model.JobStateFailed {
			ids = append(ids, it.TargetID)
		}
	}
	sort.Strings(ids)
	return ids
}

func printSnapshot(snap model.BatchSnapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tATTEMPT\tARTIFACT\tREGISTRATION\tDETAIL")
	for _, it := range snap.Items {
		state, artifact, detail := "pending", "-", "-"
		if it.Status != nil {
			state = string(it.Status.Status)
			if it.Status.Result != nil {
				artifact = it.Status.Result.ArtifactID
			}
			detail = orDash(firstNonEmpty(it.Status.FailureReason, it.Status.Error))
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			it.TargetID, state, it.Attempt, artifact, it.Registration.Kind, detail)
	}
	w.Flush()
}

func printStatus(st model.JobStatus) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %d%%", st.JobID, st.Status, st.Progress)
	if pos := st.QueuePosition(); pos > 0 {
		fmt.Fprintf(&b, " (queue position %d)", pos)
	}
	if st.Message != "" {
		fmt.Fprintf(&b, " %s", st.Message)
	}
	fmt.Println(b.String())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
