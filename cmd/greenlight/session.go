package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iffystrayer/greenlight/internal/orchestrator"
	"github.com/iffystrayer/greenlight/internal/stage"
	"github.com/iffystrayer/greenlight/internal/types"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage interview sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a new interview session",
	RunE:  runSessionCreate,
}

var sessionSubmitCmd = &cobra.Command{
	Use:   "submit <session-id> <response>",
	Short: "Submit a response to the session's pending question",
	Long: `Submit a response to the session's pending question. The response is
quality-assessed; a rejected response re-asks the question with the
evaluator's follow-ups, and the attempt counter carries across calls.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSessionSubmit,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's stage, status, and progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStatus,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a session from its latest verified checkpoint",
	Long: `Resume a session from its latest verified checkpoint. A corrupted
checkpoint fails closed; pass --allow-fallback to restore from the newest
older checkpoint that still verifies, accepting the loss of the corrupted
stages.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionResume,
}

var sessionAbandonCmd = &cobra.Command{
	Use:   "abandon <session-id>",
	Short: "Abandon a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionAbandon,
}

var sessionFinalizeCmd = &cobra.Command{
	Use:   "finalize <session-id>",
	Short: "Run the cross-stage consistency check for a fully gated session",
	Long: `Run the cross-stage consistency check for a session whose five stages
are all gated. Normally this happens automatically when stage 5 gates; use
this command to retry after an unverifiable verdict blocked completion.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionFinalize,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions for an owner",
	RunE:  runSessionList,
}

var (
	createOwner         string
	createProject       string
	resumeAllowFallback bool
	listOwner           string
	jsonOutput          bool
)

func init() {
	sessionCreateCmd.Flags().StringVar(&createOwner, "owner", "", "Owner conducting the interview (required)")
	sessionCreateCmd.Flags().StringVar(&createProject, "project", "", "Label of the proposed initiative (required)")
	sessionCreateCmd.MarkFlagRequired("owner")
	sessionCreateCmd.MarkFlagRequired("project")

	sessionResumeCmd.Flags().BoolVar(&resumeAllowFallback, "allow-fallback", false, "Fall back to an older valid checkpoint if the latest is corrupt")

	sessionListCmd.Flags().StringVar(&listOwner, "owner", "", "Owner to list sessions for (required)")
	sessionListCmd.MarkFlagRequired("owner")

	sessionCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionSubmitCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionAbandonCmd)
	sessionCmd.AddCommand(sessionFinalizeCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	res, err := eng.orch.CreateSession(ctx, createOwner, createProject)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, res)
	}
	cmd.Printf("Session %s created for %q\n", res.View.SessionID, createProject)
	printQuestion(cmd, res.View.CurrentStage, res.View.StageName, res.Question)
	return nil
}

func runSessionSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := types.ParseID(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}
	response := strings.Join(args[1:], " ")

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	// The CLI is stateless between invocations, so load the session first.
	if _, err := eng.orch.ResumeSession(ctx, id, false); err != nil {
		return err
	}

	res, err := eng.orch.SubmitResponse(ctx, id, response)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, res)
	}
	printSubmitResult(cmd, res)
	return nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := types.ParseID(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	view, err := eng.orch.Status(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, view)
	}
	printView(cmd, view)
	return nil
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := types.ParseID(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	res, err := eng.orch.ResumeSession(ctx, id, resumeAllowFallback)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, res)
	}
	if res.CheckpointStage > 0 {
		cmd.Printf("Session %s resumed from checkpoint at stage %d\n", id, res.CheckpointStage)
	} else {
		cmd.Printf("Session %s resumed (no checkpoint yet, starting at stage 1)\n", id)
	}
	if res.View.AwaitingFinalize {
		cmd.Println("All stages gated; run 'greenlight session finalize' to complete")
		return nil
	}
	printQuestion(cmd, res.View.CurrentStage, res.View.StageName, res.Question)
	return nil
}

func runSessionAbandon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := types.ParseID(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.orch.AbandonSession(ctx, id); err != nil {
		return err
	}
	cmd.Printf("Session %s abandoned\n", id)
	return nil
}

func runSessionFinalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := types.ParseID(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	if _, err := eng.orch.ResumeSession(ctx, id, false); err != nil {
		return err
	}

	res, err := eng.orch.Finalize(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, res)
	}
	printReportAndArtifact(cmd, res)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	records, err := eng.dao.ListSessionsByOwner(ctx, listOwner)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, records)
	}
	if len(records) == 0 {
		cmd.Printf("No sessions for owner %q\n", listOwner)
		return nil
	}
	for _, rec := range records {
		cmd.Printf("%s  stage %d  %-10s  %s\n",
			rec.ID, rec.CurrentStage, rec.Status, rec.ProjectLabel)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func printQuestion(cmd *cobra.Command, stageNum int, stageName string, q *stage.Question) {
	if q == nil {
		return
	}
	cmd.Printf("\n[Stage %d: %s]\n%s\n", stageNum, stageName, q.Text)
}

func printView(cmd *cobra.Command, v *orchestrator.SessionView) {
	cmd.Printf("Session:  %s\n", v.SessionID)
	cmd.Printf("Project:  %s\n", v.ProjectLabel)
	cmd.Printf("Owner:    %s\n", v.OwnerID)
	cmd.Printf("Status:   %s\n", v.Status)
	cmd.Printf("Stage:    %d (%s)\n", v.CurrentStage, v.StageName)
	cmd.Printf("Progress: %d%%\n", v.Progress)
	if len(v.Remediation) > 0 {
		cmd.Printf("Remediation open for stages: %v\n", v.Remediation)
	}
	if v.AwaitingFinalize {
		cmd.Println("All stages gated; awaiting consistency check")
	}
}

func printSubmitResult(cmd *cobra.Command, res *orchestrator.SubmitResult) {
	a := res.Assessment
	if a == nil {
		// Gate retry after a rolled-back transition; no new answer scored.
		printGateOutcome(cmd, res)
		printQuestion(cmd, res.View.CurrentStage, res.View.StageName, res.NextQuestion)
		return
	}
	if !res.Accepted {
		cmd.Printf("Response scored %d/10 (attempt %d), below the acceptance threshold.\n",
			a.Score, a.Attempt)
		for _, issue := range a.Issues {
			cmd.Printf("  issue: %s\n", issue)
		}
		for _, fu := range a.FollowUps {
			cmd.Printf("  consider: %s\n", fu)
		}
		printQuestion(cmd, res.Stage, res.View.StageName, res.NextQuestion)
		return
	}

	switch {
	case a.EvaluationSkipped:
		cmd.Println("Response accepted (quality evaluation unavailable).")
	case a.AcceptedUnderDuress:
		cmd.Printf("Response accepted after %d attempts (score %d/10, flagged for review).\n",
			a.Attempt, a.Score)
	default:
		cmd.Printf("Response accepted (score %d/10).\n", a.Score)
	}

	printGateOutcome(cmd, res)
	printQuestion(cmd, res.View.CurrentStage, res.View.StageName, res.NextQuestion)
}

func printGateOutcome(cmd *cobra.Command, res *orchestrator.SubmitResult) {
	if res.Gate != nil {
		if res.Gate.CanProceed {
			cmd.Printf("Stage %d complete (completeness %d%%). Progress: %d%%\n",
				res.Stage, res.Gate.Completeness, res.View.Progress)
		} else {
			cmd.Printf("Stage %d gate blocked (completeness %d%%).\n", res.Stage, res.Gate.Completeness)
			for _, f := range res.Gate.MissingFields {
				cmd.Printf("  missing: %s\n", f)
			}
			for _, v := range res.Gate.Violations {
				cmd.Printf("  violation: %s\n", v)
			}
		}
	}

	if res.Report != nil {
		printReportAndArtifact(cmd, &orchestrator.FinalizeResult{
			Report:   res.Report,
			Artifact: res.Artifact,
			View:     res.View,
		})
	}
}

func printReportAndArtifact(cmd *cobra.Command, res *orchestrator.FinalizeResult) {
	r := res.Report
	cmd.Printf("Consistency: %s (feasibility %s, confidence %.2f)\n",
		r.Status, r.Feasibility, r.Confidence)
	if r.Reason != "" {
		cmd.Printf("  reason: %s\n", r.Reason)
	}
	for _, c := range r.Contradictions {
		cmd.Printf("  contradiction [%s]: stages %d/%d: %s\n",
			c.Severity, c.StageA, c.StageB, c.Description)
	}
	if len(res.View.Remediation) > 0 {
		cmd.Printf("Stages %v re-opened for remediation.\n", res.View.Remediation)
	}
	if res.Artifact != nil {
		data, err := res.Artifact.Render()
		if err != nil {
			cmd.PrintErrf("failed to render artifact: %v\n", err)
			return
		}
		cmd.Printf("Decision: %s\n%s\n", res.Artifact.Decision, string(data))
	}
}
