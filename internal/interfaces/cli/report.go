package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirono/webtrees/pkg/client"
)

var (
	reportTree        string
	reportKind        string
	reportFormat      string
	reportXref        string
	reportGenerations int
	reportWait        bool
	reportOutput      string
)

// NewReportCmd creates the report command covering asynchronous report
// generation.
func NewReportCmd() *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate genealogy reports",
		Long:  "Queue individual, pedigree and descendancy reports as PDF or HTML, poll their status and download the result.",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Queue a report and print its handle",
		RunE:  runReportGenerate,
	}
	generateCmd.Flags().StringVar(&reportTree, "tree", "", "Tree id (required)")
	generateCmd.Flags().StringVar(&reportKind, "kind", "", "Report kind: individual|pedigree|descendancy (required)")
	generateCmd.Flags().StringVar(&reportFormat, "format", client.FormatPDF, "Output format: pdf|html")
	generateCmd.Flags().StringVar(&reportXref, "xref", "", "Root individual xref (required)")
	generateCmd.Flags().IntVar(&reportGenerations, "generations", 0, "Generations to include (kind dependent default)")
	generateCmd.Flags().BoolVar(&reportWait, "wait", false, "Block until the report finishes")
	generateCmd.Flags().StringVarP(&reportOutput, "output", "O", "", "With --wait, download the result to this file")
	generateCmd.MarkFlagRequired("tree")
	generateCmd.MarkFlagRequired("kind")
	generateCmd.MarkFlagRequired("xref")

	statusCmd := &cobra.Command{
		Use:   "status <handle>",
		Short: "Show a report job's state",
		Args:  cobra.ExactArgs(1),
		RunE:  runReportStatus,
	}

	downloadCmd := &cobra.Command{
		Use:   "download <handle>",
		Short: "Download a finished report",
		Args:  cobra.ExactArgs(1),
		RunE:  runReportDownload,
	}
	downloadCmd.Flags().StringVarP(&reportOutput, "output", "O", "", "Write to file instead of stdout")

	reportCmd.AddCommand(generateCmd, statusCmd, downloadCmd)
	return reportCmd
}

func runReportGenerate(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(reportTree)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	job, err := cliCtx.Client.Reports().Generate(ctx, &client.GenerateReportRequest{
		TreeID:      treeID,
		Kind:        reportKind,
		Format:      reportFormat,
		Xref:        reportXref,
		Generations: reportGenerations,
	})
	if err != nil {
		return err
	}

	if !reportWait {
		if cliCtx.OutputFormat == "json" {
			return PrintResult(cmd, job)
		}
		PrintSuccess(cmd, fmt.Sprintf("queued %s report %s", job.Kind, job.Handle))
		return nil
	}

	job, err = cliCtx.Client.Reports().Wait(ctx, job.Handle, 2*time.Second)
	if err != nil {
		return err
	}
	if job.Status == client.ReportFailed {
		return fmt.Errorf("report %s failed: %s", job.Handle, job.Reason)
	}
	if reportOutput == "" {
		return PrintResult(cmd, job)
	}
	return downloadReport(cmd, cliCtx, job.Handle)
}

func runReportStatus(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	job, err := cliCtx.Client.Reports().Status(ctx, args[0])
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, job)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s report for %s, status %s\n",
		job.Handle, job.Kind, job.Format, job.Xref, job.Status)
	if job.Status == client.ReportFailed && job.Reason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "reason: %s\n", job.Reason)
	}
	return nil
}

func runReportDownload(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	return downloadReport(cmd, cliCtx, args[0])
}

func downloadReport(cmd *cobra.Command, cliCtx *CLIContext, handle string) error {
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	data, contentType, err := cliCtx.Client.Reports().Download(ctx, handle)
	if err != nil {
		return err
	}
	if reportOutput != "" {
		if err := os.WriteFile(reportOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write report file: %w", err)
		}
		PrintSuccess(cmd, fmt.Sprintf("wrote %d bytes (%s) to %s", len(data), contentType, reportOutput))
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
