package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mirono/webtrees/pkg/client"
)

var (
	gedcomTree   string
	gedcomOutput string
	treeTitle    string
)

// NewGedcomCmd creates the gedcom command covering tree lifecycle and
// GEDCOM transfer.
func NewGedcomCmd() *cobra.Command {
	gedcomCmd := &cobra.Command{
		Use:   "gedcom",
		Short: "Manage trees and transfer GEDCOM files",
		Long:  "Create and list family trees, upload GEDCOM files into them and export them back out.",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty tree (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE:  runTreeCreate,
	}
	createCmd.Flags().StringVar(&treeTitle, "title", "", "Display title (defaults to the name)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List trees visible to you",
		RunE:  runTreeList,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a tree's record counts",
		RunE:  runTreeStats,
	}
	statsCmd.Flags().StringVar(&gedcomTree, "tree", "", "Tree id (required)")
	statsCmd.MarkFlagRequired("tree")

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Upload a GEDCOM file into a tree",
		Long:  "Upload a GEDCOM file into a tree. Reads from stdin when no file is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGedcomImport,
	}
	importCmd.Flags().StringVar(&gedcomTree, "tree", "", "Tree id (required)")
	importCmd.MarkFlagRequired("tree")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a tree to object storage",
		RunE:  runGedcomExport,
	}
	exportCmd.Flags().StringVar(&gedcomTree, "tree", "", "Tree id (required)")
	exportCmd.MarkFlagRequired("tree")

	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download a tree as GEDCOM text",
		RunE:  runGedcomDownload,
	}
	downloadCmd.Flags().StringVar(&gedcomTree, "tree", "", "Tree id (required)")
	downloadCmd.Flags().StringVarP(&gedcomOutput, "output", "O", "", "Write to file instead of stdout")
	downloadCmd.MarkFlagRequired("tree")

	gedcomCmd.AddCommand(createCmd, listCmd, statsCmd, importCmd, exportCmd, downloadCmd)
	return gedcomCmd
}

func runTreeCreate(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	title := treeTitle
	if title == "" {
		title = args[0]
	}
	tree, err := cliCtx.Client.Trees().Create(ctx, args[0], title)
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, tree)
	}
	PrintSuccess(cmd, fmt.Sprintf("created tree %q with id %d", tree.Name, tree.ID))
	return nil
}

// treeList adapts trees for table output.
type treeList []client.Tree

func (tl treeList) TableHeaders() []string {
	return []string{"ID", "NAME", "TITLE", "IMPORT STATE", "CREATED"}
}

func (tl treeList) TableRows() [][]string {
	rows := make([][]string, 0, len(tl))
	for _, t := range tl {
		rows = append(rows, []string{
			fmt.Sprintf("%d", t.ID),
			t.Name,
			t.Title,
			t.ImportState,
			t.CreatedAt.Format("2006-01-02"),
		})
	}
	return rows
}

func runTreeList(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	trees, err := cliCtx.Client.Trees().List(ctx)
	if err != nil {
		return err
	}
	return PrintResult(cmd, treeList(trees))
}

func runTreeStats(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(gedcomTree)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	stats, err := cliCtx.Client.Trees().Stats(ctx, treeID)
	if err != nil {
		return err
	}
	return PrintResult(cmd, stats)
}

func runGedcomImport(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(gedcomTree)
	if err != nil {
		return err
	}

	var input io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open GEDCOM file: %w", err)
		}
		defer f.Close()
		input = f
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	result, err := cliCtx.Client.Trees().ImportGedcom(ctx, treeID, input)
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, result)
	}
	PrintSuccess(cmd, fmt.Sprintf("imported %d records into tree %d (%d remapped, %d skipped)",
		result.Total, result.TreeID, result.Remapped, result.Skipped))
	return nil
}

func runGedcomExport(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(gedcomTree)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	result, err := cliCtx.Client.Trees().ExportGedcom(ctx, treeID)
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, result)
	}
	PrintSuccess(cmd, fmt.Sprintf("exported %d records (%d bytes) to %s", result.Records, result.Bytes, result.Key))
	return nil
}

func runGedcomDownload(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(gedcomTree)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	data, err := cliCtx.Client.Trees().DownloadGedcom(ctx, treeID)
	if err != nil {
		return err
	}
	if gedcomOutput != "" {
		if err := os.WriteFile(gedcomOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write GEDCOM file: %w", err)
		}
		PrintSuccess(cmd, fmt.Sprintf("wrote %d bytes to %s", len(data), gedcomOutput))
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
