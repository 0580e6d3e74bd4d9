package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mirono/webtrees/pkg/client"
)

var (
	searchTree      string
	searchTerm      string
	searchSurname   string
	searchSex       string
	searchBirthFrom int
	searchBirthTo   int
	searchPage      int
	searchPageSize  int
	surnameLimit    int
)

// NewSearchCmd creates the search command backed by the full-text index.
func NewSearchCmd() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search a tree's records",
		Long:  "Full-text search over individuals and sources, surname frequency lists and index maintenance.",
	}
	searchCmd.PersistentFlags().StringVar(&searchTree, "tree", "", "Tree id (required)")
	searchCmd.MarkPersistentFlagRequired("tree")

	individualsCmd := &cobra.Command{
		Use:   "individuals [term]",
		Short: "Search individuals by name, place and dates",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearchIndividuals,
	}
	individualsCmd.Flags().StringVar(&searchSurname, "surname", "", "Exact surname filter")
	individualsCmd.Flags().StringVar(&searchSex, "sex", "", "Sex filter: M|F|U")
	individualsCmd.Flags().IntVar(&searchBirthFrom, "birth-from", 0, "Earliest birth year")
	individualsCmd.Flags().IntVar(&searchBirthTo, "birth-to", 0, "Latest birth year")
	individualsCmd.Flags().IntVar(&searchPage, "page", 1, "Page number")
	individualsCmd.Flags().IntVar(&searchPageSize, "page-size", 20, "Results per page")

	sourcesCmd := &cobra.Command{
		Use:   "sources <term>",
		Short: "Search sources by title, author and text",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearchSources,
	}
	sourcesCmd.Flags().IntVar(&searchPage, "page", 1, "Page number")
	sourcesCmd.Flags().IntVar(&searchPageSize, "page-size", 20, "Results per page")

	surnamesCmd := &cobra.Command{
		Use:   "surnames",
		Short: "List the tree's most frequent surnames",
		RunE:  runSearchSurnames,
	}
	surnamesCmd.Flags().IntVar(&surnameLimit, "limit", 50, "Number of surnames")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the tree's search index (manager role)",
		RunE:  runSearchReindex,
	}

	searchCmd.AddCommand(individualsCmd, sourcesCmd, surnamesCmd, reindexCmd)
	return searchCmd
}

// individualHits adapts matches for table output.
type individualHits []client.IndividualHit

func (ih individualHits) TableHeaders() []string {
	return []string{"XREF", "NAME", "SEX", "BORN", "BIRTH PLACE", "DIED"}
}

func (ih individualHits) TableRows() [][]string {
	rows := make([][]string, 0, len(ih))
	for _, hit := range ih {
		doc := hit.Individual
		name := doc.Surname
		if doc.Given != "" {
			name = doc.Given + " " + doc.Surname
		}
		rows = append(rows, []string{
			doc.Xref,
			truncateString(name, 40),
			doc.Sex,
			yearOrBlank(doc.BirthYear),
			truncateString(doc.BirthPlace, 30),
			yearOrBlank(doc.DeathYear),
		})
	}
	return rows
}

func runSearchIndividuals(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(searchTree)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		searchTerm = args[0]
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	results, err := cliCtx.Client.Search().Individuals(ctx, treeID, client.IndividualSearch{
		Term:      searchTerm,
		Surname:   searchSurname,
		Sex:       searchSex,
		BirthFrom: searchBirthFrom,
		BirthTo:   searchBirthTo,
		Page:      client.Pagination{Page: searchPage, PageSize: searchPageSize},
	})
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, results)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d matches in %dms (page %d of %d)\n",
		results.Pagination.Total, results.TookMs, results.Pagination.Page, results.Pagination.TotalPages)
	return PrintResult(cmd, individualHits(results.Hits))
}

// sourceHits adapts matches for table output.
type sourceHits []client.SourceHit

func (sh sourceHits) TableHeaders() []string {
	return []string{"XREF", "TITLE", "AUTHOR", "SCORE"}
}

func (sh sourceHits) TableRows() [][]string {
	rows := make([][]string, 0, len(sh))
	for _, hit := range sh {
		rows = append(rows, []string{
			hit.Source.Xref,
			truncateString(hit.Source.Title, 50),
			truncateString(hit.Source.Author, 30),
			fmt.Sprintf("%.2f", hit.Score),
		})
	}
	return rows
}

func runSearchSources(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(searchTree)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	results, err := cliCtx.Client.Search().Sources(ctx, treeID, args[0],
		client.Pagination{Page: searchPage, PageSize: searchPageSize})
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, results)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d matches in %dms\n", results.Pagination.Total, results.TookMs)
	return PrintResult(cmd, sourceHits(results.Hits))
}

// surnameCounts adapts the frequency list for table output.
type surnameCounts []client.SurnameCount

func (sc surnameCounts) TableHeaders() []string {
	return []string{"SURNAME", "COUNT"}
}

func (sc surnameCounts) TableRows() [][]string {
	rows := make([][]string, 0, len(sc))
	for _, s := range sc {
		rows = append(rows, []string{s.Surname, fmt.Sprintf("%d", s.Count)})
	}
	return rows
}

func runSearchSurnames(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(searchTree)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	counts, err := cliCtx.Client.Search().Surnames(ctx, treeID, surnameLimit)
	if err != nil {
		return err
	}
	return PrintResult(cmd, surnameCounts(counts))
}

func runSearchReindex(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	treeID, err := parseTreeID(searchTree)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	result, err := cliCtx.Client.Search().Reindex(ctx, treeID)
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, result)
	}
	PrintSuccess(cmd, fmt.Sprintf("reindexed tree %d: %d documents indexed, %d failed",
		result.TreeID, result.Indexed, result.Failed))
	return nil
}

func yearOrBlank(year int) string {
	if year == 0 {
		return ""
	}
	return fmt.Sprintf("%d", year)
}
