package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kodejudge/kodejudge/pkg/client"
)

// getClient creates an API client from cobra command flags.
func getClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.NewClient(client.Config{BaseURL: server})
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <source-file>",
		Short: "Submit source code for execution",
		Long:  `Submit a source file for execution. Use 'languages' to find language IDs.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit,
	}

	cmd.Flags().IntP("language", "l", 0, "Language ID")
	cmd.Flags().String("stdin", "", "Standard input passed to the program")
	cmd.Flags().String("expected-output", "", "Expected stdout to compare against")
	cmd.Flags().Int("runs", 0, "Number of runs")
	cmd.Flags().BoolP("wait", "w", false, "Wait for the result")
	cmd.MarkFlagRequired("language")

	return cmd
}

func runSubmit(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	languageID, _ := cmd.Flags().GetInt("language")
	wait, _ := cmd.Flags().GetBool("wait")

	req := client.SubmissionRequest{
		SourceCode: string(source),
		LanguageID: languageID,
	}
	if stdin, _ := cmd.Flags().GetString("stdin"); stdin != "" {
		req.Stdin = &stdin
	}
	if expected, _ := cmd.Flags().GetString("expected-output"); expected != "" {
		req.ExpectedOutput = &expected
	}
	if runs, _ := cmd.Flags().GetInt("runs"); runs > 0 {
		req.NumberOfRuns = &runs
	}

	c := getClient(cmd)

	if wait {
		sub, err := c.CreateSubmissionWait(context.Background(), req)
		if err != nil {
			return fmt.Errorf("failed to submit: %w", err)
		}
		printSubmission(sub)
		return nil
	}

	id, err := c.CreateSubmission(context.Background(), req)
	if err != nil {
		return fmt.Errorf("failed to submit: %w", err)
	}

	fmt.Printf("Submission created\n")
	fmt.Printf("ID: %s\n", id)
	return nil
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <submission-id>",
		Short: "Get a submission",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	cmd.Flags().String("fields", "all", "Fields to return (comma-separated, 'all' or 'default')")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	fields, _ := cmd.Flags().GetString("fields")

	sub, err := getClient(cmd).GetSubmission(context.Background(), args[0], fields)
	if err != nil {
		return fmt.Errorf("failed to get submission: %w", err)
	}

	printSubmission(sub)
	return nil
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE:  runList,
	}

	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("page-size", 10, "Page size")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	result, err := getClient(cmd).ListSubmissions(context.Background(), client.ListFilter{
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}

	if len(result.Items) == 0 {
		fmt.Println("No submissions found")
		return nil
	}

	fmt.Printf("%-36s  %-12s  %-4s  %s\n", "ID", "STATUS", "LANG", "CREATED")
	for _, sub := range result.Items {
		created := ""
		if sub.CreatedAt != nil {
			created = sub.CreatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-36s  %-12s  %-4d  %s\n", sub.ID, sub.Status, sub.LanguageID, created)
	}
	fmt.Printf("Page %d of %d (%d submissions)\n", result.CurrentPage, result.TotalPages, result.TotalItems)

	return nil
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <submission-id>",
		Short: "Delete a submission",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := getClient(cmd).DeleteSubmission(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}

	fmt.Printf("Submission %s deleted\n", args[0])
	return nil
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		RunE:  runLanguages,
	}
}

func runLanguages(cmd *cobra.Command, args []string) error {
	langs, err := getClient(cmd).ListLanguages(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list languages: %w", err)
	}

	fmt.Printf("%-4s  %-10s  %s\n", "ID", "NAME", "VERSION")
	for _, lang := range langs {
		fmt.Printf("%-4d  %-10s  %s\n", lang.ID, lang.Name, lang.Version)
	}
	return nil
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show system information",
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	info, err := getClient(cmd).Info(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get system info: %w", err)
	}

	fmt.Printf("API version: %s\n", info.APIVersion)
	fmt.Printf("Go version: %s\n", info.GoVersion)
	fmt.Printf("Environment: %s\n", info.Environment)
	fmt.Printf("Uptime: %.0fs\n", info.UptimeSeconds)
	fmt.Printf("Languages: %d\n", info.SupportedLanguagesCount)
	fmt.Printf("Submissions: %d\n", info.TotalSubmissions)
	return nil
}

func printSubmission(sub *client.Submission) {
	fmt.Printf("ID: %s\n", sub.ID)
	fmt.Printf("Status: %s\n", sub.Status)
	if sub.Language != nil {
		fmt.Printf("Language: %s %s\n", sub.Language.Name, sub.Language.Version)
	}
	if sub.CompileOutput != nil && *sub.CompileOutput != "" {
		fmt.Printf("Compile output:\n%s\n", *sub.CompileOutput)
	}
	if sub.Stdout != nil && *sub.Stdout != "" {
		fmt.Printf("Stdout:\n%s\n", *sub.Stdout)
	}
	if sub.Stderr != nil && *sub.Stderr != "" {
		fmt.Printf("Stderr:\n%s\n", *sub.Stderr)
	}
	if len(sub.Meta) > 0 {
		keys := make([]string, 0, len(sub.Meta))
		for k := range sub.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Println("Meta:")
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, sub.Meta[k])
		}
	}
}
