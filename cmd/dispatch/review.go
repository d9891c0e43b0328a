package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record review outcomes for pending pull requests",
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve [issue-number]",
	Short: "Mark the PR for an issue as approved",
	Args:  cobra.ExactArgs(1),
	RunE:  makeReviewRun("/prs/approved", "approved"),
}

var reviewChangesCmd = &cobra.Command{
	Use:   "changes [issue-number]",
	Short: "Mark the PR for an issue as needing changes",
	Args:  cobra.ExactArgs(1),
	RunE:  makeReviewRun("/prs/changes-requested", "changes requested"),
}

var reviewMergedCmd = &cobra.Command{
	Use:   "merged [issue-number]",
	Short: "Mark the PR for an issue as merged",
	Args:  cobra.ExactArgs(1),
	RunE:  makeReviewRun("/prs/merged", "merged"),
}

func init() {
	reviewCmd.AddCommand(reviewApproveCmd, reviewChangesCmd, reviewMergedCmd)
}

func makeReviewRun(path, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		issue, err := strconv.Atoi(args[0])
		if err != nil || issue <= 0 {
			return fmt.Errorf("invalid issue number: %s", args[0])
		}

		if err := apiPost(path, map[string]int{"issue_number": issue}, nil); err != nil {
			return err
		}
		fmt.Printf("Recorded: issue #%d %s\n", issue, verb)
		return nil
	}
}
