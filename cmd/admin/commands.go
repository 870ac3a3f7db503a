package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/assiworks/opening-registration/internal/client"
	"github.com/assiworks/opening-registration/internal/dashboard"
	"github.com/assiworks/opening-registration/internal/registrations"
)

var (
	listKeyword string
	listStatus  string
	listLimit   int

	registerInput registrations.RegisterInput
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registrations, newest first",
	Long: `List registrations, newest first.

Examples:
  regadmin list
  regadmin list --keyword microsoft --status active`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		rows, err := c.ListRegistrations(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		session := dashboard.NewSession(adminToken)
		session.SetRows(rows)
		session.SetFilter(dashboard.Filter{Keyword: listKeyword, Status: dashboard.ParseStatus(listStatus)})

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tAFFILIATION\tPOSITION\tSTATUS\tCREATED")
		for _, r := range session.Visible() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Name, r.Email, r.Affiliation, r.Position, r.Status(), r.CreatedAt.Local().Format(time.DateTime))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d of %d registrations\n", len(session.Visible()), len(rows))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard analytics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		s, err := c.Summary(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "total\t%d\nactive\t%d (%d%%)\ncancelled\t%d (%d%%)\ntoday\t%d\n\n",
			s.Aggregates.Total,
			s.Aggregates.Active, s.Breakdown.ActivePercent,
			s.Aggregates.Cancelled, s.Breakdown.CancelledPercent,
			s.Aggregates.Today)
		fmt.Fprintln(w, "DAY\tCOUNT")
		for _, p := range s.Daily {
			fmt.Fprintf(w, "%s\t%s\n", p.Label, bar(p.Count))
		}
		fmt.Fprintln(w, "\nAFFILIATION\tCOUNT")
		for _, a := range s.TopAffiliations {
			fmt.Fprintf(w, "%s\t%d\n", a.Label, a.Count)
		}
		return w.Flush()
	},
}

func bar(n int) string {
	return fmt.Sprintf("%-3d %s", n, strings.Repeat("#", n))
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Hard-delete registrations by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.DeleteRegistrations(cmd.Context(), args)
		if res != nil {
			for _, id := range res.DeletedIDs {
				fmt.Println("deleted", id)
			}
			for _, id := range res.InvalidIDs {
				fmt.Println("invalid", id)
			}
		}
		return err
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Submit a registration as the public form would",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(client.WithProgress(progress))
		if err != nil {
			return err
		}
		res, err := c.Register(cmd.Context(), registerInput)
		if err != nil {
			return err
		}
		fmt.Println("id          ", res.ID)
		fmt.Println("cancel link ", res.CancelLink)
		switch {
		case res.Email.Success:
			fmt.Println("email        sent via", res.Email.Sender)
		case res.Email.Queued:
			fmt.Println("email        failed, queued for retry")
		default:
			fmt.Println("email        failed:", res.Email.Error)
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <token>",
	Short: "Cancel a registration by its cancel token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(client.WithProgress(progress))
		if err != nil {
			return err
		}
		res, err := c.Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if res.AlreadyCancelled {
			fmt.Println("already cancelled at", res.CancelledAt)
			return nil
		}
		fmt.Println("cancelled at", res.CancelledAt)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <token>",
	Short: "Show whether a cancel token is still active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.CancelStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if res.Cancelled && res.CancelledAt != nil {
			fmt.Println("cancelled at", *res.CancelledAt)
			return nil
		}
		fmt.Println("active")
		return nil
	},
}

var seatsCmd = &cobra.Command{
	Use:   "seats",
	Short: "Show remaining capacity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		s, err := c.SeatStatus(cmd.Context())
		if err != nil {
			return err
		}
		state := "open"
		if s.Full {
			state = "full"
		}
		fmt.Printf("%d/%d active, %d remaining (%s)\n", s.ActiveCount, s.Capacity, s.Remaining, state)
		return nil
	},
}

var emailLogsCmd = &cobra.Command{
	Use:   "email-logs",
	Short: "List recent notification attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		logs, err := c.EmailLogs(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tRECIPIENT\tSTATUS\tATTEMPT\tSENDER\tERROR")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				l.CreatedAt.Local().Format(time.DateTime), l.RecipientEmail, l.Status, l.Attempt, l.Sender, l.ErrorMessage)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVarP(&listKeyword, "keyword", "k", "", "match name, email, affiliation or position")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "all", "all, active or cancelled")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "max rows to load (server caps at 200)")
	emailLogsCmd.Flags().IntVar(&listLimit, "limit", 0, "max rows to load (server caps at 200)")

	registerCmd.Flags().StringVar(&registerInput.Name, "name", "", "attendee name")
	registerCmd.Flags().StringVar(&registerInput.Email, "email", "", "attendee email")
	registerCmd.Flags().StringVar(&registerInput.Affiliation, "affiliation", "", "company or organization")
	registerCmd.Flags().StringVar(&registerInput.Position, "position", "", "job title")
	registerCmd.Flags().StringVar(&registerInput.Note, "note", "", "free-form note")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(listCmd, statsCmd, deleteCmd, registerCmd, cancelCmd, statusCmd, seatsCmd, emailLogsCmd)
}
