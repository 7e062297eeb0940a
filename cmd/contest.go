/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jjudge-oj/judgeserver/internal/db"
	"github.com/jjudge-oj/judgeserver/internal/scoring"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/jjudge-oj/judgeserver/internal/store"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/spf13/cobra"
)

var contestCreateFlags struct {
	title           string
	description     string
	start           string
	duration        time.Duration
	public          bool
	maxParticipants int
	problems        string
	createdBy       int
}

// contestCmd represents the contest command.
var contestCmd = &cobra.Command{
	Use:   "contest",
	Short: "Manage contests",
}

var contestCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a contest",
	Long: `Creates a contest over existing problems. Problems are given as
id[:points] pairs in contest order. Usage:

	judgeserver contest create --title "Round 1" --start 2026-05-01T18:00:00Z --duration 2h --problems 3:100,4:200 --public
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := contestCreateFlags
		if strings.TrimSpace(f.title) == "" || f.start == "" {
			return errors.New("--title and --start are required")
		}
		start, err := time.Parse(time.RFC3339, f.start)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		problems, err := parseContestProblems(f.problems)
		if err != nil {
			return err
		}

		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		problemService := services.NewProblemService(store.NewProblemRepository(conn), nil, log)
		submissionService := services.NewSubmissionService(store.NewSubmissionRepository(conn), problemService, nil, nil, log, 0)
		contestService := services.NewContestService(store.NewContestRepository(conn), submissionService, scoring.Fixed{}, log)

		contest, err := contestService.Create(cmd.Context(), types.Contest{
			Title:           strings.TrimSpace(f.title),
			Description:     f.description,
			StartTime:       start,
			EndTime:         start.Add(f.duration),
			CreatedBy:       f.createdBy,
			IsPublic:        f.public,
			MaxParticipants: f.maxParticipants,
			Problems:        problems,
		})
		if err != nil {
			return err
		}
		log.WithField("contest_id", contest.ID).Info("contest created")
		fmt.Fprintln(cmd.OutOrStdout(), contest.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contestCmd)
	contestCmd.AddCommand(contestCreateCmd)

	flags := contestCreateCmd.Flags()
	flags.StringVar(&contestCreateFlags.title, "title", "", "contest title")
	flags.StringVar(&contestCreateFlags.description, "description", "", "contest description")
	flags.StringVar(&contestCreateFlags.start, "start", "", "start time (RFC 3339)")
	flags.DurationVar(&contestCreateFlags.duration, "duration", 2*time.Hour, "contest length")
	flags.BoolVar(&contestCreateFlags.public, "public", false, "allow self-registration")
	flags.IntVar(&contestCreateFlags.maxParticipants, "max-participants", 0, "registration cap (0 is unlimited)")
	flags.StringVar(&contestCreateFlags.problems, "problems", "", "comma-separated id[:points] list")
	flags.IntVar(&contestCreateFlags.createdBy, "created-by", 0, "user id of the contest creator")
}

func parseContestProblems(raw string) ([]types.ContestProblem, error) {
	var problems []types.ContestProblem
	for i, part := range splitList(raw) {
		idPart, pointsPart, hasPoints := strings.Cut(part, ":")
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid problem id %q", idPart)
		}
		cp := types.ContestProblem{ProblemID: id, Order: i + 1}
		if hasPoints {
			cp.Points, err = strconv.Atoi(strings.TrimSpace(pointsPart))
			if err != nil || cp.Points < 1 {
				return nil, fmt.Errorf("invalid points for problem %d", id)
			}
		}
		problems = append(problems, cp)
	}
	return problems, nil
}
