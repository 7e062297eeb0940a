/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jjudge-oj/judgeserver/internal/db"
	"github.com/jjudge-oj/judgeserver/internal/server"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/jjudge-oj/judgeserver/internal/store"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var problemImportFlags struct {
	bundle      string
	title       string
	description string
	difficulty  string
	timeLimit   int64
	memoryLimit int64
	tags        string
	visible     string
	author      int
}

// problemCmd represents the problem command.
var problemCmd = &cobra.Command{
	Use:   "problem",
	Short: "Manage problems",
}

var problemImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a problem from a testcase bundle",
	Long: `Uploads a tar.gz bundle of <n>.in/<n>.out files to object storage and
registers a problem that references it. Usage:

	judgeserver problem import --bundle sum.tar.gz --title "A + B" --visible 1,2
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := problemImportFlags
		if f.bundle == "" || strings.TrimSpace(f.title) == "" {
			return errors.New("--bundle and --title are required")
		}
		visible, err := parseOrderList(f.visible)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(f.bundle)
		if err != nil {
			return fmt.Errorf("read bundle: %w", err)
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

		objects, err := server.OpenStorage(cmd.Context(), cfg.Storage, log)
		if err != nil {
			return err
		}
		if objects == nil {
			return services.ErrStorageDisabled
		}

		problems := services.NewProblemService(store.NewProblemRepository(conn), objects, log)
		problem, err := problems.Import(cmd.Context(), types.Problem{
			AuthorID:    f.author,
			Title:       strings.TrimSpace(f.title),
			Description: f.description,
			Difficulty:  f.difficulty,
			TimeLimit:   f.timeLimit,
			MemoryLimit: f.memoryLimit,
			Tags:        splitList(f.tags),
		}, filepath.Base(f.bundle), data, visible)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"problem_id": problem.ID,
			"testcases":  len(problem.Testcases),
		}).Info("problem created")
		fmt.Fprintln(cmd.OutOrStdout(), problem.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(problemCmd)
	problemCmd.AddCommand(problemImportCmd)

	flags := problemImportCmd.Flags()
	flags.StringVar(&problemImportFlags.bundle, "bundle", "", "path to the tar.gz testcase bundle")
	flags.StringVar(&problemImportFlags.title, "title", "", "problem title")
	flags.StringVar(&problemImportFlags.description, "description", "", "problem statement")
	flags.StringVar(&problemImportFlags.difficulty, "difficulty", "", "difficulty label")
	flags.Int64Var(&problemImportFlags.timeLimit, "time-limit", 0, "time limit in milliseconds (0 uses the default)")
	flags.Int64Var(&problemImportFlags.memoryLimit, "memory-limit", 0, "memory limit in megabytes (0 uses the default)")
	flags.StringVar(&problemImportFlags.tags, "tags", "", "comma-separated tags")
	flags.StringVar(&problemImportFlags.visible, "visible", "", "comma-separated orders of sample testcases, e.g. 1,2")
	flags.IntVar(&problemImportFlags.author, "author", 0, "user id of the problem author")
}

func parseOrderList(raw string) ([]int, error) {
	var orders []int
	for _, part := range splitList(raw) {
		order, err := strconv.Atoi(part)
		if err != nil || order < 1 {
			return nil, fmt.Errorf("invalid testcase order %q", part)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
