// research.go implements the "researchmeshd research" one-shot command.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/researchmesh"
	"github.com/hupe1980/researchmesh/session"
)

var researchMaxIterations int

var researchCmd = &cobra.Command{
	Use:   "research <theme>",
	Short: "Run a single research session to completion and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	mesh, err := researchmesh.New(cfg, func(o *researchmesh.Options) {
		o.Logger = logger
	})
	if err != nil {
		return err
	}
	defer mesh.Close()

	theme := strings.Join(args, " ")
	manager := mesh.Manager()

	id, err := manager.Create(theme, researchMaxIterations, false)
	if err != nil {
		return err
	}
	logger.Info("research started", "session_id", id, "theme", theme)

	result, err := waitForResult(cmd.Context(), manager, id)
	if err != nil {
		return err
	}
	if result.Status == session.StatusFailed {
		return fmt.Errorf("research failed: %s", result.Error)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Draft)
	return nil
}

func waitForResult(ctx context.Context, manager *session.Manager, id string) (*session.Result, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			snapshot, err := manager.GetStatus(id)
			if err != nil {
				return nil, err
			}
			if !snapshot.Status.Terminal() {
				continue
			}
			return manager.GetResult(id)
		}
	}
}

func init() {
	researchCmd.Flags().IntVar(&researchMaxIterations, "max-iterations", 0, "Iteration cap for this session (0 uses the configured default)")
	rootCmd.AddCommand(researchCmd)
}
