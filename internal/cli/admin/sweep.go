package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/procminer/internal/config"
	"github.com/cloo-solutions/procminer/internal/jobs"
	"github.com/spf13/cobra"
)

// SweepCmd removes expired request scratch directories once and exits
func SweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired upload scratch directories",
		Long:  "Remove request directories under the upload dir that are older than the scratch TTL. The server runs the same sweep periodically and skips requests it is still processing; this one-shot sweep cannot see those, so use a TTL longer than any analysis.",
		RunE:  runSweep,
	}

	cmd.Flags().Duration("ttl", 0, "Override PROCMINER_SCRATCH_TTL")

	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ttl := cfg.ScratchTTL
	if override, _ := cmd.Flags().GetDuration("ttl"); override > 0 {
		ttl = override
	}

	removed, err := jobs.NewScratchSweeper(cfg.UploadDir, ttl, nil).Sweep(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries from %s\n", removed, cfg.UploadDir)
	return nil
}
