package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Nysah1997/qw/internal/config"
	"github.com/Nysah1997/qw/internal/credits"
	"github.com/Nysah1997/qw/internal/roles"
	"github.com/Nysah1997/qw/internal/schedule"
	"github.com/Nysah1997/qw/internal/storage"
	"github.com/Nysah1997/qw/internal/tracker"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Inspect tracking state directly from storage",
	Long:  `Inspect a user's tracking record, role limits, and milestone state without going through the running server.`,
}

var checkUserCmd = &cobra.Command{
	Use:   "user USER_ID",
	Short: "Show a user's tracking record and limits",
	Example: `  qw -c config.yaml check user 1097603852416317513
  qw check user 1097603852416317513`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckUser,
}

func init() {
	checkCmd.AddCommand(checkUserCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckUser(cmd *cobra.Command, args []string) error {
	userID := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	trk := tracker.New(store.Records(), tracker.RealClock{}, logger)
	lookup := roles.NewMembership(cfg.Roles.GoldUsers, cfg.Roles.ExtendedUsers)

	record, err := trk.Get(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	role, err := lookup.RoleType(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("failed to resolve role: %w", err)
	}
	extended, err := lookup.HasExtendedLimit(cmd.Context(), userID)
	if err != nil {
		return fmt.Errorf("failed to resolve privileges: %w", err)
	}

	capHours := cfg.Limits.StandardHours
	if extended {
		capHours = cfg.Limits.ExtendedHours
	} else if role == roles.TypeGold {
		capHours = cfg.Limits.GoldHours
	}

	autoStart, err := schedule.New(trk, nil, cfg.Schedule.AutoStartTime, cfg.Schedule.Timezone, logger)
	if err != nil {
		return fmt.Errorf("failed to build schedule: %w", err)
	}

	printUserResult(userID, record, trk, role, extended, capHours, autoStart.NextRun(time.Now()))
	return nil
}

// printUserResult prints the user check result with colors
func printUserResult(userID string, record *storage.TimeRecord, trk *tracker.Tracker, role roles.Type, extended bool, capHours int, nextRun time.Time) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("TRACKING RECORD CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("User ID:    %s\n", userID)
	fmt.Printf("Role:       %s", role)
	if extended {
		fmt.Print(" (extended limit)")
	}
	fmt.Println()
	fmt.Printf("Hour cap:   %d\n", capHours)
	fmt.Printf("Next auto-start: %s\n", nextRun.Format("2006-01-02 15:04 MST"))
	fmt.Println()

	if record == nil {
		cyan.Print("State:      ")
		red.Println("NOT TRACKED")
		fmt.Println("            → No record exists for this user")
		fmt.Println()
		cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		return
	}

	total := record.AccumulatedSeconds + trk.OpenInterval(record)

	fmt.Printf("Name:       %s\n", record.Name)
	fmt.Printf("Total:      %s\n", tracker.FormatSeconds(total))
	fmt.Printf("Credits:    %d\n", credits.Calculate(total, role))
	fmt.Printf("Pauses:     %d\n", record.PauseCount)
	if len(record.NotifiedMilestones) > 0 {
		fmt.Printf("Milestones: %v\n", record.NotifiedMilestones)
	}
	fmt.Println()

	cyan.Print("State:      ")
	switch {
	case record.Paused:
		yellow.Println("PAUSED")
		fmt.Println("            → Accumulated time is frozen")
		fmt.Println("            → Resume reopens the session")
	case record.Active:
		green.Println("RUNNING")
		fmt.Println("            → Elapsed time is accruing")
	case record.PreRegistered():
		yellow.Println("PRE-REGISTERED")
		fmt.Println("            → Will be started by the scheduler")
	default:
		fmt.Println("STOPPED")
		fmt.Println("            → Accumulated time is retained, nothing accruing")
	}

	if record.MilestoneCompleted {
		green.Println("\n            ✔ Milestone goal completed")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
