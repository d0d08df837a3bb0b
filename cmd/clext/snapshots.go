package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/clext/internal/gpu"
	"github.com/cwbudde/clext/internal/store"
	"github.com/spf13/cobra"
)

var (
	snapshotDataDir string
	keepLast        int
	olderThanDays   int
	forceClean      bool
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage device inventory snapshots",
	Long: `Save, inspect and clean point-in-time records of the OpenCL platforms
and devices on this host.`,
}

var saveSnapshotCmd = &cobra.Command{
	Use:   "save",
	Short: "Enumerate devices and save a snapshot",
	RunE:  runSaveSnapshot,
}

var listSnapshotsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved snapshots",
	Long:  `Display all snapshots with their ID, timestamp, host, device counts and size on disk.`,
	RunE:  runListSnapshots,
}

var showSnapshotCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowSnapshot,
}

var cleanSnapshotsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old snapshots",
	Long: `Delete old snapshots based on retention policy.
You can keep only the newest N snapshots or delete snapshots older than N days.`,
	RunE: runCleanSnapshots,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)

	snapshotsCmd.AddCommand(saveSnapshotCmd)
	snapshotsCmd.AddCommand(listSnapshotsCmd)
	snapshotsCmd.AddCommand(showSnapshotCmd)
	snapshotsCmd.AddCommand(cleanSnapshotsCmd)

	snapshotsCmd.PersistentFlags().StringVar(&snapshotDataDir, "data-dir", "./data", "Base directory for snapshot storage")

	cleanSnapshotsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N snapshots (0 = keep all)")
	cleanSnapshotsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete snapshots older than N days (0 = no age limit)")
	cleanSnapshotsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runSaveSnapshot(cmd *cobra.Command, args []string) error {
	snapshotStore, err := store.NewFSStore(snapshotDataDir)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	platforms, err := gpu.EnumeratePlatforms()
	if err != nil {
		return fmt.Errorf("failed to enumerate platforms: %w", err)
	}

	snapshot := store.NewSnapshot(platforms)
	if err := snapshotStore.SaveSnapshot(snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	info := snapshot.ToInfo()
	slog.Info("Saved snapshot", "id", info.ID, "platforms", info.Platforms, "devices", info.Devices)
	fmt.Println(info.ID)
	return nil
}

func runListSnapshots(cmd *cobra.Command, args []string) error {
	snapshotStore, err := store.NewFSStore(snapshotDataDir)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	infos, err := snapshotStore.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No snapshots found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tHOST\tPLATFORMS\tDEVICES\tPCIE\tSIZE")
	fmt.Fprintln(w, "--\t---------\t----\t---------\t-------\t----\t----")

	for _, info := range infos {
		size, err := getDirSize(snapshotStore.SnapshotDir(info.ID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Hostname,
			info.Platforms,
			info.Devices,
			info.WithPCIe,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal snapshots: %d\n", len(infos))
	return nil
}

func runShowSnapshot(cmd *cobra.Command, args []string) error {
	snapshotStore, err := store.NewFSStore(snapshotDataDir)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	snapshot, err := snapshotStore.LoadSnapshot(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

func runCleanSnapshots(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	snapshotStore, err := store.NewFSStore(snapshotDataDir)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	infos, err := snapshotStore.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No snapshots to clean.")
		return nil
	}

	toDelete := selectSnapshotsForDeletion(infos, keepLast, olderThanDays, time.Now())

	if len(toDelete) == 0 {
		fmt.Println("No snapshots match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d snapshot(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %d devices)\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Devices,
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := snapshotStore.DeleteSnapshot(info.ID); err != nil {
			slog.Error("Failed to delete snapshot", "id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted snapshot", "id", info.ID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d snapshot(s), %d failed.\n", deleted, failed)
	return nil
}

// selectSnapshotsForDeletion applies the retention policy. A snapshot
// matching both rules is returned once.
func selectSnapshotsForDeletion(infos []store.SnapshotInfo, keepLast int, olderThanDays int, now time.Time) []store.SnapshotInfo {
	var toDelete []store.SnapshotInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.SnapshotInfo, len(infos))
		copy(sorted, infos)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.ID] {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
