package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// List returns the snapshots in dir, newest first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read %s: %w", dir, err)
	}

	var snapshots []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Info{
			Path:      filepath.Join(dir, name),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// ApplyRetention removes snapshots beyond the per-tier counts of policy and
// returns how many were removed. Zero tier counts select DefaultRetention.
func ApplyRetention(dir string, policy RetentionPolicy, now time.Time) (int, error) {
	def := DefaultRetention()
	if policy.Hourly <= 0 {
		policy.Hourly = def.Hourly
	}
	if policy.Daily <= 0 {
		policy.Daily = def.Daily
	}
	if policy.Weekly <= 0 {
		policy.Weekly = def.Weekly
	}
	if policy.Monthly <= 0 {
		policy.Monthly = def.Monthly
	}

	snapshots, err := List(dir)
	if err != nil {
		return 0, err
	}

	var (
		tiers    [4][]string
		toDelete []string
	)
	for _, s := range snapshots {
		switch age := now.Sub(s.Timestamp); {
		case age < 24*time.Hour:
			tiers[0] = append(tiers[0], s.Path)
		case age < 7*24*time.Hour:
			tiers[1] = append(tiers[1], s.Path)
		case age < 30*24*time.Hour:
			tiers[2] = append(tiers[2], s.Path)
		case age < 365*24*time.Hour:
			tiers[3] = append(tiers[3], s.Path)
		default:
			toDelete = append(toDelete, s.Path)
		}
	}

	keep := [4]int{policy.Hourly, policy.Daily, policy.Weekly, policy.Monthly}
	for i, tier := range tiers {
		if len(tier) > keep[i] {
			toDelete = append(toDelete, tier[keep[i]:]...)
		}
	}

	removed := 0
	var errs []error
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
