package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/eldenglass/vfsdiff/compare"
	"github.com/eldenglass/vfsdiff/hashcache"
	"github.com/eldenglass/vfsdiff/scanner"
	"github.com/eldenglass/vfsdiff/scanner/ignore"
)

var scanConfiguration struct {
	ignorePatterns []string
	followSymlinks bool
	verifyHashes   bool
	noVerifyHashes bool
	cacheDir       string
	diffOnly       bool
	jsonOutput     bool
	noColor        bool
	columns        []string
}

var scanCommand = &cobra.Command{
	Use:   "scan LEFT RIGHT",
	Short: "Compare two file hierarchies and report differences",
	Args:  cobra.ExactArgs(2),
	RunE:  scanMain,
}

func init() {
	flags := scanCommand.Flags()
	flags.StringArrayVar(&scanConfiguration.ignorePatterns, "ignore", nil, "gitignore-style pattern to exclude (repeatable)")
	flags.BoolVar(&scanConfiguration.followSymlinks, "follow-symlinks", false, "accepted, but symlinked directories are listed as entries and never descended into")
	flags.BoolVar(&scanConfiguration.verifyHashes, "verify-hashes", false, "verify file contents by hash instead of trusting mtime")
	flags.BoolVar(&scanConfiguration.noVerifyHashes, "no-verify-hashes", false, "trust mtime comparisons, skip hashing (default)")
	flags.StringVar(&scanConfiguration.cacheDir, "cache-dir", "", "override the hash cache directory")
	flags.BoolVar(&scanConfiguration.diffOnly, "diff-only", false, "omit Same entries from JSON and table output (the summary still counts them)")
	flags.BoolVar(&scanConfiguration.jsonOutput, "json", false, "emit the stable JSON report instead of a table")
	flags.BoolVar(&scanConfiguration.noColor, "no-color", false, "disable ANSI color in table output")
	flags.StringArrayVar(&scanConfiguration.columns, "columns", nil, "accepted but has no effect: the table always shows status and path")
}

// exitDifferent is os.Exit's code for "scan completed, differences
// found", per spec §6.
const exitDifferent = 2

func scanMain(command *cobra.Command, arguments []string) error {
	if scanConfiguration.verifyHashes && scanConfiguration.noVerifyHashes {
		return fmt.Errorf("--verify-hashes and --no-verify-hashes are mutually exclusive")
	}

	ignoreSet, err := ignore.ParseLines(joinLines(scanConfiguration.ignorePatterns))
	if err != nil {
		return fmt.Errorf("parsing --ignore patterns: %w", err)
	}

	leftPath, rightPath := arguments[0], arguments[1]
	left, err := openTree(leftPath)
	if err != nil {
		return err
	}
	right, err := openTree(rightPath)
	if err != nil {
		return err
	}

	cacheLocation, err := hashcache.ResolveLocation(scanConfiguration.cacheDir, "")
	if err != nil {
		return fmt.Errorf("resolving hash cache location: %w", err)
	}
	cache, err := hashcache.Open(cacheLocation)
	if err != nil {
		return fmt.Errorf("opening hash cache: %w", err)
	}
	closeCache := func() {
		if err := cache.Persist(); err != nil {
			log.Warnf("hash cache persist failed: %v", err)
		}
		cache.Close()
	}
	defer closeCache()
	attachCache(left, cache)
	attachCache(right, cache)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	scanOpt := scanner.Options{Ignore: ignoreSet, FollowSymlinks: scanConfiguration.followSymlinks}
	leftEntries, err := scanner.Scan(ctx, left.vfs, "", scanOpt)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", leftPath, err)
	}
	rightEntries, err := scanner.Scan(ctx, right.vfs, "", scanOpt)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", rightPath, err)
	}

	verifyHashes := scanConfiguration.verifyHashes
	nodes, err := compare.TwoWay(ctx, left.side, right.side, leftEntries, rightEntries, verifyHashes)
	if err != nil {
		return fmt.Errorf("comparing %s and %s: %w", leftPath, rightPath, err)
	}

	report := buildReport(leftPath, rightPath, nodes, scanConfiguration.diffOnly)
	if scanConfiguration.jsonOutput {
		if err := writeJSON(os.Stdout, report); err != nil {
			return err
		}
	} else {
		writeTable(report, scanConfiguration.noColor)
	}

	if report.Summary.Different > 0 || report.Summary.OrphanLeft > 0 || report.Summary.OrphanRight > 0 {
		closeCache()
		os.Exit(exitDifferent)
	}
	return nil
}

func joinLines(patterns []string) string {
	out := ""
	for i, p := range patterns {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}
