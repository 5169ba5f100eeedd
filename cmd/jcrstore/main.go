// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/cfgstruct"
	"storj.io/common/errs2"
	"storj.io/common/fpath"
	"storj.io/common/process"
	"storj.io/jcrstore/itemdata"
	"storj.io/jcrstore/mongostore"
	"storj.io/jcrstore/valuestorage"

	_ "storj.io/jcrstore/private/version" // This attaches version information during release builds.
)

var (
	rootCmd = &cobra.Command{
		Use:   "jcrstore",
		Short: "Workspace storage maintenance",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Reclaim orphaned values until interrupted",
		RunE:  cmdRun,
	}
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Verify that every external value exists",
		RunE:  cmdCheck,
	}
	dumpCmd = &cobra.Command{
		Use:   "dump <file>",
		Short: "Write every document of the workspace to a file",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdDump,
	}
	restoreCmd = &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the workspace with the documents of a dump",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdRestore,
	}
	cleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Remove every document and value of the workspace",
		RunE:  cmdClean,
	}
	confDir string
	repair  bool

	runCfg   Config
	setupCfg Config
)

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("jcrstore configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	if _, err := valuestorage.ParseDefinitions(setupCfg.ValueStorages); err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	env, err := openEnvironment(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	if err := env.container.DeleteLockProperties(ctx); err != nil {
		return errs.New("Error removing lock properties: %+v", err)
	}

	nodes, err := env.container.NodesCount(ctx)
	if err != nil {
		return err
	}
	log.Info("workspace opened",
		zap.String("workspace", env.container.Name()),
		zap.Int64("nodes", nodes),
		zap.Int("pending orphans", env.reclaimer.Len()))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return env.reclaimer.Run(ctx)
	})
	if err := group.Wait(); err != nil && !errs2.IsCanceled(err) {
		return err
	}
	return nil
}

func cmdCheck(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	env, err := openEnvironment(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	var checked, missing, repaired int
	err = env.container.ExternalValues(ctx, func(ctx context.Context, value mongostore.ExternalValue) error {
		checked++
		storage, err := env.provider.Storage(value.StorageID)
		if err != nil {
			return err
		}

		err = storage.Check(ctx, value.PropertyID, value.OrderNumber)
		if err == nil {
			return nil
		}
		if !itemdata.ErrValueNotFound.Has(err) {
			return err
		}

		missing++
		log.Warn("value not found",
			zap.String("property", value.PropertyID),
			zap.Int("order", value.OrderNumber),
			zap.String("storage", value.StorageID))
		if !repair {
			return nil
		}
		if err := storage.Repair(ctx, value.PropertyID, value.OrderNumber); err != nil {
			return err
		}
		repaired++
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("check finished", zap.Int("checked", checked), zap.Int("missing", missing), zap.Int("repaired", repaired))
	if missing > repaired {
		return errs.New("%d values are missing", missing-repaired)
	}
	return nil
}

func cmdDump(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	env, err := openEnvironment(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	file, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, file.Close()) }()

	_, err = env.container.Dump(ctx, file)
	return err
}

func cmdRestore(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	env, err := openEnvironment(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, file.Close()) }()

	_, err = env.container.Restore(ctx, file)
	return err
}

func cmdClean(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	env, err := openEnvironment(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	if err := env.container.Clean(ctx); err != nil {
		return err
	}
	for _, id := range env.provider.IDs() {
		storage, err := env.provider.Storage(id)
		if err != nil {
			return err
		}
		if err := storage.Clean(ctx); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	defaultConfDir := fpath.ApplicationDir("storj", "jcrstore")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for jcrstore configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(cleanCmd)
	checkCmd.Flags().BoolVar(&repair, "repair", false, "replace missing values with empty content")
	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(checkCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(dumpCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(restoreCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(cleanCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
}

func main() {
	logger, _, _ := process.NewLogger("jcrstore")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
