// Command undoctl inspects and manipulates the on-disk history persisted
// by an UndoableSpace root: exporting and importing savefiles, running
// undo/redo steps, and printing telemetry, all against the same journal
// files the library writes during normal operation.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ChristofferGreen/PathSpace-sub002/history"
	"github.com/ChristofferGreen/PathSpace-sub002/pathspace"
)

var (
	rootFlag = &cli.StringFlag{
		Name:     "root",
		Usage:    "history root path, e.g. /documents/draft",
		Required: true,
	}
	persistenceRootFlag = &cli.StringFlag{
		Name:  "persistence-root",
		Usage: "base directory history files are stored under",
	}
	namespaceFlag = &cli.StringFlag{
		Name:  "namespace",
		Usage: "persistence namespace the root was enabled under",
		Value: "default",
	}
	journalModeFlag = &cli.BoolFlag{
		Name:  "journal",
		Usage: "use the journal-mode engine instead of snapshot mode",
	}
	fileFlag = &cli.StringFlag{
		Name:     "file",
		Usage:    "savefile path",
		Required: true,
	}
	fsyncFlag = &cli.BoolFlag{
		Name:  "fsync",
		Usage: "fsync the savefile before returning",
		Value: true,
	}
	applyOptionsFlag = &cli.BoolFlag{
		Name:  "apply-options",
		Usage: "overwrite the root's retention options with the savefile's",
	}
	stepsFlag = &cli.IntFlag{
		Name:  "steps",
		Usage: "number of undo/redo steps to perform",
		Value: 1,
	}
)

func openRoot(c *cli.Context) (*history.UndoableSpace, error) {
	us := history.NewUndoableSpace(pathspace.NewSpace(), history.Options{})
	opts := history.Options{
		UseMutationJournal:     c.Bool(journalModeFlag.Name),
		PersistHistory:         true,
		PersistenceRoot:        c.String(persistenceRootFlag.Name),
		PersistenceNamespace:   c.String(namespaceFlag.Name),
		RestoreFromPersistence: true,
	}
	if err := us.EnableHistory(c.String(rootFlag.Name), opts); err != nil {
		return nil, err
	}
	return us, nil
}

func statsCommand(c *cli.Context) error {
	us, err := openRoot(c)
	if err != nil {
		return err
	}
	stats, err := us.GetHistoryStats(c.String(rootFlag.Name))
	if err != nil {
		return err
	}
	fmt.Printf("undo=%d redo=%d bytesTotal=%d diskEntries=%d unsupported=%d\n",
		stats.Counts.Undo, stats.Counts.Redo, stats.Bytes.Total, stats.Counts.DiskEntries, stats.Unsupported.Total)
	return nil
}

func undoCommand(c *cli.Context) error {
	us, err := openRoot(c)
	if err != nil {
		return err
	}
	return us.Undo(c.String(rootFlag.Name), c.Int(stepsFlag.Name))
}

func redoCommand(c *cli.Context) error {
	us, err := openRoot(c)
	if err != nil {
		return err
	}
	return us.Redo(c.String(rootFlag.Name), c.Int(stepsFlag.Name))
}

func gcCommand(c *cli.Context) error {
	us, err := openRoot(c)
	if err != nil {
		return err
	}
	stats, err := us.TrimHistory(c.String(rootFlag.Name), nil)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d entries, %d bytes\n", stats.EntriesRemoved, stats.BytesRemoved)
	return nil
}

func exportCommand(c *cli.Context) error {
	us, err := openRoot(c)
	if err != nil {
		return err
	}
	return us.ExportHistorySavefile(c.String(rootFlag.Name), c.String(fileFlag.Name), c.Bool(fsyncFlag.Name))
}

func importCommand(c *cli.Context) error {
	us, err := openRoot(c)
	if err != nil {
		return err
	}
	return us.ImportHistorySavefile(c.String(rootFlag.Name), c.String(fileFlag.Name), c.Bool(applyOptionsFlag.Name))
}

func main() {
	app := &cli.App{
		Name:  "undoctl",
		Usage: "inspect and manipulate persisted undo/redo history",
		Flags: []cli.Flag{rootFlag, persistenceRootFlag, namespaceFlag, journalModeFlag},
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "print telemetry for a history root",
				Action: statsCommand,
			},
			{
				Name:   "undo",
				Usage:  "step the root backward",
				Flags:  []cli.Flag{stepsFlag},
				Action: undoCommand,
			},
			{
				Name:   "redo",
				Usage:  "step the root forward",
				Flags:  []cli.Flag{stepsFlag},
				Action: redoCommand,
			},
			{
				Name:   "gc",
				Usage:  "remove every undo entry from the root's history",
				Action: gcCommand,
			},
			{
				Name:   "export",
				Usage:  "write the root's current history to a savefile",
				Flags:  []cli.Flag{fileFlag, fsyncFlag},
				Action: exportCommand,
			},
			{
				Name:   "import",
				Usage:  "replace the root's history from a savefile",
				Flags:  []cli.Flag{fileFlag, applyOptionsFlag},
				Action: importCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
