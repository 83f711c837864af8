package main

import (
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
)

// noteCmd creates the note command group. Notes belong to the signed-in user.
func noteCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "note",
		Usage: "Manage your notes",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a note (reads content from stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true, Usage: "Note title"},
				},
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					input := ops.StoreNoteInput{Title: c.String("title")}
					if stdinHasData() {
						text, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						input.Content = text
					}
					output, err := ops.StoreNote(c.Context, e.db, actor, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a note",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.GetNote(c.Context, e.db, actor, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "update",
				Usage:     "Update a note (optionally reads content from stdin)",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
				},
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					input := ops.UpdateNoteInput{ID: c.Args().First()}
					if c.IsSet("title") {
						v := c.String("title")
						input.Title = &v
					}
					if stdinHasData() {
						text, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						if text != "" {
							input.Content = &text
						}
					}
					output, err := ops.UpdateNote(c.Context, e.db, actor, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a note",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm the deletion"},
				},
				Action: func(c *cli.Context) error {
					if !c.Bool("yes") {
						return outputError(errors.NewInvalidRequest("deletion needs confirmation, pass --yes"))
					}
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.DeleteNote(c.Context, e.db, actor, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "List notes",
				Flags: append(pageFlags(),
					&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "Sort: createdAt|updatedAt|title"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Filter by keyword"},
				),
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ListNotes(c.Context, e.db, e.cfg, actor, ops.ListNotesInput{
						Sort:   c.String("sort"),
						Limit:  c.Int("limit"),
						Cursor: c.String("cursor"),
						Query:  c.String("query"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "copy",
				Usage:     "Copy a note to the clipboard",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.CopyNote(c.Context, e.db, actor, e.sink, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}
