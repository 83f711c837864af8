package main

import (
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
)

// budgetCmd creates the budget command group. The working budget lives in
// the CLI session and survives logout; saved budgets need a signed-in user.
func budgetCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "budget",
		Usage: "Build and save budgets",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the working budget",
				Action: func(c *cli.Context) error {
					sid, _, err := e.current()
					if err != nil {
						return outputError(err)
					}
					return outputJSON(ops.ShowBudget(e.scratch, sid))
				},
			},
			{
				Name:  "add",
				Usage: "Add a manual line",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Line name"},
					&cli.StringFlag{Name: "price", Aliases: []string{"p"}, Required: true, Usage: "Unit price"},
					&cli.IntFlag{Name: "quantity", Aliases: []string{"q"}, Value: 1, Usage: "Quantity"},
				},
				Action: func(c *cli.Context) error {
					sid, _, err := e.current()
					if err != nil {
						return outputError(err)
					}
					price, err := flagAmount(c, "price")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.AddBudgetItem(e.scratch, sid, ops.AddBudgetItemInput{
						Name:      c.String("name"),
						UnitPrice: price,
						Quantity:  c.Int("quantity"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "add-plan",
				Usage:     "Add a promotion plan at its final price",
				ArgsUsage: "<promotion-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "plan", Usage: "Plan name (optional when the promotion has one plan)"},
				},
				Action: func(c *cli.Context) error {
					sid, _, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.AddPlanToBudget(c.Context, e.db, e.scratch, sid, ops.AddPlanInput{
						PromotionID: c.Args().First(),
						PlanName:    c.String("plan"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "update",
				Usage:     "Change a line; only the given flags change",
				ArgsUsage: "<index>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Line name"},
					&cli.StringFlag{Name: "price", Aliases: []string{"p"}, Usage: "Unit price"},
					&cli.IntFlag{Name: "quantity", Aliases: []string{"q"}, Usage: "Quantity"},
				},
				Action: func(c *cli.Context) error {
					sid, _, err := e.current()
					if err != nil {
						return outputError(err)
					}
					index, err := argIndex(c)
					if err != nil {
						return outputError(err)
					}
					input := ops.UpdateBudgetItemInput{Index: index}
					if c.IsSet("name") {
						v := c.String("name")
						input.Name = &v
					}
					if c.IsSet("price") {
						price, err := flagAmount(c, "price")
						if err != nil {
							return outputError(err)
						}
						input.UnitPrice = &price
					}
					if c.IsSet("quantity") {
						q := c.Int("quantity")
						input.Quantity = &q
					}
					output, err := ops.UpdateBudgetItem(e.scratch, sid, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a line",
				ArgsUsage: "<index>",
				Action: func(c *cli.Context) error {
					sid, _, err := e.current()
					if err != nil {
						return outputError(err)
					}
					index, err := argIndex(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.RemoveBudgetItem(e.scratch, sid, index)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Empty the working budget",
				Action: func(c *cli.Context) error {
					sid, _, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ClearBudget(e.scratch, sid)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "copy",
				Usage: "Copy the budget quote to the clipboard",
				Action: func(c *cli.Context) error {
					sid, _, err := e.current()
					if err != nil {
						return outputError(err)
					}
					return outputJSON(ops.CopyBudget(e.scratch, sid, e.sink))
				},
			},
			{
				Name:  "save",
				Usage: "Save the working budget",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Budget name (default: dated)"},
					&cli.StringFlag{Name: "id", Usage: "Overwrite one of your saved budgets"},
				},
				Action: func(c *cli.Context) error {
					sid, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.SaveBudget(c.Context, e.db, e.scratch, sid, actor, ops.SaveBudgetInput{
						ID:   c.String("id"),
						Name: c.String("name"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "saved",
				Usage: "List your saved budgets",
				Flags: pageFlags(),
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ListSavedBudgets(c.Context, e.db, e.cfg, actor, ops.ListSavedBudgetsInput{
						Limit:  c.Int("limit"),
						Cursor: c.String("cursor"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "load",
				Usage:     "Append a saved budget to the working budget",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					sid, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.LoadSavedBudget(c.Context, e.db, e.scratch, sid, actor, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete-saved",
				Usage:     "Delete a saved budget",
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
					output, err := ops.DeleteSavedBudget(c.Context, e.db, actor, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}
