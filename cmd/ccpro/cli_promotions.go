package main

import (
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/ops"
)

// promoCmd creates the promo command group.
func promoCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "promo",
		Usage: "Browse and manage promotions",
		Subcommands: []*cli.Command{
			promoListCmd(e),
			promoShowCmd(e),
			promoAddCmd(e),
			promoUpdateCmd(e),
			promoDeleteCmd(e),
			promoCopyCmd(e),
		},
	}
}

// promotionFlags are shared by promo add and promo update.
func promotionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Promotion title"},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Description (or pipe via stdin)"},
		&cli.StringFlag{Name: "type", Usage: "Item type: plan|text|image|price"},
		&cli.StringFlag{Name: "image-url", Usage: "Image URL (image type)"},
		&cli.StringFlag{Name: "price", Usage: "Price (price type)"},
		&cli.StringSliceFlag{Name: "plan", Usage: "Plan as \"name | final [| list [| discount]]\" (repeatable)"},
		&cli.StringSliceFlag{Name: "benefit", Usage: "Benefit as \"title [| description [| duration]]\" (repeatable)"},
	}
}

func promoListCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List promotions, newest first",
		Flags: pageFlags(),
		Action: func(c *cli.Context) error {
			output, err := ops.ListPromotions(c.Context, e.db, e.cfg, ops.ListPromotionsInput{
				Limit:  c.Int("limit"),
				Cursor: c.String("cursor"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func promoShowCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a promotion",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.GetPromotion(c.Context, e.db, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func promoAddCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Create a promotion (admin only)",
		Flags: promotionFlags(),
		Action: func(c *cli.Context) error {
			_, actor, err := e.current()
			if err != nil {
				return outputError(err)
			}

			input := ops.StorePromotionInput{
				Title:       c.String("title"),
				Description: c.String("description"),
				Type:        catalog.ItemType(c.String("type")),
				ImageURL:    c.String("image-url"),
			}
			if input.Description == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				input.Description = text
			}
			if c.IsSet("price") {
				price, err := flagAmount(c, "price")
				if err != nil {
					return outputError(err)
				}
				input.Price = price
			}
			plans, err := ops.ParsePlans(c.StringSlice("plan"))
			if err != nil {
				return outputError(err)
			}
			input.Plans = plans
			input.Benefits = ops.ParseBenefits(c.StringSlice("benefit"))

			output, err := ops.StorePromotion(c.Context, e.db, e.cfg, actor, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func promoUpdateCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update a promotion (admin only); only the given flags change",
		ArgsUsage: "<id>",
		Flags:     promotionFlags(),
		Action: func(c *cli.Context) error {
			_, actor, err := e.current()
			if err != nil {
				return outputError(err)
			}

			input := ops.UpdatePromotionInput{ID: c.Args().First()}
			if c.IsSet("title") {
				v := c.String("title")
				input.Title = &v
			}
			if c.IsSet("description") {
				v := c.String("description")
				input.Description = &v
			}
			if c.IsSet("type") {
				v := catalog.ItemType(c.String("type"))
				input.Type = &v
			}
			if c.IsSet("image-url") {
				v := c.String("image-url")
				input.ImageURL = &v
			}
			if c.IsSet("price") {
				price, err := flagAmount(c, "price")
				if err != nil {
					return outputError(err)
				}
				input.Price = &price
			}
			if c.IsSet("plan") {
				plans, err := ops.ParsePlans(c.StringSlice("plan"))
				if err != nil {
					return outputError(err)
				}
				input.Plans = &plans
			}
			if c.IsSet("benefit") {
				benefits := ops.ParseBenefits(c.StringSlice("benefit"))
				input.Benefits = &benefits
			}

			output, err := ops.UpdatePromotion(c.Context, e.db, e.cfg, actor, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func promoDeleteCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a promotion (admin only)",
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
			output, err := ops.DeletePromotion(c.Context, e.db, e.cfg, actor, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func promoCopyCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "Copy a promotion's plans and prices to the clipboard",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.CopyPromotion(c.Context, e.db, e.sink, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}
