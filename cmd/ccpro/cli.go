package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/clipboard"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
	"github.com/hpungsan/ccpro/internal/identity"
	"github.com/hpungsan/ccpro/internal/ops"
	"github.com/hpungsan/ccpro/internal/session"
	"github.com/hpungsan/ccpro/internal/web"
)

// env carries the dependencies shared by every command.
type env struct {
	db       *sql.DB
	cfg      *config.Config
	scratch  *session.Scratch
	baseDir  string
	workDir  string
	sink     clipboard.Sink
	provider identity.Provider

	// openBrowser launches the consent page; nil only prints the URL.
	openBrowser func(url string) error
}

// current returns the CLI session id and its signed-in actor.
func (e *env) current() (string, ops.Actor, error) {
	sid, err := e.scratch.CurrentSession()
	if err != nil {
		return "", ops.Actor{}, errors.NewUnavailable(fmt.Errorf("scratch session: %w", err))
	}
	p, err := e.scratch.LoadPrincipal(sid)
	if err != nil {
		return "", ops.Actor{}, errors.NewUnavailable(fmt.Errorf("load principal: %w", err))
	}
	return sid, ops.ActorFrom(p), nil
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "ccpro",
		Usage:   "CallCenter PRO: promotion search, notes and budgets",
		Version: Version,
		// Prices use a decimal comma; --plan and --benefit values must not be split on it.
		DisableSliceFlagSeparator: true,
		Commands: []*cli.Command{
			loginCmd(e),
			logoutCmd(e),
			whoamiCmd(e),
			searchCmd(e),
			promoCmd(e),
			noteCmd(e),
			budgetCmd(e),
			userCmd(e),
			catalogCmd(e),
			serveCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// loginCmd creates the login command.
func loginCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in through the browser",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "Loopback callback port (default from config)"},
			&cli.DurationFlag{Name: "timeout", Value: 2 * time.Minute, Usage: "How long to wait for the browser"},
		},
		Action: func(c *cli.Context) error {
			if p, ok := e.provider.(interface{ Configured() bool }); e.provider == nil || (ok && !p.Configured()) {
				return outputError(errors.NewUnavailable(fmt.Errorf("sign-in is not configured: set oauth.client_id and oauth.client_secret")))
			}

			state, err := identity.NewState()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			port := e.cfg.OAuth.RedirectPort
			if c.IsSet("port") {
				port = c.Int("port")
			}
			cb := identity.NewCallbackServer(port, state)
			if err := cb.Start(); err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			defer cb.Stop()

			authURL := e.provider.AuthCodeURL(state, cb.RedirectURI())
			fmt.Fprintf(os.Stderr, "Open this URL to sign in:\n\n  %s\n\n", authURL)
			if e.openBrowser != nil {
				if err := e.openBrowser(authURL); err != nil {
					slog.Debug("could not open browser", "error", err)
				}
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			code, err := cb.WaitForCode(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return outputError(errors.NewCancelled("login"))
				}
				return outputError(errors.NewUnauthorized(err.Error()))
			}

			principal, err := identity.SignIn(ctx, e.provider, ops.AllowList(e.db, e.cfg), code, cb.RedirectURI())
			if err != nil {
				return outputError(err)
			}

			sid, err := e.scratch.CurrentSession()
			if err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			if err := e.scratch.SavePrincipal(sid, principal); err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			return outputJSON(principal)
		},
	}
}

// logoutCmd creates the logout command. The working budget is kept.
func logoutCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out of the CLI session",
		Action: func(c *cli.Context) error {
			sid, err := e.scratch.CurrentSession()
			if err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			if err := e.scratch.Delete(sid, session.KeyPrincipal); err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			return outputJSON(map[string]bool{"signed_out": true})
		},
	}
}

// whoamiCmd creates the whoami command.
func whoamiCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(c *cli.Context) error {
			sid, err := e.scratch.CurrentSession()
			if err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			p, err := e.scratch.LoadPrincipal(sid)
			if err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			if p == nil {
				return outputError(errors.NewUnauthorized("not signed in, run 'ccpro login'"))
			}
			admin, err := ops.IsAdmin(c.Context, e.db, e.cfg, p.Email)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(struct {
				catalog.Principal
				Admin bool `json:"admin"`
			}{*p, admin})
		},
	}
}

// searchCmd creates the search command.
func searchCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search promotions by keyword (blank lists everything)",
		ArgsUsage: "[query]",
		Action: func(c *cli.Context) error {
			engine, err := ops.LoadPromotionEngine(c.Context, e.db)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.SearchPromotions(c.Context, engine, ops.SearchPromotionsInput{
				Query: strings.Join(c.Args().Slice(), " "),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// userCmd creates the user command group (allow-list administration).
func userCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage the allow-list (admin only)",
		Subcommands: []*cli.Command{
			{
				Name:      "allow",
				Usage:     "Authorize an email",
				ArgsUsage: "<email>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Value: catalog.RoleUser, Usage: "Role: user|admin"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name"},
				},
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.AllowUser(c.Context, e.db, e.cfg, actor, ops.AllowUserInput{
						Email: c.Args().First(),
						Role:  c.String("role"),
						Name:  c.String("name"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "revoke",
				Usage:     "Remove an email from the allow-list",
				ArgsUsage: "<email>",
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.RevokeUser(c.Context, e.db, e.cfg, actor, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "List authorized users",
				Flags: pageFlags(),
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ListAuthorizedUsers(c.Context, e.db, e.cfg, actor, ops.ListUsersInput{
						Limit:  c.Int("limit"),
						Cursor: c.String("cursor"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// catalogCmd creates the catalog command group (TOML export/import).
func catalogCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Export or import the promotion catalog (admin only)",
		Subcommands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Export all promotions to a TOML file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.ccpro/exports/catalog-<timestamp>.toml)"},
				},
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ExportCatalog(c.Context, e.db, e.cfg, actor, ops.ExportCatalogInput{
						Path: c.String("path"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "import",
				Usage: "Import promotions from a TOML file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Input path"},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(ops.ImportModeError), Usage: "Collision mode: error|replace|skip"},
				},
				Action: func(c *cli.Context) error {
					_, actor, err := e.current()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ImportCatalog(c.Context, e.db, e.cfg, actor, ops.ImportCatalogInput{
						Path: c.String("path"),
						Mode: ops.ImportMode(c.String("mode")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// serveCmd creates the serve command: the web UI with hot config reload.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Listen address (default from config)"},
		},
		Action: func(c *cli.Context) error {
			addr := c.String("addr")
			if addr == "" {
				addr = e.cfg.WebAddr
			}

			engine, err := ops.LoadPromotionEngine(c.Context, e.db)
			if err != nil {
				return outputError(err)
			}

			srv, h := web.NewServer(web.Options{
				DB:       e.db,
				Config:   e.cfg,
				Sessions: session.NewManager(e.scratch),
				Provider: e.provider,
				Engine:   engine,
				Version:  Version,
				Addr:     addr,
			})

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			go func() {
				err := config.Watch(ctx, e.baseDir, e.workDir, func(cfg *config.Config) {
					db.ConfigurePool(e.db, cfg)
					h.SetConfig(cfg)
				})
				if err != nil && ctx.Err() == nil {
					slog.Warn("config watch stopped", "error", err)
				}
			}()

			if err := web.Run(ctx, srv); err != nil {
				return outputError(errors.NewUnavailable(err))
			}
			return nil
		},
	}
}

// pageFlags returns the --limit/--cursor pair used by list commands.
func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Max items to return"},
		&cli.StringFlag{Name: "cursor", Usage: "Cursor from a previous page"},
	}
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	ccErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", ccErr.Code, ccErr.Message), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// argIndex parses the 0-based line index argument of budget commands.
func argIndex(c *cli.Context) (int, error) {
	if c.NArg() == 0 {
		return 0, errors.NewInvalidField("index", "is required")
	}
	i, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return 0, errors.NewInvalidField("index", "must be an integer")
	}
	return i, nil
}

// flagAmount parses a price flag. A comma is accepted as the decimal separator.
func flagAmount(c *cli.Context, name string) (decimal.Decimal, error) {
	d, err := ops.ParseAmount(c.String(name))
	if err != nil {
		return decimal.Zero, errors.NewInvalidField(name, "must be a number")
	}
	return d, nil
}
