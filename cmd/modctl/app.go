package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/NicolasHaas/portalmod/pkg/crypto"
	"github.com/NicolasHaas/portalmod/pkg/logging"
	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/moderation"
	"github.com/NicolasHaas/portalmod/pkg/rbac"
	"github.com/NicolasHaas/portalmod/pkg/seed"
	"github.com/NicolasHaas/portalmod/pkg/server"
	"github.com/NicolasHaas/portalmod/pkg/store"
	"github.com/NicolasHaas/portalmod/pkg/version"
)

// env is the state shared by all commands, filled in by setup.
type env struct {
	cfg    server.Config
	logger *slog.Logger
}

func newApp() *cli.App {
	e := &env{}
	return &cli.App{
		Name:    "modctl",
		Usage:   "operate the portalmod moderation database",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "db", Usage: "SQLite database file (overrides config)"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "log level: " + logging.LevelNames()},
		},
		Before: e.setup,
		Commands: []*cli.Command{
			e.usersCommand(),
			e.seedCommand(),
			e.banCommand(),
			e.unbanCommand(),
			e.escalateCommand(),
			e.resolveCommand(),
			e.roleCommand(),
			e.expireCommand(),
			e.tokenCommand(),
			secretCommand(),
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					return printJSON(c.App.Writer, version.Get())
				},
			},
		},
	}
}

func (e *env) setup(c *cli.Context) error {
	cfg, err := server.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	errOut := c.App.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	logger, err := logging.New(logging.Options{Level: c.String("log-level"), Output: errOut})
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logger
	return nil
}

// withService opens the store, runs fn with a service over it and closes
// the store again.
func (e *env) withService(fn func(svc *moderation.Service, st store.UserStore) error) error {
	table, err := e.cfg.PermissionTable()
	if err != nil {
		return err
	}
	st, err := store.New(e.cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc := moderation.New(st, rbac.NewEngineWithClock(table, nil), nil, e.logger)
	return fn(svc, st)
}

func (e *env) usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "list, import and export users",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list all users",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
					&cli.BoolFlag{Name: "review", Usage: "only users awaiting review"},
				},
				Action: func(c *cli.Context) error {
					return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
						users, err := svc.List(c.Context)
						if err != nil {
							return err
						}
						if c.Bool("review") {
							filtered := users[:0]
							for _, u := range users {
								if u.RequiresReview {
									filtered = append(filtered, u)
								}
							}
							users = filtered
						}
						if c.Bool("json") {
							return printJSON(c.App.Writer, users)
						}
						return printUsers(c.App.Writer, users)
					})
				},
			},
			{
				Name:      "import",
				Usage:     "create users from a YAML file",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("import: expected exactly one FILE argument")
					}
					return e.withService(func(_ *moderation.Service, st store.UserStore) error {
						n, err := server.LoadUsersFromYAML(c.Context, c.Args().First(), st)
						if err != nil {
							return err
						}
						_, err = fmt.Fprintf(c.App.Writer, "imported %d users\n", n)
						return err
					})
				},
			},
			{
				Name:  "export",
				Usage: "write all users as YAML to stdout",
				Action: func(c *cli.Context) error {
					return e.withService(func(_ *moderation.Service, st store.UserStore) error {
						data, err := server.ExportUsersYAML(c.Context, st)
						if err != nil {
							return err
						}
						_, err = c.App.Writer.Write(data)
						return err
					})
				},
			},
		},
	}
}

func (e *env) seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "populate the database with mock users",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Value: 50, Usage: "number of users to generate"},
			&cli.Int64Flag{Name: "seed", Usage: "random seed (0 = time based)"},
		},
		Action: func(c *cli.Context) error {
			return e.withService(func(_ *moderation.Service, st store.UserStore) error {
				gen := seed.NewGenerator(c.Int64("seed"))
				n, err := gen.Populate(c.Context, st, c.Int("count"))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.App.Writer, "created %d users (seed %d)\n", n, gen.Seed())
				return err
			})
		},
	}
}

func actorFlag() cli.Flag {
	return &cli.StringFlag{Name: "actor", Usage: "ID of the acting user", Required: true}
}

func targetFlag() cli.Flag {
	return &cli.StringFlag{Name: "target", Usage: "ID of the user acted on", Required: true}
}

func reasonFlag() cli.Flag {
	return &cli.StringFlag{Name: "reason", Usage: "free-text reason for the audit log"}
}

func scopeFlag() cli.Flag {
	return &cli.StringFlag{Name: "scope", Usage: "ban scope: community or app", Required: true}
}

func (e *env) banCommand() *cli.Command {
	return &cli.Command{
		Name:  "ban",
		Usage: "ban a user in one scope",
		Flags: []cli.Flag{
			actorFlag(), targetFlag(), scopeFlag(), reasonFlag(),
			&cli.StringFlag{Name: "duration", Usage: "e.g. 7d or permanent", Required: true},
		},
		Action: func(c *cli.Context) error {
			scope, err := model.ParseScope(c.String("scope"))
			if err != nil {
				return err
			}
			d, err := model.ParseDuration(c.String("duration"))
			if err != nil {
				return err
			}
			return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
				u, err := svc.Ban(c.Context, moderation.BanRequest{
					ActorID:  c.String("actor"),
					TargetID: c.String("target"),
					Scope:    scope,
					Duration: d,
					Reason:   c.String("reason"),
				})
				return e.result(c, u, err)
			})
		},
	}
}

func (e *env) unbanCommand() *cli.Command {
	return &cli.Command{
		Name:  "unban",
		Usage: "lift a user's ban in one scope",
		Flags: []cli.Flag{actorFlag(), targetFlag(), scopeFlag(), reasonFlag()},
		Action: func(c *cli.Context) error {
			scope, err := model.ParseScope(c.String("scope"))
			if err != nil {
				return err
			}
			return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
				u, err := svc.Unban(c.Context, c.String("actor"), c.String("target"), scope, c.String("reason"))
				return e.result(c, u, err)
			})
		},
	}
}

func (e *env) escalateCommand() *cli.Command {
	return &cli.Command{
		Name:  "escalate",
		Usage: "flag a user for review by a higher role",
		Flags: []cli.Flag{actorFlag(), targetFlag(), reasonFlag()},
		Action: func(c *cli.Context) error {
			return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
				u, err := svc.Escalate(c.Context, c.String("actor"), c.String("target"), c.String("reason"))
				return e.result(c, u, err)
			})
		},
	}
}

func (e *env) resolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "clear a user's review flag",
		Flags: []cli.Flag{actorFlag(), targetFlag(), reasonFlag()},
		Action: func(c *cli.Context) error {
			return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
				u, err := svc.ResolveReview(c.Context, c.String("actor"), c.String("target"), c.String("reason"))
				return e.result(c, u, err)
			})
		},
	}
}

func (e *env) roleCommand() *cli.Command {
	return &cli.Command{
		Name:  "role",
		Usage: "change a user's role",
		Flags: []cli.Flag{
			actorFlag(), targetFlag(),
			&cli.StringFlag{Name: "role", Usage: "student, moderator, staff or admin", Required: true},
		},
		Action: func(c *cli.Context) error {
			role, ok := model.LookupRole(c.String("role"))
			if !ok {
				return fmt.Errorf("%w: %q", model.ErrInvalidRole, c.String("role"))
			}
			return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
				u, err := svc.ChangeRole(c.Context, c.String("actor"), c.String("target"), role)
				return e.result(c, u, err)
			})
		},
	}
}

func (e *env) expireCommand() *cli.Command {
	return &cli.Command{
		Name:  "expire",
		Usage: "revert bans whose time has run out",
		Action: func(c *cli.Context) error {
			return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
				n, err := svc.ExpireAll(c.Context)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.App.Writer, "expired bans on %d users\n", n)
				return err
			})
		},
	}
}

func (e *env) tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue an API token for a user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "ID of the user the token acts as", Required: true},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (default from config)"},
		},
		Action: func(c *cli.Context) error {
			if e.cfg.JWT.Secret == "" {
				return fmt.Errorf("token: jwt secret must be set in config or %s", server.EnvJWTSecret)
			}
			return e.withService(func(svc *moderation.Service, _ store.UserStore) error {
				if _, err := svc.Actor(c.Context, c.String("user")); err != nil {
					return err
				}
				ttl := e.cfg.JWT.TTL
				if c.IsSet("ttl") {
					ttl = c.Duration("ttl")
				}
				key := crypto.DeriveKey(e.cfg.JWT.Secret, []byte(e.cfg.JWT.Salt))
				tok, err := server.NewTokenProvider(key, e.cfg.JWT.Issuer, ttl).GenerateToken(c.String("user"))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.App.Writer, tok)
				return err
			})
		},
	}
}

func secretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "generate a random value for jwt.secret or " + server.EnvJWTSecret,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "bytes", Value: crypto.KeySize, Usage: "random bytes before hex encoding"},
		},
		Action: func(c *cli.Context) error {
			secret, err := crypto.GenerateSecret(c.Int("bytes"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, secret)
			return err
		},
	}
}

// result prints the updated user, or returns err.
func (e *env) result(c *cli.Context, u *model.UserRecord, err error) error {
	if err != nil {
		return err
	}
	return printUsers(c.App.Writer, []model.UserRecord{*u})
}

func printUsers(w io.Writer, users []model.UserRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tCOMMUNITY\tAPP\tREVIEW")
	for _, u := range users {
		review := ""
		if u.RequiresReview {
			review = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Name, u.Email, u.Role, banLabel(u.CommunityBan), banLabel(u.AppBan), review)
	}
	return tw.Flush()
}

func banLabel(b model.BanState) string {
	switch {
	case !b.IsBanned():
		return "active"
	case b.Permanent():
		return "banned permanently"
	default:
		return "banned until " + b.ExpiresAt.UTC().Format(time.DateOnly)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
