package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kaizen/internal/config"
	"kaizen/internal/db"
	"kaizen/internal/domain"
	"kaizen/internal/engine"
	"kaizen/internal/migrate"
	"kaizen/internal/notify"
	"kaizen/internal/repo"
	"kaizen/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "kaizen",
	Short: "Kaizen CLI",
	Long: `Kaizen tracks improvement goals through the PDCA cycle.
Core concepts:
- Goal: an improvement effort owned by one person, moving plan -> do -> check -> act -> completed.
- Phase tasks: units of work attached to a PDCA phase; a goal cannot progress forward while its current phase has open tasks.
- Assignees: people working the goal; each can mark their own slice complete.
- On hold: any active goal can pause and later resume exactly where it was.
- History: every status change, comment, assignment, and completion is recorded append-only; view with 'kaizen log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("KAIZEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(grantCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func goalCmd() *cobra.Command {
	goal := &cobra.Command{
		Use:   "goal",
		Short: "Manage goals",
		Long:  "Goals flow plan -> do -> check -> act -> completed and may pause via on_hold. Forward moves require the current phase's tasks to be closed.",
	}
	goal.AddCommand(goalCreateCmd())
	goal.AddCommand(goalListCmd())
	goal.AddCommand(goalShowCmd())
	goal.AddCommand(goalTransitionCmd())
	goal.AddCommand(goalHoldCmd())
	goal.AddCommand(goalResumeCmd())
	goal.AddCommand(goalAssignCmd())
	goal.AddCommand(goalCompleteCmd())
	goal.AddCommand(goalCommentCmd())
	goal.AddCommand(goalDatesCmd())
	return goal
}

func goalCreateCmd() *cobra.Command {
	var opts engine.GoalCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Title == "" {
				return fmt.Errorf("--title required")
			}
			if opts.OwnerID == "" {
				opts.OwnerID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CreateGoal(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "goal id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "goal title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Department, "department", "", "owning department")
	cmd.Flags().StringVar(&opts.OwnerID, "owner", "", "owner user id (defaults to --actor-id)")
	cmd.Flags().StringVar(&opts.StartDate, "start-date", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&opts.TargetDate, "target-date", "", "target date (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func goalListCmd() *cobra.Command {
	var f repo.GoalFilters
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.Status(status)
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				goals, err := r.ListGoals(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Owner", "Department", "Target"})
				for _, g := range goals {
					target := ""
					if g.TargetDate != nil {
						target = *g.TargetDate
					}
					tw.AppendRow(table.Row{g.ID, g.Title, g.Status, g.OwnerID, g.Department, target})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.OwnerID, "owner", "", "owner filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	cmd.Flags().StringVar(&f.CursorID, "cursor", "", "pagination cursor (last seen id)")
	return cmd
}

func goalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <goal-id>",
		Short: "Show a goal with its assignees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				snap, err := r.GetGoalSnapshot(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(snap)
			})
		},
	}
	return cmd
}

func goalTransitionCmd() *cobra.Command {
	var comment, newAssignee string
	cmd := &cobra.Command{
		Use:   "transition <goal-id> <status>",
		Short: "Request a status transition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.RequestTransition(ctx, engine.TransitionRequest{
					GoalID:        args[0],
					Target:        domain.Status(args[1]),
					ActorID:       viper.GetString("actor-id"),
					Comment:       comment,
					NewAssigneeID: newAssignee,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "transition comment")
	cmd.Flags().StringVar(&newAssignee, "assignee", "", "reassign to user id")
	return cmd
}

func goalHoldCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "hold <goal-id>",
		Short: "Pause a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.RequestTransition(ctx, engine.TransitionRequest{
					GoalID:  args[0],
					Target:  domain.StatusOnHold,
					ActorID: viper.GetString("actor-id"),
					Comment: comment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "reason for the pause")
	return cmd
}

func goalResumeCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "resume <goal-id>",
		Short: "Resume a paused goal to its previous status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.Repo.GetGoal(ctx, args[0])
				if err != nil {
					return err
				}
				if g.PreviousStatus == nil {
					return fmt.Errorf("goal %s has no previous status to resume to", args[0])
				}
				out, err := e.RequestTransition(ctx, engine.TransitionRequest{
					GoalID:  args[0],
					Target:  *g.PreviousStatus,
					ActorID: viper.GetString("actor-id"),
					Comment: comment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "resume comment")
	return cmd
}

func goalAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <goal-id> <user-id> [user-id...]",
		Short: "Assign users to a goal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.Assign(ctx, args[0], args[1:], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	return cmd
}

func goalCompleteCmd() *cobra.Command {
	var user, notes string
	cmd := &cobra.Command{
		Use:   "complete <goal-id>",
		Short: "Mark an assignee's work on a goal complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			if user == "" {
				user = actorID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CompleteAssignment(ctx, args[0], user, actorID, notes)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "assignee user id (defaults to --actor-id)")
	cmd.Flags().StringVar(&notes, "notes", "", "completion notes")
	return cmd
}

func goalCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment <goal-id> <text>",
		Short: "Add a comment to a goal's history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.AddComment(ctx, args[0], viper.GetString("actor-id"), args[1])
			})
		},
	}
	return cmd
}

func goalDatesCmd() *cobra.Command {
	var start, target string
	cmd := &cobra.Command{
		Use:   "dates <goal-id>",
		Short: "Set a goal's start or target date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var startPtr, targetPtr *string
			if cmd.Flags().Changed("start") {
				startPtr = &start
			}
			if cmd.Flags().Changed("target") {
				targetPtr = &target
			}
			if startPtr == nil && targetPtr == nil {
				return fmt.Errorf("--start or --target required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.SetDates(ctx, args[0], viper.GetString("actor-id"), startPtr, targetPtr)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&target, "target", "", "target date (RFC3339)")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage phase tasks",
		Long:  "Phase tasks are units of work attached to one PDCA phase of a goal. Open tasks in the goal's current phase block forward progression.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var phase string
	cmd := &cobra.Command{
		Use:   "create <goal-id>",
		Short: "Create a phase task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.GoalID = args[0]
			opts.Phase = domain.Phase(phase)
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&phase, "phase", "", "pdca phase (plan, do, check, act)")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee user id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func taskListCmd() *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "list <goal-id>",
		Short: "List a goal's phase tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, args[0], domain.Phase(phase))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Phase", "Title", "Status", "Assignee"})
				for _, t := range tasks {
					assignee := ""
					if t.AssigneeID != nil {
						assignee = *t.AssigneeID
					}
					tw.AppendRow(table.Row{t.ID, t.Phase, t.Title, t.Status, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "pdca phase filter")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" {
				return fmt.Errorf("--status required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTaskStatus(ctx, args[0], domain.TaskStatus(status), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (pending, in_progress, completed, cancelled)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var u domain.User
	var role string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u.ID = args[0]
			u.Role = domain.Role(role)
			if u.Name == "" {
				u.Name = u.ID
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "employee", "role (admin, head, manager, employee)")
	cmd.Flags().StringVar(&u.Department, "department", "", "department")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Department"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role, u.Department})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func grantCmd() *cobra.Command {
	grant := &cobra.Command{Use: "grant", Short: "Manage department oversight grants"}
	grant.AddCommand(grantAddCmd())
	grant.AddCommand(grantRemoveCmd())
	return grant
}

func grantAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <user-id> <department>",
		Short: "Grant a user oversight of a department",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.GrantDepartment(ctx, args[0], args[1], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func grantRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <user-id> <department>",
		Short: "Revoke a department oversight grant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.RevokeDepartment(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Create an API key for an actor (plaintext printed once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plain := uuid.New().String()
				key := repo.APIKey{
					ID:      uuid.New().String(),
					ActorID: args[0],
					Name:    name,
					KeyHash: repo.HashAPIKey(plain),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Printf("API key (store it now, it is not shown again): %s\n", plain)
				return printJSONOrTable(key)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect the workflow history"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail <goal-id>",
		Short: "Show a goal's latest history entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if n > 0 && len(entries) > n {
					entries = entries[len(entries)-n:]
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "User", "Action", "Payload"})
				for _, e := range entries {
					payload, _ := json.Marshal(e.Payload)
					tw.AppendRow(table.Row{e.ID, e.TS, e.UserName, e.Action, string(payload)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			if secret := os.Getenv("KAIZEN_JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowLegacyActorHeader {
				return fmt.Errorf("KAIZEN_JWT_SECRET (or auth.jwt_secret) is required for bearer auth")
			}

			conn, err := db.Open(db.Config{
				Workspace:     workspace,
				File:          cfg.DB.File,
				BusyTimeoutMS: cfg.DB.BusyTimeoutMS,
			})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "kaizen").Logger()
			e := engine.New(conn, logger)
			if cfg.Notify.Mode == "nats" {
				sink, err := notify.NewNATSSink(cfg.Notify.NATS.URL, cfg.Notify.NATS.Subject)
				if err != nil {
					return err
				}
				defer sink.Close()
				e.Sink = notify.Multi{notify.LogSink{Logger: logger}, sink}
			}
			if !cfg.Metrics.Enabled {
				e.Metrics = nil
			}

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:              cfg.Auth.JWTSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
					Logger:                 logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info().Str("addr", cfg.Server.Addr).Str("base_path", cfg.Server.BasePath).Msg("serving kaizen api")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return fn(ctx, engine.New(conn, logger))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
