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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdesk/internal/app"
	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
	"taskdesk/internal/notify"
	"taskdesk/internal/repo"
	"taskdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Taskdesk CLI",
	Long: `Taskdesk tracks team tasks with role-aware permissions and a full audit trail.
- Users: admins run the workspace, managers see everything, employees see their own assignments.
- Tasks: work items that flow pending -> in_progress -> completed (cancelled/on_hold as exits).
- History: every field change is recorded, who changed what and when.
- Notifications: assignment, status and deadline events land in each user's inbox.
- Dashboard: counts by status plus overdue and due-today, scoped to what you can see.`,
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
	viper.SetEnvPrefix("TASKDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting username or user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
}

func initCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace with the first admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := app.Bootstrap(ctx, e, opts)
				if err != nil {
					return err
				}
				fmt.Printf("Created admin %s (%s)\n", u.Username, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Username, "username", "", "admin username")
	cmd.Flags().StringVar(&opts.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&opts.DisplayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userRoleCmd())
	user.AddCommand(userStatusCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				u, err := e.CreateUser(ctx, opts, actor.ID)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Username, "username", "", "username")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.DisplayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleEmployee, "role (admin, manager, employee)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				users, err := e.ListUsers(ctx, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Username", "Role", "Status", "Email"})
				for _, u := range users {
					t.AppendRow(table.Row{u.ID, u.Username, u.Role, u.Status, u.Email})
				}
				t.Render()
				return nil
			})
		},
	}
}

func userRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role <user> <role>",
		Short: "Change a user's role (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				target, err := app.ResolveActor(ctx, e.Repo, args[0])
				if err != nil {
					return err
				}
				u, err := e.SetUserRole(ctx, target.ID, args[1], actor.ID)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	return cmd
}

func userStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <user> <status>",
		Short: "Change an account status (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				target, err := app.ResolveActor(ctx, e.Repo, args[0])
				if err != nil {
					return err
				}
				u, err := e.SetUserStatus(ctx, target.ID, args[1], actor.ID)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks flow pending -> in_progress -> completed, with cancelled and on_hold as exits. Assignees update status and progress; assigners and managers can edit everything.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskHistoryCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var assignee string
	var estimated float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				opts.ActorID = actor.ID
				if assignee != "" {
					u, err := app.ResolveActor(ctx, e.Repo, assignee)
					if err != nil {
						return err
					}
					opts.AssignedTo = u.ID
				}
				if cmd.Flags().Changed("estimated-hours") {
					opts.EstimatedHours = &estimated
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&assignee, "assign", "", "assignee username or id")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high, urgent)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&estimated, "estimated-hours", 0, "estimated hours")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var filters repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in urgency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				tasks, err := e.ListTasks(ctx, actor.ID, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Due", "Progress"})
				for _, task := range tasks {
					due := ""
					if task.DueDate != nil {
						due = *task.DueDate
					}
					t.AppendRow(table.Row{task.ID, task.Title, task.Status, task.Priority, due, fmt.Sprintf("%d%%", task.Progress)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filters.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&filters.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&filters.AssignedTo, "assigned-to", "", "assignee user id")
	cmd.Flags().StringVar(&filters.ProjectID, "project", "", "project id")
	cmd.Flags().IntVar(&filters.Limit, "limit", 0, "max results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				t, err := e.GetTask(ctx, args[0], actor.ID)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status, priority, assignee, project, due, start string
	var progress int
	var estimated, actual float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				opts := engine.TaskUpdateOptions{ID: args[0], ActorID: actor.ID}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if cmd.Flags().Changed("progress") {
					opts.Progress = &progress
				}
				if cmd.Flags().Changed("assign") {
					opts.AssignProvided = true
					if assignee != "" {
						u, err := app.ResolveActor(ctx, e.Repo, assignee)
						if err != nil {
							return err
						}
						opts.AssignedTo = &u.ID
					}
				}
				if cmd.Flags().Changed("project") {
					opts.ProjectProvided = true
					if project != "" {
						opts.ProjectID = &project
					}
				}
				if cmd.Flags().Changed("due") {
					opts.DueDateProvided = true
					if due != "" {
						opts.DueDate = &due
					}
				}
				if cmd.Flags().Changed("start") {
					opts.StartDateProvided = true
					if start != "" {
						opts.StartDate = &start
					}
				}
				if cmd.Flags().Changed("estimated-hours") {
					opts.EstimatedProvided = true
					opts.EstimatedHours = &estimated
				}
				if cmd.Flags().Changed("actual-hours") {
					opts.ActualProvided = true
					opts.ActualHours = &actual
				}
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage")
	cmd.Flags().StringVar(&assignee, "assign", "", "assignee (empty to unassign)")
	cmd.Flags().StringVar(&project, "project", "", "project id (empty to clear)")
	cmd.Flags().StringVar(&due, "due", "", "due date (empty to clear)")
	cmd.Flags().StringVar(&start, "start", "", "start date (empty to clear)")
	cmd.Flags().Float64Var(&estimated, "estimated-hours", 0, "estimated hours")
	cmd.Flags().Float64Var(&actual, "actual-hours", 0, "actual hours")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var actual float64
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Update a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				var hours *float64
				if cmd.Flags().Changed("actual-hours") {
					hours = &actual
				}
				t, err := e.UpdateStatus(ctx, args[0], args[1], hours, actor.ID)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().Float64Var(&actual, "actual-hours", 0, "actual hours spent")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				return e.DeleteTask(ctx, args[0], actor.ID)
			})
		},
	}
}

func taskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show a task's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				items, err := e.ListHistory(ctx, args[0], actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"TS", "Field", "Old", "New", "Actor"})
				for _, h := range items {
					t.AppendRow(table.Row{h.TS, h.Field, h.OldValue, h.NewValue, h.ActorID})
				}
				t.Render()
				return nil
			})
		},
	}
}

func notifyCmd() *cobra.Command {
	n := &cobra.Command{Use: "notify", Short: "Notifications"}
	n.AddCommand(notifyListCmd())
	n.AddCommand(notifyReadCmd())
	n.AddCommand(notifySweepCmd())
	return n
}

func notifyListCmd() *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				items, err := e.ListNotifications(ctx, actor.ID, unread)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Type", "Title", "Read", "Created"})
				for _, n := range items {
					t.AppendRow(table.Row{n.ID, n.Type, n.Title, n.IsRead, n.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	return cmd
}

func notifyReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				n, err := e.MarkNotificationRead(ctx, args[0], actor.ID)
				if err != nil {
					return err
				}
				return printJSON(n)
			})
		},
	}
}

func notifySweepCmd() *cobra.Command {
	var windowDays int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Emit overdue and deadline-reminder notifications",
		Long:  "Scans assigned, non-terminal tasks with due dates and emits task_overdue or deadline_reminder notifications. Run from cron; already-notified tasks are skipped while the notification stays unread.",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := sweepWindow(cmd, viper.GetString("workspace"), windowDays)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SweepDueDates(ctx, window)
				if err != nil {
					return err
				}
				fmt.Printf("emitted %d notifications\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&windowDays, "window-days", 1, "reminder window in days (overrides config)")
	return cmd
}

// sweepWindow resolves the reminder window: an explicit --window-days
// wins, otherwise notifications.reminder_window_days from the workspace
// config applies.
func sweepWindow(cmd *cobra.Command, workspace string, flagValue int) (int, error) {
	if cmd.Flags().Changed("window-days") {
		return flagValue, nil
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return 0, err
	}
	return cfg.Notifications.ReminderWindowDays, nil
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Task counts by status, overdue and due today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.User) error {
				counts, err := e.Dashboard(ctx, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				fmt.Printf("Total:       %d\n", counts.Total)
				fmt.Printf("Pending:     %d\n", counts.Pending)
				fmt.Printf("In progress: %d\n", counts.InProgress)
				fmt.Printf("Completed:   %d\n", counts.Completed)
				fmt.Printf("Overdue:     %d\n", counts.Overdue)
				fmt.Printf("Due today:   %d\n", counts.DueToday)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath, configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			var cfg *config.Config
			var err error
			if configFile != "" {
				cfg, err = config.FromFile(configFile)
			} else {
				cfg, err = config.Load(workspace)
			}
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if secret := os.Getenv("TASKDESK_JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("jwt secret is required: set auth.jwt_secret or TASKDESK_JWT_SECRET")
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn)
			notify.StartWebhookDispatcher(cmd.Context(), e.Repo, cfg.Notifications.Webhooks, nil)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Auth.JWTSecret,
					TokenTTL:  time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
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
			fmt.Printf("Serving Taskdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8844", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&configFile, "config", "", "path to YAML config")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withActor(ctx context.Context, fn func(context.Context, engine.Engine, domain.User) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		actor, err := app.ResolveActor(ctx, e.Repo, viper.GetString("actor"))
		if err != nil {
			return err
		}
		return fn(ctx, e, actor)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
