// Command taxi runs the workflow dispatcher: serve it over HTTP for a
// fleet of taxi processes, seed a job pool against its store, or
// report on the store's current task counts. Grounded on
// cmd/divinesense/main.go's cobra/viper/godotenv wiring from the
// teacher repo.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erinaldi/taxi/internal/api"
	"github.com/erinaldi/taxi/internal/config"
	"github.com/erinaldi/taxi/internal/dispatcher"
	"github.com/erinaldi/taxi/internal/metrics"
	"github.com/erinaldi/taxi/internal/store"
	"github.com/erinaldi/taxi/internal/store/postgres"
	"github.com/erinaldi/taxi/internal/store/sqlite"
	"github.com/erinaldi/taxi/internal/task"
	"github.com/erinaldi/taxi/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "taxi",
	Short: "Dispatcher for long-running scientific batch pipelines.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	cfg.FromEnv()

	if v := viper.GetString("driver"); v != "" {
		cfg.Driver = v
	}
	if v := viper.GetString("dsn"); v != "" {
		cfg.DSN = v
	}
	if v := viper.GetString("data"); v != "" {
		cfg.Data = v
	}
	if viper.IsSet("port") {
		cfg.Addr = fmt.Sprintf(":%d", viper.GetInt("port"))
	}
	if v := viper.GetString("priority-policy"); v != "" {
		cfg.Policy = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN)
	default:
		return sqlite.Open(cfg.DSN)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher's HTTP API for a fleet of taxis.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}

		d := dispatcher.New(s, slog.Default())
		e := api.NewServer(d, metrics.NewRegistry())

		go func() {
			if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
				slog.Error("server stopped", "error", err)
			}
		}()
		slog.Info("taxi dispatcher serving", "addr", cfg.Addr, "driver", cfg.Driver, "dsn", cfg.DSN)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	},
}

var initPoolCmd = &cobra.Command{
	Use:   "init-pool [jobs.json]",
	Short: "Run initialize_new_job_pool against the store from a JSON job description.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		var jobPool []jobSpec
		if err := json.Unmarshal(raw, &jobPool); err != nil {
			return err
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}

		jobs := buildJobs(jobPool)
		d := dispatcher.New(s, slog.Default())
		tasks, err := d.InitializeNewJobPool(ctx, jobs, task.PriorityPolicy(cfg.Policy))
		if err != nil {
			return err
		}

		fmt.Printf("inserted %d tasks\n", len(tasks))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print counts by status of tasks not restricted to a taxi (for_taxi unset).",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		blob, err := s.GetBlob(ctx, "", true)
		if err != nil {
			return err
		}

		counts := make(map[task.TaskStatus]int)
		for _, t := range blob {
			counts[t.Status]++
		}
		for _, status := range []task.TaskStatus{
			task.StatusPending, task.StatusActive, task.StatusComplete,
			task.StatusFailed, task.StatusRecurring,
		} {
			fmt.Printf("%-10s %d\n", status, counts[status])
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.StringFull())
		return nil
	},
}

// shutdownTimeout bounds how long serve waits for in-flight requests
// to finish before forcing the listener closed.
const shutdownTimeout = 10 * time.Second

// jobSpec is the JSON-file shape consumed by init-pool: one entry per
// job, dependencies given as indices into the same file's array. Mirrors
// internal/api's jobRequest wire shape.
type jobSpec struct {
	Kind        task.TaskType `json:"kind"`
	Args        task.TaskArgs `json:"args"`
	DependsOn   []int         `json:"depends_on"`
	Trunk       bool          `json:"trunk"`
	Priority    int           `json:"priority"`
	ReqTime     int64         `json:"req_time"`
	IsRecurring bool          `json:"is_recurring"`
	ForTaxi     string        `json:"for_taxi,omitempty"`
}

// buildJobs turns a job-pool file's flat job list into *task.Job values
// with DependsOn resolved from index references. Out-of-range indices
// are silently skipped; init-pool is a trusted local tool, not an HTTP
// boundary, so this stays permissive rather than erroring like
// internal/api's handler does.
func buildJobs(specs []jobSpec) []*task.Job {
	jobs := make([]*task.Job, len(specs))
	for i, s := range specs {
		j := task.NewJob(s.Kind, s.Args)
		j.Trunk = s.Trunk
		j.IsRecurring = s.IsRecurring
		j.ReqTime = s.ReqTime
		if s.Priority != 0 {
			j.Priority = s.Priority
		}
		if s.ForTaxi != "" {
			j.WithForTaxi(s.ForTaxi)
		}
		jobs[i] = j
	}
	for i, s := range specs {
		deps := make([]*task.Job, 0, len(s.DependsOn))
		for _, idx := range s.DependsOn {
			if idx < 0 || idx >= len(jobs) {
				continue
			}
			deps = append(deps, jobs[idx])
		}
		jobs[i].WithDependsOn(deps...)
	}
	return jobs
}

func init() {
	rootCmd.PersistentFlags().String("driver", "sqlite", "task store driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "task store DSN (overrides --data for sqlite)")
	rootCmd.PersistentFlags().String("data", "", "data directory for the default sqlite store")
	rootCmd.PersistentFlags().Int("port", 8080, "HTTP port for taxi serve")
	rootCmd.PersistentFlags().String("priority-policy", "tree", "priority assignment policy (tree, trunk, anarchy)")

	for _, name := range []string{"driver", "dsn", "data", "port", "priority-policy"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd, initPoolCmd, statusCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("taxi exited with error", "error", err)
		os.Exit(1)
	}
}
