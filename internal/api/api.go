// Package api exposes the dispatcher over HTTP so a taxi process — a
// separate OS binary, per spec.md §1/§5 — can call it over the
// network instead of linking the Go package directly. Grounded on
// server/router/api/v1/v1.go's echo wiring (groups, middleware, JSON
// error bodies), minus the connect/grpc-gateway layer: that would
// require generated protobuf stubs this repo does not attempt to
// hand-author (see DESIGN.md).
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erinaldi/taxi/internal/dispatcher"
	"github.com/erinaldi/taxi/internal/task"
	"github.com/erinaldi/taxi/internal/taxi"
)

// NewServer wires the dispatcher's operations onto an echo instance.
// reg may be nil, in which case /metrics is omitted.
func NewServer(d *dispatcher.Dispatcher, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	v1 := e.Group("/v1")
	v1.POST("/pools/:pool/jobs", handleInitializeJobPool(d))
	v1.POST("/pools/:pool/tasks/next", handleGetTaskToRun(d))
	v1.POST("/tasks/:id/finalize", handleFinalizeTaskRun(d))

	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	return e
}

func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": err.Error()})
	}
}

// taxiRequest is the wire shape of a Taxi descriptor (spec.md §6).
// Timestamps are Unix seconds.
type taxiRequest struct {
	Name           string `json:"name"`
	PoolName       string `json:"pool_name"`
	TimeLimit      int64  `json:"time_limit"`
	StartTime      int64  `json:"start_time"`
	TaskStartTime  int64  `json:"task_start_time,omitempty"`
	TaskFinishTime int64  `json:"task_finish_time,omitempty"`
}

func (r taxiRequest) toTaxi() *taxi.Taxi {
	t := taxi.New(r.Name, r.PoolName, r.TimeLimit, nil)
	if r.StartTime != 0 {
		t.StartTime = time.Unix(r.StartTime, 0)
	}
	if r.TaskStartTime != 0 {
		t.TaskStartTime = time.Unix(r.TaskStartTime, 0)
	}
	if r.TaskFinishTime != 0 {
		t.TaskFinishTime = time.Unix(r.TaskFinishTime, 0)
	}
	return t
}

type taskResponse struct {
	ID          int64           `json:"id"`
	TaskType    task.TaskType   `json:"task_type"`
	TaskArgs    task.TaskArgs   `json:"task_args"`
	DependsOn   []int64         `json:"depends_on"`
	Status      task.TaskStatus `json:"status"`
	ForTaxi     *string         `json:"for_taxi,omitempty"`
	ByTaxi      *string         `json:"by_taxi,omitempty"`
	IsRecurring bool            `json:"is_recurring"`
	ReqTime     int64           `json:"req_time"`
	Priority    int             `json:"priority"`
	StartTime   float64         `json:"start_time"`
}

func toTaskResponse(t *task.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		TaskType:    t.TaskType,
		TaskArgs:    t.TaskArgs,
		DependsOn:   t.DependsOn,
		Status:      t.Status,
		ForTaxi:     t.ForTaxi,
		ByTaxi:      t.ByTaxi,
		IsRecurring: t.IsRecurring,
		ReqTime:     t.ReqTime,
		Priority:    t.Priority,
		StartTime:   t.StartTime,
	}
}

// handleGetTaskToRun wraps get_task_to_run (C5).
func handleGetTaskToRun(d *dispatcher.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			Taxi taxiRequest `json:"taxi"`
		}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		t, err := d.GetTaskToRun(c.Request().Context(), req.Taxi.toTaxi())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, toTaskResponse(t))
	}
}

// handleFinalizeTaskRun wraps finalize_task_run (C6).
func handleFinalizeTaskRun(d *dispatcher.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
		}

		var req struct {
			Taxi   taxiRequest  `json:"taxi"`
			Task   taskResponse `json:"task"`
			Failed bool         `json:"failed"`
		}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if req.Task.ID != id {
			return echo.NewHTTPError(http.StatusBadRequest, "task id in path does not match body")
		}

		t := &task.Task{
			ID:          req.Task.ID,
			TaskType:    req.Task.TaskType,
			TaskArgs:    req.Task.TaskArgs,
			DependsOn:   req.Task.DependsOn,
			Status:      req.Task.Status,
			ForTaxi:     req.Task.ForTaxi,
			ByTaxi:      req.Task.ByTaxi,
			IsRecurring: req.Task.IsRecurring,
			ReqTime:     req.Task.ReqTime,
			Priority:    req.Task.Priority,
			StartTime:   req.Task.StartTime,
		}

		if err := d.FinalizeTaskRun(c.Request().Context(), req.Taxi.toTaxi(), t, req.Failed); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, toTaskResponse(t))
	}
}

// jobRequest mirrors the job constructors in
// internal/task, since job pools arrive over the wire as plain JSON
// rather than constructed via the fluent Go API.
type jobRequest struct {
	Kind        task.TaskType  `json:"kind"`
	Args        task.TaskArgs  `json:"args"`
	DependsOn   []int          `json:"depends_on"` // indices into the same request's Jobs slice
	Trunk       bool           `json:"trunk"`
	Priority    int            `json:"priority"`
	ReqTime     int64          `json:"req_time"`
	IsRecurring bool           `json:"is_recurring"`
	ForTaxi     string         `json:"for_taxi,omitempty"`
}

// handleInitializeJobPool wraps initialize_new_job_pool (spec.md §6).
func handleInitializeJobPool(d *dispatcher.Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			Jobs   []jobRequest `json:"jobs"`
			Policy string       `json:"priority_method"`
		}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if req.Policy == "" {
			req.Policy = string(task.PolicyTree)
		}

		jobs := make([]*task.Job, len(req.Jobs))
		for i, jr := range req.Jobs {
			j := task.NewJob(jr.Kind, jr.Args)
			j.Trunk = jr.Trunk
			j.IsRecurring = jr.IsRecurring
			j.ReqTime = jr.ReqTime
			if jr.Priority != 0 {
				j.Priority = jr.Priority
			}
			if jr.ForTaxi != "" {
				j.WithForTaxi(jr.ForTaxi)
			}
			jobs[i] = j
		}
		for i, jr := range req.Jobs {
			deps := make([]*task.Job, 0, len(jr.DependsOn))
			for _, idx := range jr.DependsOn {
				if idx < 0 || idx >= len(jobs) {
					return echo.NewHTTPError(http.StatusBadRequest, "depends_on index out of range")
				}
				deps = append(deps, jobs[idx])
			}
			jobs[i].WithDependsOn(deps...)
		}

		tasks, err := d.InitializeNewJobPool(c.Request().Context(), jobs, task.PriorityPolicy(req.Policy))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		resp := make([]taskResponse, len(tasks))
		for i, t := range tasks {
			resp[i] = toTaskResponse(t)
		}
		return c.JSON(http.StatusCreated, resp)
	}
}
