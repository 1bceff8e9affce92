package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/marmos91/taskengine/internal/queuestore"
	"github.com/marmos91/taskengine/internal/registry"
	"github.com/marmos91/taskengine/internal/tasklog"
	"github.com/marmos91/taskengine/internal/taskerr"
	"github.com/marmos91/taskengine/internal/taskmeta"
	"github.com/marmos91/taskengine/internal/taskqueue"
	"github.com/marmos91/taskengine/internal/taskstate"
)

// TaskHandler implements the ten task operations of spec.md §6 as HTTP
// handlers, fronting the Task Metadata Store, the Processor Registry, and
// each task's durable queue store.
type TaskHandler struct {
	Meta         *taskmeta.Store
	Registry     *registry.Registry
	TaskLogs     *tasklog.Store
	QueueDBDir   string
	ClientLogDir string // app_log_dir: one file per data_source

	validate *validator.Validate
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(meta *taskmeta.Store, reg *registry.Registry, taskLogs *tasklog.Store, queueDBDir, clientLogDir string) *TaskHandler {
	return &TaskHandler{
		Meta:         meta,
		Registry:     reg,
		TaskLogs:     taskLogs,
		QueueDBDir:   queueDBDir,
		ClientLogDir: clientLogDir,
		validate:     validator.New(),
	}
}

// CreateTaskRequest is the create_task request body (spec.md §6).
type CreateTaskRequest struct {
	DataSource string          `json:"data_source" validate:"required"`
	TaskType   string          `json:"task_type" validate:"required"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// TaskResponse is the wire representation of a taskmeta.Task.
type TaskResponse struct {
	ID         uint            `json:"id"`
	Status     string          `json:"status"`
	DataSource string          `json:"data_source"`
	TaskType   string          `json:"task_type"`
	Params     json.RawMessage `json:"params,omitempty"`
}

func toTaskResponse(t *taskmeta.Task) TaskResponse {
	return TaskResponse{
		ID:         t.ID,
		Status:     string(t.Status),
		DataSource: t.DataSource,
		TaskType:   t.TaskType,
		Params:     t.Params,
	}
}

// Create implements POST /api/v1/tasks (create_task).
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}

	task, err := h.Meta.CreateTask(r.Context(), req.DataSource, req.TaskType, req.Params)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	WriteJSONCreated(w, toTaskResponse(task))
}

// ListResponse is the cursor-paginated list_tasks response shape.
type ListResponse struct {
	Items      []TaskResponse `json:"items"`
	NextCursor *uint          `json:"next_cursor,omitempty"`
}

// List implements GET /api/v1/tasks (list_tasks).
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseUintPtrQuery(r, "cursor")
	if err != nil {
		BadRequest(w, "invalid cursor: "+err.Error())
		return
	}
	limit := parseIntQuery(r, "limit", 50)

	tasks, next, err := h.Meta.ListTasks(r.Context(), cursor, limit)
	if err != nil {
		WriteTaskError(w, err)
		return
	}

	items := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, toTaskResponse(t))
	}
	WriteJSONOK(w, ListResponse{Items: items, NextCursor: next})
}

// Get implements GET /api/v1/tasks/{id} (get_task).
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	task, err := h.Meta.GetTask(r.Context(), id)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	WriteJSONOK(w, toTaskResponse(task))
}

// Execute implements POST /api/v1/tasks/{id}/execute (execute).
func (h *TaskHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	task, err := h.Meta.GetTask(r.Context(), id)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	if !taskstate.CanExecute(task.Status) {
		Conflict(w, "task cannot be executed from status "+string(task.Status))
		return
	}

	if err := h.Meta.UpdateStatus(r.Context(), id, taskstate.Pending); err != nil {
		WriteTaskError(w, err)
		return
	}
	if err := h.Registry.Dispatch(id); err != nil {
		WriteTaskError(w, err)
		return
	}
	WriteNoContent(w)
}

// Pause implements POST /api/v1/tasks/{id}/pause (pause).
func (h *TaskHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	proc, ok := h.Registry.Get(id)
	if !ok || proc == nil {
		BadRequest(w, "task is not currently running")
		return
	}

	if err := h.Meta.UpdateStatus(r.Context(), id, taskstate.Pausing); err != nil {
		WriteTaskError(w, err)
		return
	}
	proc.RequestPause()
	WriteNoContent(w)
}

// ProgressResponse mirrors taskprocessor.Progress over the wire.
type ProgressResponse struct {
	Success            int64  `json:"success"`
	Failure            int64  `json:"failure"`
	NoOutput           int64  `json:"no_output"`
	Remaining          int64  `json:"remaining"`
	CurrentSegmentSize int64  `json:"current_segment_size"`
	Status             string `json:"status"`
}

// Progress implements GET /api/v1/tasks/{id}/progress (get_progress). A
// task that is not currently live reports queue counts from its on-disk
// store with a zero segment size.
func (h *TaskHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	task, err := h.Meta.GetTask(r.Context(), id)
	if err != nil {
		WriteTaskError(w, err)
		return
	}

	if proc, ok := h.Registry.Get(id); ok && proc != nil {
		prog, err := proc.Progress()
		if err != nil {
			WriteTaskError(w, err)
			return
		}
		WriteJSONOK(w, ProgressResponse{
			Success: prog.Success, Failure: prog.Failure, NoOutput: prog.NoOutput,
			Remaining: prog.Remaining, CurrentSegmentSize: prog.CurrentSegmentSize,
			Status: string(task.Status),
		})
		return
	}

	qm, err := h.openQueue(id)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	defer qm.Close()

	counts, err := qm.Counts()
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	WriteJSONOK(w, ProgressResponse{
		Success: counts.Success, Failure: counts.Failure, NoOutput: counts.NoOutput,
		Remaining: counts.Remaining, Status: string(task.Status),
	})
}

// queueNames maps the REST {queue} path segment onto a queuestore.Name.
var queueNames = map[string]queuestore.Name{
	"inputs":    queuestore.Inputs,
	"successes": queuestore.Successes,
	"failures":  queuestore.Failures,
	"no-output": queuestore.InputsWithoutData,
}

func resolveQueueName(r *http.Request) (queuestore.Name, error) {
	name, ok := queueNames[chi.URLParam(r, "queue")]
	if !ok {
		return "", taskerr.NewValidation("unknown queue name")
	}
	return name, nil
}

// QueueItemResponse is the wire representation of a queuestore.QueueItem.
type QueueItemResponse struct {
	ID        uint            `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// QueueItemsResponse is the cursor-paginated list_queue_items response.
type QueueItemsResponse struct {
	Items      []QueueItemResponse `json:"items"`
	NextCursor *uint               `json:"next_cursor,omitempty"`
	Total      int64               `json:"total"`
}

// ListQueueItems implements GET /api/v1/tasks/{id}/queues/{queue} (list_queue_items).
func (h *TaskHandler) ListQueueItems(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	queue, err := resolveQueueName(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	cursor, err := parseUintPtrQuery(r, "cursor")
	if err != nil {
		BadRequest(w, "invalid cursor: "+err.Error())
		return
	}
	limit := parseIntQuery(r, "limit", 50)

	qm, err := h.openQueue(id)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	defer qm.Close()

	items, next, total, err := qm.Page(queue, cursor, limit)
	if err != nil {
		WriteTaskError(w, err)
		return
	}

	out := make([]QueueItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, QueueItemResponse{ID: it.ID, Data: it.Data, Timestamp: it.Timestamp.Format("2006-01-02T15:04:05Z07:00")})
	}
	WriteJSONOK(w, QueueItemsResponse{Items: out, NextCursor: next, Total: total})
}

// DeleteQueueItemsRequest carries the ids to delete (delete_queue_items).
type DeleteQueueItemsRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1"`
}

// DeleteQueueItems implements DELETE /api/v1/tasks/{id}/queues/{queue} (delete_queue_items).
func (h *TaskHandler) DeleteQueueItems(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	queue, err := resolveQueueName(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	var req DeleteQueueItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}

	qm, err := h.openQueue(id)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	defer qm.Close()

	removed, err := qm.DeleteByIDs(queue, req.IDs)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	WriteJSONOK(w, map[string]int64{"removed": removed})
}

// AddInputsRequest is the add_inputs request body.
type AddInputsRequest struct {
	Inputs []json.RawMessage `json:"inputs" validate:"required,min=1"`
}

// AddInputs implements POST /api/v1/tasks/{id}/inputs (add_inputs).
func (h *TaskHandler) AddInputs(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	var req AddInputsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}

	if _, err := h.Meta.GetTask(r.Context(), id); err != nil {
		WriteTaskError(w, err)
		return
	}

	qm, err := h.openQueue(id)
	if err != nil {
		WriteTaskError(w, err)
		return
	}
	defer qm.Close()

	if err := qm.AddInputs(req.Inputs); err != nil {
		WriteTaskError(w, err)
		return
	}
	WriteNoContent(w)
}

// DownloadLogs implements GET /api/v1/tasks/{id}/logs (download_logs).
func (h *TaskHandler) DownloadLogs(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if _, err := h.Meta.GetTask(r.Context(), id); err != nil {
		WriteTaskError(w, err)
		return
	}
	serveLogFile(w, h.TaskLogs.Path(id))
}

// DownloadClientLogs implements GET /api/v1/data-sources/{data_source}/logs
// (download_client_logs, spec.md §10 supplemented feature).
func (h *TaskHandler) DownloadClientLogs(w http.ResponseWriter, r *http.Request) {
	dataSource := chi.URLParam(r, "data_source")
	if dataSource == "" {
		BadRequest(w, "data_source is required")
		return
	}
	path := filepath.Join(h.ClientLogDir, dataSource+".log")
	serveLogFile(w, path)
}

func serveLogFile(w http.ResponseWriter, path string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			NotFound(w, "no log file found")
			return
		}
		InternalServerError(w, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.Copy(w, f)
}

func (h *TaskHandler) openQueue(taskID uint) (*taskqueue.Manager, error) {
	store, err := queuestore.Open(filepath.Join(h.QueueDBDir, strconv.FormatUint(uint64(taskID), 10)+".db"))
	if err != nil {
		return nil, err
	}
	return taskqueue.New(store), nil
}

func idParam(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, taskerr.NewValidation("invalid task id")
	}
	return uint(id), nil
}

func parseIntQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseUintPtrQuery(r *http.Request, key string) (*uint, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	v := uint(n)
	return &v, nil
}
