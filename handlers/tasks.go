package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"tmdbhelper/services/scheduler"
)

// Tasks is the control surface of the warm-up scheduler.
type Tasks interface {
	GetTaskStatus() []scheduler.TaskStatus
	RunTaskNow(name string) error
}

type TasksHandler struct {
	tasks Tasks
}

func NewTasksHandler(tasks Tasks) *TasksHandler {
	return &TasksHandler{tasks: tasks}
}

// List returns every scheduled task with its last outcome.
// GET /tasks
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tasks": h.tasks.GetTaskStatus(),
	})
}

// Run starts a task immediately.
// POST /tasks/{name}/run
func (h *TasksHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	switch err := h.tasks.RunTaskNow(name); {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduler.ErrTaskRunning):
		jsonError(w, err.Error(), http.StatusConflict)
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}
