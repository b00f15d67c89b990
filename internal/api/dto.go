package api

// createTaskRequest is the body of POST /tasks.
type createTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Priority     *int   `json:"priority"`
	EpicID       string `json:"epicId"`
	ParentTaskID string `json:"parentTaskId"`
	Tags         string `json:"tags"`
}

// updateTaskRequest is the body of PATCH /tasks/{id}; absent fields are
// left untouched.
type updateTaskRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Status       *string `json:"status"`
	Priority     *int    `json:"priority"`
	EpicID       *string `json:"epicId"`
	ParentTaskID *string `json:"parentTaskId"`
	Tags         *string `json:"tags"`
}

// createEpicRequest is the body of POST /epics.
type createEpicRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    *int   `json:"priority"`
}

// updateEpicRequest is the body of PATCH /epics/{id}.
type updateEpicRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *int    `json:"priority"`
}

// createCommentRequest is the body of POST /tasks/{id}/comments.
type createCommentRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// createDependencyRequest is the body of POST /dependencies.
type createDependencyRequest struct {
	TaskID      string `json:"taskId"`
	DependsOnID string `json:"dependsOnId"`
}
