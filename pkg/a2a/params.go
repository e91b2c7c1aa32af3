package a2a

import "time"

/*
MessageSendParams is the payload of message/send and message/stream.
*/
type MessageSendParams struct {
	Message       *Message                  `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

/*
MessageSendConfiguration tunes how the server handles a send request.
*/
type MessageSendConfiguration struct {
	AcceptedOutputModes    []string                `json:"acceptedOutputModes,omitempty"`
	HistoryLength          *int                    `json:"historyLength,omitempty"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	Blocking               *bool                   `json:"blocking,omitempty"`
}

// TaskIDParams is the base parameter set for task id operations.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams adds an optional history cap to a task lookup.
type TaskQueryParams struct {
	TaskIDParams
	HistoryLength *int `json:"historyLength,omitempty"`
}

/*
TaskListParams filters and paginates a task listing. Zero values mean
"no constraint"; PageSize falls back to the server default.
*/
type TaskListParams struct {
	ContextID            string     `json:"contextId,omitempty"`
	State                TaskState  `json:"status,omitempty"`
	StatusTimestampAfter *time.Time `json:"statusTimestampAfter,omitempty"`
	PageSize             int        `json:"pageSize,omitempty"`
	PageToken            string     `json:"pageToken,omitempty"`
	HistoryLength        *int       `json:"historyLength,omitempty"`
	IncludeArtifacts     bool       `json:"includeArtifacts,omitempty"`
}

// TaskList is one page of a task listing.
type TaskList struct {
	Tasks         []Task `json:"tasks"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}
