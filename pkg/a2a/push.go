package a2a

/*
PushNotificationConfig describes one webhook endpoint for out-of-band task
event delivery. A task may hold several configs; ID is unique within a task.
*/
type PushNotificationConfig struct {
	ID             string              `json:"id,omitempty"`
	URL            string              `json:"url"`
	Token          *string             `json:"token,omitempty"`
	Authentication *AuthenticationInfo `json:"authentication,omitempty"`
}

type AuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials *string  `json:"credentials,omitempty"`
}

/*
TaskPushNotificationConfig binds a push config to the task it notifies for.
*/
type TaskPushNotificationConfig struct {
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// GetTaskPushConfigParams identifies one config of one task.
type GetTaskPushConfigParams struct {
	TaskID   string `json:"taskId"`
	ConfigID string `json:"pushNotificationConfigId"`
}

// ListTaskPushConfigParams identifies the task whose configs to list.
type ListTaskPushConfigParams struct {
	TaskID string `json:"taskId"`
}

// DeleteTaskPushConfigParams identifies one config of one task.
type DeleteTaskPushConfigParams struct {
	TaskID   string `json:"taskId"`
	ConfigID string `json:"pushNotificationConfigId"`
}
