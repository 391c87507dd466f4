package types

import (
	"encoding/json"
	"time"

	"yqhp/task-space/pkg/shared"
	"yqhp/task-space/pkg/task"
)

// ============================================================================
// Computer -> Space 请求/响应类型
// ============================================================================

// RegisterRequest 表示 Computer 注册请求
type RegisterRequest struct {
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Workers int               `json:"workers"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// RegisterResponse 表示注册响应
type RegisterResponse struct {
	Accepted   bool             `json:"accepted"`
	ComputerID int              `json:"computer_id,omitempty"`
	Shared     *shared.Envelope `json:"shared,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// StoreTasksRequest 表示一次拆分：子任务与后继任务
type StoreTasksRequest struct {
	Parent        task.ID       `json:"parent"`
	ParentElapsed time.Duration `json:"parent_elapsed,omitempty"`
	Children      []*task.Task  `json:"children"`
	Successor     *task.Task    `json:"successor"`
}

// StoreResultRequest 表示已执行任务的结果
type StoreResultRequest struct {
	Task *task.Task `json:"task"`
}

// SharedRequest 表示共享值更新
type SharedRequest struct {
	Shared       *shared.Envelope `json:"shared"`
	Origin       int              `json:"origin,omitempty"`
	CanPropagate bool             `json:"can_propagate,omitempty"`
	// Replace 为 true 时无条件替换共享值，用于开始新作业
	Replace bool `json:"replace,omitempty"`
}

// SharedResponse 表示共享值查询/更新结果
type SharedResponse struct {
	Adopted bool             `json:"adopted"`
	Shared  *shared.Envelope `json:"shared,omitempty"`
}

// ComputerIDRequest 表示分配 Computer ID
type ComputerIDRequest struct {
	ID int `json:"id"`
}

// ============================================================================
// Space 状态
// ============================================================================

// SpaceStatus 表示 Space 当前状态
type SpaceStatus struct {
	State           string            `json:"state"`
	Computers       []*ComputerReport `json:"computers"`
	OnlineComputers int               `json:"online_computers"`
	ReadyTasks      int               `json:"ready_tasks"`
	WaitingJoin     int               `json:"waiting_join"`
	Results         int               `json:"results"`
	Shared          json.RawMessage   `json:"shared,omitempty"`
}

// ComputerReport 表示 Space 眼中的单个 Computer
type ComputerReport struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	State       string `json:"state"`
	ActiveTasks int    `json:"active_tasks"`
	Dispatched  int64  `json:"dispatched"`
	LastSeen    int64  `json:"last_seen"`
}

// ComputerStatsResponse 表示 Computer 执行统计 (API 版本)
type ComputerStatsResponse struct {
	ComputerID int     `json:"computer_id"`
	Executed   int64   `json:"executed"`
	Split      int64   `json:"split"`
	Failed     int64   `json:"failed"`
	MinMs      float64 `json:"min_ms"`
	MaxMs      float64 `json:"max_ms"`
	MeanMs     float64 `json:"mean_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P90Ms      float64 `json:"p90_ms"`
	P99Ms      float64 `json:"p99_ms"`
	UptimeSec  float64 `json:"uptime_sec"`
}

// AckResponse 表示无返回值操作的确认
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse 表示健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse 表示错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
