package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunReport 运行报告
type RunReport struct {
	// 任务信息
	RunID  string     `json:"run_id"`
	Site   string     `json:"site"`
	Status TaskStatus `json:"status"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats   RunStats      `json:"stats"`
	Sectors []SectorStats `json:"sectors"`

	// 输出路径
	OutputDir  string   `json:"output_dir"`
	ErrorLog   string   `json:"error_log"`
	ResultCSVs []string `json:"result_csvs"`

	// 配置快照
	Crawl  CrawlConfig  `json:"crawl"`
	Fetch  FetchConfig  `json:"fetch"`
	Render RenderConfig `json:"render"`
}

// SectorStats 单个行业的统计
type SectorStats struct {
	Sector   string   `json:"sector"`
	Stats    RunStats `json:"stats"`
	Error    string   `json:"error,omitempty"`
	Complete bool     `json:"complete"` // 是否完整遍历了所有列表页
}

// NewRunReport 创建运行报告
func NewRunReport(site string) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Site:      site,
		Status:    TaskStatusRunning,
		StartTime: time.Now(),
		Sectors:   make([]SectorStats, 0),
	}
}

// Finish 结束报告并汇总统计
func (r *RunReport) Finish(status TaskStatus) {
	r.Status = status
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime).Seconds()

	total := RunStats{}
	for _, s := range r.Sectors {
		total.Merge(s.Stats)
	}
	total.Duration = r.Duration
	r.Stats = total
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
