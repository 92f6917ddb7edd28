package models

// CompanyRecord 一条公司结果记录
// Link在单次运行中唯一,作为去重键
type CompanyRecord struct {
	Link    string `json:"link"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Email   string `json:"email"`
}

// CompanyTask 目录列表中的一个公司条目(tile)
type CompanyTask struct {
	Sector     string // 所属行业
	ProfileURL string // 目录站内部的公司详情页
	Page       int    // 所在列表页序号(从1开始)
}

// Confidence 联系页候选的置信度
type Confidence int

const (
	ConfidenceWeak   Confidence = iota + 1 // href或文本之一命中关键字
	ConfidenceStrong                       // href与文本同时命中
)

// String 返回置信度名称
func (c Confidence) String() string {
	switch c {
	case ConfidenceStrong:
		return "strong"
	case ConfidenceWeak:
		return "weak"
	default:
		return "none"
	}
}

// ContactPageCandidate 联系页候选链接
type ContactPageCandidate struct {
	Href       string
	Confidence Confidence
}

// Stage 发现流程中的阶段
type Stage string

const (
	StageProfilePage       Stage = "profile_page"
	StageCheapFetch        Stage = "cheap_fetch"
	StageContactPage       Stage = "contact_page"
	StageRendered          Stage = "rendered"
	StageRenderedContact   Stage = "rendered_contact"
	StageGateBypass        Stage = "gate_bypass"
	StageGateBypassContact Stage = "gate_bypass_contact"
)

// Outcome 单个公司的发现结果
type Outcome struct {
	Link       string      // 最终使用的公司链接(404回退后可能变为首页)
	Email      string      // 选中的主邮箱,未找到时为空
	Candidates []string    // 按发现顺序排列的候选邮箱
	Stage      Stage       // 找到邮箱的阶段,或失败前到达的最后阶段
	Err        *FetchError // 失败原因
}

// Resolved 是否找到邮箱
func (o Outcome) Resolved() bool {
	return o.Email != ""
}

// ErrorRecord 错误日志中的一行
type ErrorRecord struct {
	Error string `json:"error"`
	URL   string `json:"url"`
}
