package models

import (
	"errors"
	"net"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://www.europages.co.uk/en/search?q=", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrawlConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  CrawlConfig
		wantErr bool
	}{
		{"有效配置", CrawlConfig{Workers: 4, MaxPages: 0}, false},
		{"并发过小", CrawlConfig{Workers: 0}, true},
		{"并发过大", CrawlConfig{Workers: 65}, true},
		{"页数为负", CrawlConfig{Workers: 2, MaxPages: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchConfig_Validate(t *testing.T) {
	valid := FetchConfig{Timeout: 10, Retries: 3, MaxRedirects: 10}
	if err := valid.Validate(); err != nil {
		t.Fatalf("有效配置验证失败: %v", err)
	}
	if got := valid.TimeoutDuration().Seconds(); got != 10 {
		t.Errorf("TimeoutDuration() = %v, want 10s", got)
	}

	noRedirects := valid
	noRedirects.MaxRedirects = 0
	if err := noRedirects.Validate(); err == nil {
		t.Error("重定向上限为0应验证失败")
	}

	negativeRate := valid
	negativeRate.RateLimit = -1
	if err := negativeRate.Validate(); err == nil {
		t.Error("负数限速应验证失败")
	}
}

func TestRenderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RenderConfig
		wantErr bool
	}{
		{"rod引擎", RenderConfig{Enabled: true, Engine: EngineRod, MaxSessions: 2, Timeout: 10}, false},
		{"chromedp引擎", RenderConfig{Enabled: true, Engine: EngineChromedp, MaxSessions: 1, Timeout: 5}, false},
		{"未知引擎", RenderConfig{Enabled: true, Engine: "selenium", MaxSessions: 1, Timeout: 5}, true},
		{"禁用时不校验", RenderConfig{Enabled: false, Engine: "selenium"}, false},
		{"会话数为0", RenderConfig{Enabled: true, Engine: EngineRod, MaxSessions: 0, Timeout: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSiteConfig_Validate(t *testing.T) {
	site := SiteConfig{
		StartURL:  "https://www.europages.co.uk",
		SearchURL: "https://www.europages.co.uk/en/search?q=",
		TileClass: "tile",
		LinkClass: "website-button",
	}
	if err := site.Validate(); err != nil {
		t.Fatalf("有效站点配置验证失败: %v", err)
	}

	site.TileClass = " "
	if err := site.Validate(); err == nil {
		t.Error("缺少tile_class应验证失败")
	}
}

func TestFetchError(t *testing.T) {
	t.Run("状态码错误信息", func(t *testing.T) {
		err := NewStatusError("https://acme.com", 404)
		if err.Error() != "HTTP 404" {
			t.Errorf("Error() = %q, want %q", err.Error(), "HTTP 404")
		}
	})

	t.Run("支持errors.As解包", func(t *testing.T) {
		cause := &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}
		err := NewFetchError(KindDNSFailure, "https://nowhere.invalid", cause)

		var dnsErr *net.DNSError
		if !errors.As(err, &dnsErr) {
			t.Error("期望能解包出 *net.DNSError")
		}
	})

	t.Run("错误日志抑制策略", func(t *testing.T) {
		tests := []struct {
			err  *FetchError
			want bool
		}{
			{NewFetchError(KindDNSFailure, "u", nil), true},
			{NewStatusError("u", 503), true},
			{NewStatusError("u", 500), true},
			{NewStatusError("u", 404), false},
			{NewFetchError(KindConnection, "u", errors.New("refused")), false},
			{&FetchError{Kind: KindNotFound}, false},
		}
		for _, tt := range tests {
			if got := tt.err.Suppressed(); got != tt.want {
				t.Errorf("%v.Suppressed() = %v, want %v", tt.err, got, tt.want)
			}
		}
	})
}

func TestRunReport_Finish(t *testing.T) {
	report := NewRunReport("europages")
	if report.RunID == "" {
		t.Fatal("运行ID不应为空")
	}

	report.Sectors = append(report.Sectors,
		SectorStats{Sector: "winery", Stats: RunStats{Companies: 3, Resolved: 2, Failed: 1}},
		SectorStats{Sector: "software", Stats: RunStats{Companies: 2, Resolved: 1, Failed: 1}},
	)
	report.Finish(TaskStatusCompleted)

	if report.Stats.Companies != 5 || report.Stats.Resolved != 3 || report.Stats.Failed != 2 {
		t.Errorf("汇总统计错误: %+v", report.Stats)
	}
	if report.Status != TaskStatusCompleted {
		t.Errorf("Status = %v, want %v", report.Status, TaskStatusCompleted)
	}

	data, err := report.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	var decoded RunReport
	if err := decoded.FromJSON(data); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if decoded.RunID != report.RunID {
		t.Errorf("解码后的RunID不匹配: got %v, want %v", decoded.RunID, report.RunID)
	}
}

func TestOutcome_Resolved(t *testing.T) {
	if (Outcome{}).Resolved() {
		t.Error("空结果不应视为已解决")
	}
	if !(Outcome{Email: "info@acme.com"}).Resolved() {
		t.Error("有邮箱的结果应视为已解决")
	}
}
