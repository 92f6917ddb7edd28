package utils

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var (
	// schemePattern 开头的http(s)协议,不区分大小写
	schemePattern = regexp.MustCompile(`(?i)^https?://`)
	// hostPattern 允许的主机名字符
	hostPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
)

// IsValidURL 抓取前的URL预检
// 拒绝: 不以http(s)://开头、任何位置含"@"、主机名含非法字符、主机名以"-"或"."开头结尾
func IsValidURL(rawURL string) bool {
	scheme := schemePattern.FindString(rawURL)
	if scheme == "" {
		return false
	}
	if strings.Contains(rawURL, "@") {
		return false
	}

	host := rawURL[len(scheme):]
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	// 端口不参与字符检查
	if i := strings.LastIndex(host, ":"); i >= 0 {
		port := host[i+1:]
		if port == "" || strings.Trim(port, "0123456789") != "" {
			return false
		}
		host = host[:i]
	}

	if host == "" || !hostPattern.MatchString(host) {
		return false
	}
	if strings.HasPrefix(host, "-") || strings.HasPrefix(host, ".") ||
		strings.HasSuffix(host, "-") || strings.HasSuffix(host, ".") {
		return false
	}
	return true
}

// HomepageURL 返回同源首页 scheme://host/
func HomepageURL(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return parsed.Scheme + "://" + parsed.Host + "/", true
}

// ReadLinesFromFile 从文件中读取非空、非注释行(行业关键字或公司链接列表)
func ReadLinesFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	lines := make([]string, 0)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("文件中没有有效内容: %s", filepath)
	}

	Infof("从文件加载了 %d 行", len(lines))
	return lines, nil
}
