package crawlers

import (
	"context"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// Control 页面上可点击的元素(<a>或<button>)
type Control struct {
	Index int    `json:"index"`
	Tag   string `json:"tag"`
	Text  string `json:"text"` // 小写、去除首尾空白的textContent
	Href  string `json:"href"` // 原始href属性
}

// cookieKeyword cookie同意按钮
const cookieKeyword = "cookie"

// GateKeywords 年龄/语言确认等访问门槛的多语言肯定词
var GateKeywords = []string{"yes", "si", "ja", "oui", "sim", "accept", "agree", "continue", "older", "i am", "enter",
	"english", "ok", "got it"}

// collectControlsJS 收集页面上的a/button,保存引用供activateControlJS按序号点击
const collectControlsJS = `() => {
	var els = document.querySelectorAll('a, button');
	var list = [];
	var result = [];
	for (var i = 0; i < els.length; i++) {
		var el = els[i];
		list.push(el);
		result.push({
			index: i,
			tag: el.tagName.toLowerCase(),
			text: (el.textContent || '').trim().toLowerCase(),
			href: el.getAttribute('href') || ''
		});
	}
	window.__mailfinderControls = list;
	return result;
}`

// activateControlJS 点击collectControlsJS记录的第index个元素
const activateControlJS = `(index) => {
	var list = window.__mailfinderControls || [];
	var el = list[index];
	if (!el || !el.isConnected) {
		throw new Error('control ' + index + ' not found');
	}
	el.click();
	return true;
}`

// gateAction 一次绕过尝试: 导航到链接或原地点击
type gateAction struct {
	control  Control
	navigate string
}

// planGateActions 生成绕过动作: 先是所有cookie按钮的点击,再是门槛关键字命中的元素,各自保持页面顺序
func planGateActions(controls []Control, currentURL string) []gateAction {
	base, _ := url.Parse(currentURL)
	actions := make([]gateAction, 0)
	gates := make([]gateAction, 0)
	for _, c := range controls {
		if strings.Contains(c.Text, cookieKeyword) {
			actions = append(actions, gateAction{control: c})
			continue
		}
		if !containsKeyword(c.Text, GateKeywords) {
			continue
		}
		action := gateAction{control: c}
		if target, ok := navigableTarget(base, c.Href); ok {
			action.navigate = target
		}
		gates = append(gates, action)
	}
	return append(actions, gates...)
}

// navigableTarget href可导航时返回绝对URL
func navigableTarget(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}

// bypassGates 尝试通过cookie横幅与年龄/语言确认页
// 按计划顺序执行,第一个成功的动作后停止
func bypassGates(ctx context.Context, tab browserTab) bool {
	controls, err := tab.Controls(ctx)
	if err != nil {
		utils.Debugf("收集页面按钮失败: %v", err)
		return false
	}

	current, _ := tab.CurrentURL(ctx)
	for _, action := range planGateActions(controls, current) {
		var err error
		if action.navigate != "" {
			err = tab.Navigate(ctx, action.navigate)
		} else {
			err = tab.Activate(ctx, action.control.Index)
		}
		if err == nil {
			utils.Debugf("门槛按钮已触发: %q", action.control.Text)
			return true
		}
		utils.Debugf("门槛按钮触发失败 %q: %v", action.control.Text, err)
	}
	return false
}

func containsKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
