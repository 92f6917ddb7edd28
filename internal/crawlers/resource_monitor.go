package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/MailFinder/internal/models"
)

const (
	mb = 1024 * 1024
	// defaultTabMemory 单个标签页的平均内存消耗
	defaultTabMemory = 150 * mb
	// maxTabsCacheTTL CalculateMaxTabs结果的缓存时间
	maxTabsCacheTTL = time.Second
)

// ResourceMonitorConfig 资源监控器配置(字节)
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存
	SafetyThreshold     int64 // 扣除保留后至少还要剩下的内存
	CPULoadThreshold    int   // CPU负载阈值(%),<=0或>=200表示禁用
	MaxTabsLimit        int   // 绝对最大标签页数
	TabMemoryUsage      int64
}

// ResourceMonitorConfigFrom 将MB单位的配置转换为监控器配置
// 标签页上限取配置上限与会话上限的较小值
func ResourceMonitorConfigFrom(cfg models.ResourceConfig, maxSessions int) ResourceMonitorConfig {
	limit := cfg.MaxTabsLimit
	if limit <= 0 || (maxSessions > 0 && maxSessions < limit) {
		limit = maxSessions
	}
	return ResourceMonitorConfig{
		SafetyReserveMemory: int64(cfg.SafetyReserveMemory) * mb,
		SafetyThreshold:     int64(cfg.SafetyThreshold) * mb,
		CPULoadThreshold:    cfg.CPULoadThreshold,
		MaxTabsLimit:        limit,
		TabMemoryUsage:      defaultTabMemory,
	}
}

// resourceSample 一次采样结果
type resourceSample struct {
	available uint64  // 可用内存(字节)
	cpu       float64 // 所有核心平均使用率(%)
}

// ResourceMonitor 系统资源监控器
// 后台定期采样内存与CPU,rod引擎据此限制标签页数量
type ResourceMonitor struct {
	config ResourceMonitorConfig

	sampleMemory func() (uint64, error)
	sampleCPU    func() (float64, error)

	mu       sync.RWMutex
	last     resourceSample
	maxTabs  int
	cachedAt time.Time

	stop context.CancelFunc
}

// NewResourceMonitor 创建资源监控器并立即采样一次内存
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	return newResourceMonitor(config, systemMemory, systemCPU)
}

func newResourceMonitor(config ResourceMonitorConfig, memFn func() (uint64, error), cpuFn func() (float64, error)) *ResourceMonitor {
	if config.TabMemoryUsage <= 0 {
		config.TabMemoryUsage = defaultTabMemory
	}
	if config.MaxTabsLimit < 1 {
		config.MaxTabsLimit = 1
	}

	rm := &ResourceMonitor{config: config, sampleMemory: memFn, sampleCPU: cpuFn}
	available, err := memFn()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,按2GB可用估算")
		available = 2 << 30
	}
	rm.last.available = available
	log.Debug().Msgf("系统可用内存: %.2f GB", float64(available)/(1<<30))
	return rm
}

func systemMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func systemCPU() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("无CPU采样数据")
	}
	return percentages[0], nil
}

// StartMonitoring 启动后台采样,重复调用无效
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.stop = cancel
	go rm.loop(ctx, interval)
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stop != nil {
		rm.stop()
		rm.stop = nil
	}
}

func (rm *ResourceMonitor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.sample()
		}
	}
}

// sample 采样失败时保留上一次的值
func (rm *ResourceMonitor) sample() {
	available, memErr := rm.sampleMemory()
	usage, cpuErr := rm.sampleCPU()
	if cpuErr != nil {
		log.Debug().Err(cpuErr).Msg("获取CPU使用率失败")
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if memErr == nil {
		rm.last.available = available
	}
	if cpuErr == nil {
		rm.last.cpu = usage
	}
}

// usableMemory 扣除安全保留后的可用内存
func (rm *ResourceMonitor) usableMemory() int64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return int64(rm.last.available) - rm.config.SafetyReserveMemory
}

// CalculateMaxTabs 当前允许的最大标签页数,至少为1
// 取内存、CPU核数与配置上限三者的最小值
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	rm.mu.RLock()
	if rm.maxTabs > 0 && time.Since(rm.cachedAt) < maxTabsCacheTTL {
		cached := rm.maxTabs
		rm.mu.RUnlock()
		return cached
	}
	rm.mu.RUnlock()

	byMemory := 1
	if usable := rm.usableMemory(); usable > rm.config.SafetyThreshold {
		byMemory = int((usable - rm.config.SafetyThreshold) / rm.config.TabMemoryUsage)
	}
	result := max(min(byMemory, runtime.NumCPU(), rm.config.MaxTabsLimit), 1)

	rm.mu.Lock()
	rm.maxTabs, rm.cachedAt = result, time.Now()
	rm.mu.Unlock()
	return result
}

// CheckResourceAvailability 检查当前资源是否允许再创建一个标签页
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	if usable := rm.usableMemory(); usable < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(当前%dMB)", usable/mb)
	}

	threshold := rm.config.CPULoadThreshold
	if threshold > 0 && threshold < 200 {
		rm.mu.RLock()
		usage := rm.last.cpu
		rm.mu.RUnlock()
		if usage > float64(threshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
		}
	}
	return true, ""
}
