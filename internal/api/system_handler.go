package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/shaiso/Processa/internal/telemetry"
)

// SystemSampler снимает состояние хоста для /monitors/system.
type SystemSampler func(ctx context.Context) (*SystemInfo, error)

// SystemInfo — снимок хоста.
type SystemInfo struct {
	Host    HostInfo    `json:"host"`
	CPU     CPUInfo     `json:"cpu"`
	Memory  MemoryInfo  `json:"memory"`
	Process ProcessInfo `json:"process"`
}

// HostInfo — сведения о хосте.
type HostInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	KernelVersion string `json:"kernelVersion"`
	UptimeSec     uint64 `json:"uptimeSec"`
}

// CPUInfo — загрузка процессора.
type CPUInfo struct {
	Cores        int     `json:"cores"`
	UsagePercent float64 `json:"usagePercent"`
}

// MemoryInfo — память хоста.
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

// ProcessInfo — сведения о текущем процессе.
type ProcessInfo struct {
	PID        int    `json:"pid"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heapAlloc"`
}

// cpuSampleInterval — окно замера загрузки CPU.
const cpuSampleInterval = 200 * time.Millisecond

// HostSnapshot снимает состояние хоста через gopsutil.
func HostSnapshot(ctx context.Context) (*SystemInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	usage, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		return nil, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	info := &SystemInfo{
		Host: HostInfo{
			Hostname:      hi.Hostname,
			OS:            hi.OS,
			Platform:      hi.Platform,
			KernelVersion: hi.KernelVersion,
			UptimeSec:     hi.Uptime,
		},
		CPU: CPUInfo{Cores: cores},
		Memory: MemoryInfo{
			Total:       vm.Total,
			Available:   vm.Available,
			Used:        vm.Used,
			UsedPercent: vm.UsedPercent,
		},
		Process: ProcessInfo{
			PID:        os.Getpid(),
			Goroutines: runtime.NumGoroutine(),
			HeapAlloc:  ms.HeapAlloc,
		},
	}
	if len(usage) > 0 {
		info.CPU.UsagePercent = usage[0]
	}
	return info, nil
}

// Ping — GET /test/ping.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"processPid": os.Getpid(),
		"message":    "pong",
	})
}

// Healthz — GET /healthz.
//
// Проверки выполняются по порядку имён; первая упавшая даёт 503.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := h.checks[name](ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.New("timed out")
		}
		telemetry.FromContext(r.Context()).Warn("health check failed", "check", name, "error", err)
		Unavailable(w, name+": "+err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SystemMonitor — GET /monitors/system.
func (h *Handler) SystemMonitor(w http.ResponseWriter, r *http.Request) {
	info, err := h.system(r.Context())
	if err != nil {
		InternalError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, info)
}
