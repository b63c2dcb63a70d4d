package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/response"
)

const (
	systemStatsInterval = 7 * time.Second
	queueProbeTimeout   = 2 * time.Second
)

// SystemHandler reports host, runtime and worker queue statistics.
type SystemHandler struct {
	rdb       *redis.Client
	startTime time.Time
	cpuModel  string
	log       zerolog.Logger

	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

func NewSystemHandler(rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		rdb:       rdb,
		startTime: time.Now(),
		cpuModel:  cpuModel(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
	h.prevIdle, h.prevTotal, _ = cpuTicks()
	return h
}

type queueDepths struct {
	Results int64 `json:"results"`
	Rewards int64 `json:"rewards"`
	Answers int64 `json:"answers"`
}

type systemStats struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	DiskUsedBytes  uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`

	LoadAvg [3]float64 `json:"load_avg"`

	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
	GoVersion   string `json:"go_version"`
	NumCPU      int    `json:"num_cpu"`
	CPUModel    string `json:"cpu_model"`

	Queues queueDepths `json:"queues"`
}

// GetStats godoc
// GET /api/v1/admin/system/stats
func (h *SystemHandler) GetStats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.collect(c.Request.Context()))
}

// StreamStats godoc
// GET /api/v1/admin/system/stream
// Pushes statistics as server-sent events until the client leaves.
func (h *SystemHandler) StreamStats(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(systemStatsInterval)
	defer ticker.Stop()

	h.log.Debug().Msg("Admin attached to system stream")
	h.push(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Debug().Msg("Admin detached from system stream")
			return
		case <-ticker.C:
			h.push(c)
		}
	}
}

func (h *SystemHandler) push(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	writeSSE(c, data)
}

func (h *SystemHandler) collect(ctx context.Context) systemStats {
	s := systemStats{
		Timestamp: time.Now().Unix(),
		Uptime:    formatUptime(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
		CPUModel:  h.cpuModel,
	}

	s.CPUPercent = h.cpuPercent()

	if total, avail, err := memInfo(); err == nil {
		s.MemTotalBytes = total
		s.MemUsedBytes = total - avail
	}
	if total, free, err := diskUsage("/"); err == nil {
		s.DiskTotalBytes = total
		s.DiskUsedBytes = total - free
	}
	s.LoadAvg, _ = loadAvg()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAlloc = ms.HeapAlloc
	s.NumGC = ms.NumGC
	s.AppRSSBytes, _ = processRSS()

	s.Queues = h.queueDepths(ctx)
	return s
}

func (h *SystemHandler) cpuPercent() float64 {
	idle, total, err := cpuTicks()
	if err != nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if total <= h.prevTotal {
		return 0
	}
	busy := 1 - float64(idle-h.prevIdle)/float64(total-h.prevTotal)
	h.prevIdle, h.prevTotal = idle, total
	return busy * 100
}

func (h *SystemHandler) queueDepths(parent context.Context) queueDepths {
	ctx, cancel := context.WithTimeout(parent, queueProbeTimeout)
	defer cancel()

	pipe := h.rdb.Pipeline()
	results := pipe.LLen(ctx, config.WorkerKey.PersistResultsQueue)
	rewards := pipe.LLen(ctx, config.WorkerKey.IssueRewardsQueue)
	answers := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)

	var q queueDepths
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Queue depth probe failed")
		return q
	}
	q.Results = results.Val()
	q.Rewards = rewards.Val()
	q.Answers = answers.Val()
	return q
}

// cpuTicks returns idle and total jiffies from the aggregate line of /proc/stat.
func cpuTicks() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, errors.New("unexpected /proc/stat format")
	}
	for i, f := range fields[1:] {
		v, _ := strconv.ParseUint(f, 10, 64)
		total += v
		if i == 3 {
			idle = v
		}
	}
	return idle, total, nil
}

func cpuModel() string {
	var model string
	_ = scanProcFile("/proc/cpuinfo", func(key, value string) bool {
		if key == "model name" {
			model = value
			return false
		}
		return true
	})
	if model == "" {
		return "Unknown"
	}
	return model
}

// memInfo returns MemTotal and MemAvailable in bytes.
func memInfo() (total, available uint64, err error) {
	err = scanProcFile("/proc/meminfo", func(key, value string) bool {
		switch key {
		case "MemTotal":
			total = kibToBytes(value)
		case "MemAvailable":
			available = kibToBytes(value)
		}
		return total == 0 || available == 0
	})
	return total, available, err
}

func processRSS() (uint64, error) {
	var rss uint64
	err := scanProcFile("/proc/self/status", func(key, value string) bool {
		if key == "VmRSS" {
			rss = kibToBytes(value)
			return false
		}
		return true
	})
	if err == nil && rss == 0 {
		err = errors.New("VmRSS not found")
	}
	return rss, err
}

func diskUsage(path string) (total, free uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Blocks * uint64(st.Bsize), st.Bavail * uint64(st.Bsize), nil
}

func loadAvg() ([3]float64, error) {
	var avg [3]float64
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return avg, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return avg, errors.New("unexpected /proc/loadavg format")
	}
	for i := range avg {
		avg[i], _ = strconv.ParseFloat(fields[i], 64)
	}
	return avg, nil
}

// scanProcFile feeds "key: value" lines to fn until it returns false.
func scanProcFile(path string, fn func(key, value string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		if !fn(strings.TrimSpace(key), strings.TrimSpace(value)) {
			break
		}
	}
	return scanner.Err()
}

// kibToBytes parses values like "16384000 kB".
func kibToBytes(value string) uint64 {
	num, _, _ := strings.Cut(value, " ")
	v, _ := strconv.ParseUint(num, 10, 64)
	return v * 1024
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
