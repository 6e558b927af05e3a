package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/KodaTao/AgentPilot/pkg/task"
)

// RenderInput 计算一次执行的基础输入
// 配置了 InputTemplate 时渲染模板，否则直接使用静态 Input
// 替换是单趟的：占位符展开产生的文本不会被二次展开
func RenderInput(t *task.AgentTask, now time.Time) string {
	if t.InputTemplate == "" {
		return t.Input
	}

	lastRun := ""
	if t.LastRunAt != nil {
		lastRun = t.LastRunAt.UTC().Format(time.RFC3339)
	}
	nextRun := ""
	if t.NextRunAt != nil {
		nextRun = t.NextRunAt.UTC().Format(time.RFC3339)
	}

	// strings.Replacer 对输入只扫一遍，未知占位符原样保留
	r := strings.NewReplacer(
		"{{task.id}}", t.ID,
		"{{task.name}}", t.Name,
		"{{task.input}}", t.Input,
		"{{input}}", t.Input,
		"{{task.last_run_at}}", lastRun,
		"{{task.next_run_at}}", nextRun,
		"{{now.iso}}", now.UTC().Format(time.RFC3339),
		"{{now.unix_ms}}", strconv.FormatInt(now.UnixMilli(), 10),
	)
	return r.Replace(t.InputTemplate)
}
