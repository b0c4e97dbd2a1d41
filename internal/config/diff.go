package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/Vampouille/georchestra/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and safe
// structured attrs for logging. Tokens are never included, only whether one
// is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	if oldCfg.TaskEngine != newCfg.TaskEngine {
		changed = append(changed, "task_engine")
		te := newCfg.TaskEngine
		attrs = append(attrs,
			logx.Int("task_engine.max_extractions", te.MaxExtractions),
			logx.Int("task_engine.min_threads", te.MinThreads),
			logx.String("task_engine.idle_timeout", strings.TrimSpace(te.IdleTimeout)),
			logx.Int("task_engine.history_size", te.HistorySize),
		)
	}

	if trimmed(oldCfg.Scheduler) != trimmed(newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.expiry", strings.TrimSpace(newCfg.Scheduler.Expiry)),
			logx.String("scheduler.cleanup_schedule", strings.TrimSpace(newCfg.Scheduler.CleanupSchedule)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	var oT, nT TokenSweepConfig
	if oldCfg.TokenSweep != nil {
		oT = *oldCfg.TokenSweep
	}
	if newCfg.TokenSweep != nil {
		nT = *newCfg.TokenSweep
	}
	if oT != nT {
		changed = append(changed, "token_sweep")
		attrs = append(attrs,
			logx.Bool("token_sweep.enabled", nT.Enabled),
			logx.String("token_sweep.schedule", strings.TrimSpace(nT.Schedule)),
			logx.String("token_sweep.delay", strings.TrimSpace(nT.Delay)),
		)
	}

	oA, nA := oldCfg.Admin, newCfg.Admin
	oTokenSet, nTokenSet := strings.TrimSpace(oA.Token) != "", strings.TrimSpace(nA.Token) != ""
	oA.Token, nA.Token = "", ""
	if oA != nA || oTokenSet != nTokenSet {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", nA.Enabled),
			logx.String("admin.addr", strings.TrimSpace(nA.Addr)),
			logx.Bool("admin.token_set", nTokenSet),
			logx.Bool("admin.allow_insecure", nA.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func trimmed(s SchedulerConfig) SchedulerConfig {
	return SchedulerConfig{
		Expiry:          strings.TrimSpace(s.Expiry),
		CleanupSchedule: strings.TrimSpace(s.CleanupSchedule),
		Timezone:        strings.TrimSpace(s.Timezone),
	}
}
