package datastore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/observability/metrics"
)

// DefaultSlowQueryThreshold marks queries worth a warning.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// sqlUnknown is used when SQL operation or table cannot be determined.
const sqlUnknown = "unknown"

// SQL operation regex patterns
var (
	selectPattern = regexp.MustCompile(`(?i)^\s*SELECT\s+.*?\s+FROM\s+['"\x60]?(\w+)['"\x60]?`)
	insertPattern = regexp.MustCompile(`(?i)^\s*INSERT\s+INTO\s+['"\x60]?(\w+)['"\x60]?`)
	updatePattern = regexp.MustCompile(`(?i)^\s*UPDATE\s+['"\x60]?(\w+)['"\x60]?`)
	deletePattern = regexp.MustCompile(`(?i)^\s*DELETE\s+FROM\s+['"\x60]?(\w+)['"\x60]?`)
	createPattern = regexp.MustCompile(`(?i)^\s*CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?['"\x60]?(\w+)['"\x60]?`)
)

// parseSQLOperation extracts the operation type and table name from SQL query
func parseSQLOperation(sql string) (operation, table string) {
	sql = strings.TrimSpace(sql)

	patterns := []struct {
		op string
		re *regexp.Regexp
	}{
		{"select", selectPattern},
		{"insert", insertPattern},
		{"update", updatePattern},
		{"delete", deletePattern},
		{"create", createPattern},
	}
	for _, p := range patterns {
		if matches := p.re.FindStringSubmatch(sql); len(matches) > 1 {
			return p.op, matches[1]
		}
	}
	return sqlUnknown, sqlUnknown
}

// categorizeError categorizes database errors for metrics
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate"):
		return "constraint_violation"
	case strings.Contains(errStr, "foreign key"):
		return "foreign_key_violation"
	case strings.Contains(errStr, "database is locked"):
		return "database_locked"
	case strings.Contains(errStr, "connection"):
		return "connection_error"
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "disk full") || strings.Contains(errStr, "no space"):
		return "disk_full"
	default:
		return "other"
	}
}

// GormLogger routes GORM output to the datastore logger and records query
// metrics.
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
	log           logger.Logger
	recorder      metrics.Recorder
}

// NewGormLogger creates a GORM logger. A nil recorder disables metrics.
func NewGormLogger(log logger.Logger, slowThreshold time.Duration, level gormlogger.LogLevel, recorder metrics.Recorder) *GormLogger {
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	return &GormLogger{
		SlowThreshold: slowThreshold,
		LogLevel:      level,
		log:           log,
		recorder:      recorder,
	}
}

// LogMode implements logger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info implements logger.Interface
func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, data...))
	}
}

// Warn implements logger.Interface
func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

// Error implements logger.Interface
func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Error {
		l.log.Error("GORM error", logger.String("msg", fmt.Sprintf(msg, data...)))
		l.recorder.RecordError("gorm_internal", "gorm_error")
	}
}

// Trace implements logger.Interface
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	operation, table := parseSQLOperation(sql)
	name := operation + "_" + table
	l.recorder.RecordDuration(name, elapsed.Seconds())

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("Database query failed",
			logger.Error(err),
			logger.String("sql", sql),
			logger.Duration("duration", elapsed),
			logger.Int64("rows_affected", rows))
		l.recorder.RecordOperation(name, metrics.StatusError)
		l.recorder.RecordError(name, categorizeError(err))

	case elapsed > l.SlowThreshold && l.SlowThreshold != 0:
		l.log.Warn("Slow query detected",
			logger.String("sql", sql),
			logger.Duration("duration", elapsed),
			logger.Int64("rows_affected", rows),
			logger.Duration("threshold", l.SlowThreshold))
		l.recorder.RecordOperation(name, metrics.StatusSuccess)

	default:
		if l.LogLevel >= gormlogger.Info {
			l.log.Debug("Database query",
				logger.String("sql", sql),
				logger.Duration("duration", elapsed),
				logger.Int64("rows_affected", rows))
		}
		l.recorder.RecordOperation(name, metrics.StatusSuccess)
	}
}
