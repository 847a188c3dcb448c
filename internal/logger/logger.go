package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes leveled trading activity to a per-session log file.
type Logger struct {
	name    string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// Level tags each log entry with the kind of event it records.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARN"
	LevelError   Level = "ERROR"
	LevelTrade   Level = "TRADE"
	LevelRisk    Level = "RISK"
	LevelStatus  Level = "STATUS"
)

// New creates a file logger under logDir named after the bot instance.
func New(logDir, name string) (*Logger, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02"))
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		name:    name,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  logDir,
	}
	l.writeSessionHeader()
	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
MULTI-ENGINE TRADING SESSION STARTED
================================================================================
Instance: %s
Started:  %s
================================================================================
`, l.name, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted entry at the given level.
func (l *Logger) Log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s", timestamp, level, message)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LevelInfo, format, args...)
}

func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LevelWarning, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LevelError, format, args...)
}

func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LevelTrade, format, args...)
}

func (l *Logger) Risk(format string, args ...interface{}) {
	l.Log(LevelRisk, format, args...)
}

func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LevelStatus, format, args...)
}

// LogRiskRejection records a rejected signal with the rule that failed.
func (l *Logger) LogRiskRejection(engineID, symbol, rule, reason string) {
	l.Risk("REJECTED %s %s: rule=%s reason=%s", engineID, symbol, rule, reason)
}

// LogEmergencyStop records an emergency-stop trip or reset at the highest
// severity. Operator is the identity behind a manual action, or "system".
func (l *Logger) LogEmergencyStop(active bool, operator, reason string) {
	if active {
		l.Error("EMERGENCY STOP ACTIVATED by %s: %s", operator, reason)
	} else {
		l.Error("EMERGENCY STOP RESET by %s: %s", operator, reason)
	}
}

// LogCircuitBreaker records a breaker level change.
func (l *Logger) LogCircuitBreaker(from, to string, drawdown float64) {
	l.Error("CIRCUIT BREAKER %s -> %s (drawdown %.2f%%)", from, to, drawdown*100)
}

// LogPortfolioStatus writes the periodic portfolio STATUS block.
func (l *Logger) LogPortfolioStatus(total, available, dailyPnL float64, openPositions, pendingOrders int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	block := fmt.Sprintf(`
[%s] [STATUS] ==================== PORTFOLIO STATUS ====================
Balance: $%.2f total / $%.2f available
Daily Realized PnL: $%.2f
Open Positions: %d | Pending Orders: %d
===========================================================`,
		timestamp, total, available, dailyPnL, openPositions, pendingOrders)

	l.logger.Println(block)
}

// Close writes the session footer and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	footer := fmt.Sprintf(`
================================================================================
SESSION ENDED: %s
================================================================================
`, time.Now().Format("2006-01-02 15:04:05"))
	l.logger.Print(footer)
	return l.logFile.Close()
}
