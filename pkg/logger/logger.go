package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var activeRotatingWriter *DailyRotatingWriter

// SetupLogging configures application logging to stdout and a daily rotating file.
func SetupLogging(logDir string) (*log.Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %v", err)
	}

	fileWriter, err := NewDailyRotatingWriter(logDir, "don-confiado-%s.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %v", err)
	}

	activeRotatingWriter = fileWriter

	multiWriter := io.MultiWriter(os.Stdout, fileWriter)
	logger := log.New(multiWriter, "", log.LstdFlags|log.Lshortfile)

	today := time.Now().Format("2006-01-02")
	logger.Printf("Logging initialized to %s", filepath.Join(logDir, fmt.Sprintf("don-confiado-%s.log", today)))

	return logger, nil
}

// SetupFallbackLogger creates a simple console logger when file logging fails.
func SetupFallbackLogger() *log.Logger {
	fmt.Printf("Failed to set up file logging, using console logging only\n")
	return log.New(os.Stdout, "", log.LstdFlags|log.Lshortfile)
}

// GetWriter returns the writer for the logger.
func GetWriter(logger *log.Logger) io.Writer {
	return logger.Writer()
}

// CloseLogger properly closes the log file.
func CloseLogger() error {
	if activeRotatingWriter != nil {
		return activeRotatingWriter.Close()
	}
	return nil
}
