package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const logDir = "logs"

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// setupLogging writes logs to stdout and logs/server.log and makes the logger the default.
func setupLogging(level string) (*os.File, *slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, err
	}

	logFile, err := os.OpenFile(filepath.Join(logDir, "server.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	logger := slog.New(slog.NewTextHandler(multiWriter, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logFile, logger, nil
}

// compressLog archives the current log into logs/logs-<timestamp>.tar.gz.
func compressLog(dir string, now time.Time) (string, error) {
	source := filepath.Join(dir, "server.log")
	target := filepath.Join(dir, fmt.Sprintf("logs-%s.tar.gz", now.Format("20060102-150405")))

	file, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log: %w", err)
	}

	outFile, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	header, err := tar.FileInfoHeader(info, info.Name())
	if err != nil {
		return "", fmt.Errorf("tar header: %w", err)
	}
	header.Name = "server.log"

	if err := tw.WriteHeader(header); err != nil {
		return "", fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.CopyN(tw, file, header.Size); err != nil {
		return "", fmt.Errorf("compress log: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gw.Close(); err != nil {
		return "", err
	}
	return target, nil
}
