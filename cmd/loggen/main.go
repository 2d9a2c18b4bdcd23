// Command loggen writes structured JSON test traffic to a log file so
// the viewer can be exercised end to end, including rotation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

type event struct {
	module   string
	funcName string
	level    string
	message  string
	extra    map[string]any
}

func main() {
	filePath := flag.String("file", "application.log", "Log file to append to")
	rate := flag.Duration("rate", 200*time.Millisecond, "Delay between entries")
	count := flag.Int("count", 0, "Number of entries to write (0 = run forever)")
	rotate := flag.Bool("rotate", false, "Archive the current log file to log_history/ and exit")
	flag.Parse()

	if *rotate {
		if err := archiveLog(*filePath, "log_history"); err != nil {
			log.Fatalf("Rotate failed: %v", err)
		}
		return
	}

	f, err := os.OpenFile(*filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Open log file: %v", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	written := 0
	for *count == 0 || written < *count {
		if err := enc.Encode(makeEntry(nextEvent())); err != nil {
			log.Fatalf("Write entry: %v", err)
		}
		written++
		time.Sleep(*rate)
	}
	log.Printf("Wrote %d entries to %s", written, *filePath)
}

// makeEntry builds one JSON log record in the shape the viewer's
// decoder indexes: asctime, name, levelname, module, funcName, message
// plus event-specific extras.
func makeEntry(ev event) map[string]any {
	entry := map[string]any{
		"asctime":   time.Now().Format("2006-01-02 15:04:05"),
		"name":      ev.funcName,
		"levelname": ev.level,
		"module":    ev.module,
		"funcName":  ev.funcName,
		"message":   ev.message,
	}
	for k, v := range ev.extra {
		entry[k] = v
	}
	return entry
}

func nextEvent() event {
	switch rand.Intn(3) {
	case 0:
		return authEvent()
	case 1:
		return databaseEvent()
	default:
		return apiEvent()
	}
}

func authEvent() event {
	userID := fmt.Sprintf("user_%d", 100+rand.Intn(900))
	if rand.Float64() > 0.3 {
		return event{
			module: "auth", funcName: "login", level: "INFO",
			message: "User login successful",
			extra: map[string]any{
				"user_id":    userID,
				"ip_address": fmt.Sprintf("192.168.1.%d", 1+rand.Intn(255)),
				"session_id": fmt.Sprintf("sess_%d", 1000+rand.Intn(9000)),
			},
		}
	}
	return event{
		module: "auth", funcName: "login", level: "WARNING",
		message: "User login failed",
		extra: map[string]any{
			"user_id":       userID,
			"reason":        "invalid_credentials",
			"attempt_count": 1 + rand.Intn(5),
		},
	}
}

func databaseEvent() event {
	queryType := []string{"SELECT", "INSERT", "UPDATE", "DELETE"}[rand.Intn(4)]
	if rand.Float64() > 0.1 {
		return event{
			module: "database", funcName: "query", level: "DEBUG",
			message: "Database query executed",
			extra: map[string]any{
				"query_type":    queryType,
				"duration_ms":   rand.Intn(500),
				"rows_affected": 1 + rand.Intn(100),
			},
		}
	}
	return event{
		module: "database", funcName: "query", level: "ERROR",
		message: "Database query failed",
		extra: map[string]any{
			"query_type": queryType,
			"error_code": fmt.Sprintf("ERR_%d", 100+rand.Intn(500)),
		},
	}
}

func apiEvent() event {
	status := []int{200, 200, 200, 201, 400, 404, 500}[rand.Intn(7)]
	level := "INFO"
	if status >= 500 {
		level = "ERROR"
	} else if status >= 400 {
		level = "WARNING"
	}
	return event{
		module: "api", funcName: "request", level: level,
		message: "Request handled",
		extra: map[string]any{
			"method":      []string{"GET", "POST", "PUT"}[rand.Intn(3)],
			"status":      status,
			"duration_ms": rand.Intn(250),
		},
	}
}

// archiveLog copies the log file into historyDir with a timestamped
// name and removes the original, so the next writer recreates it with
// a new identity — a real rotation as the tailer sees one.
func archiveLog(filePath, historyDir string) error {
	if _, err := os.Stat(filePath); err != nil {
		return err
	}
	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return err
	}

	stamp := time.Now().Format("20060102_150405")
	archived := filepath.Join(historyDir, fmt.Sprintf("app_%s.log", stamp))

	src, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(archived)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		return err
	}
	log.Printf("Archived %s -> %s", filePath, archived)
	return nil
}
