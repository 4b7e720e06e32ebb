// Command seed_schedule loads a weekly timetable from a JSON file and pushes
// every schedule template to a running API instance. It is meant for first
// deployments and for resetting staging environments.
//
// Usage:
//
//	go run ./scripts/seed_schedule -base http://localhost:8080 -token $ADMIN_TOKEN -file scripts/seed_schedule/timetable.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type template struct {
	CategoryID           string  `json:"category_id"`
	CategoryType         string  `json:"category_type"`
	Name                 string  `json:"name"`
	DayOfWeek            int     `json:"day_of_week"`
	StartTime            string  `json:"start_time"`
	SlotDurationMinutes  int     `json:"slot_duration_minutes"`
	MaxConcurrentPerSlot int     `json:"max_concurrent_per_slot"`
	RotationType         string  `json:"rotation_type"`
	RotationPeriodWeeks  *int    `json:"rotation_period_weeks,omitempty"`
	AnchorDate           *string `json:"anchor_date,omitempty"`
	DeadlineTime         *string `json:"deadline_time,omitempty"`
	WarningMessage       *string `json:"warning_message,omitempty"`
}

type timetable struct {
	Templates []template `json:"templates"`
}

func main() {
	var (
		base    string
		token   string
		file    string
		timeout time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&token, "token", "", "Admin access token")
	flag.StringVar(&file, "file", filepath.Join("scripts", "seed_schedule", "timetable.json"), "Path to JSON timetable file")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if token == "" {
		log.Fatal("an admin -token is required")
	}

	templates, err := loadTimetable(file)
	if err != nil {
		log.Fatalf("failed to load timetable: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	url := strings.TrimRight(base, "/") + "/api/v1/schedule-templates"

	failures := 0
	for _, tpl := range templates {
		if err := pushTemplate(client, url, token, tpl); err != nil {
			failures++
			fmt.Printf("[FAIL] %s day %d: %v\n", tpl.CategoryID, tpl.DayOfWeek, err)
			continue
		}
		fmt.Printf("[OK]   %s day %d %s\n", tpl.CategoryID, tpl.DayOfWeek, tpl.StartTime)
	}

	fmt.Printf("Seeded %d of %d templates\n", len(templates)-failures, len(templates))
	if failures > 0 {
		os.Exit(1)
	}
}

func loadTimetable(path string) ([]template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tt timetable
	if err := json.Unmarshal(data, &tt); err != nil {
		return nil, err
	}
	if len(tt.Templates) == 0 {
		return nil, fmt.Errorf("no templates defined in %s", path)
	}
	return tt.Templates, nil
}

func pushTemplate(client *http.Client, url, token string, tpl template) error {
	payload, err := json.Marshal(tpl)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
