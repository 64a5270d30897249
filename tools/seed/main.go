package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	baseURL      string
	token        string
	machineCount int
	hours        int
	stepMinutes  int
	anomalyRate  float64
	seed         int64
}

type parameterProfile struct {
	name  string
	mean  float64
	swing float64
	noise float64
	drift float64
}

var typeProfiles = map[string][]parameterProfile{
	"lathe": {
		{name: "temperature", mean: 70, swing: 3, noise: 1.5, drift: 0.02},
		{name: "vibration", mean: 2.5, swing: 0.3, noise: 0.15, drift: 0.001},
		{name: "efficiency", mean: 92, swing: 1, noise: 0.8, drift: -0.01},
	},
	"mill": {
		{name: "temperature", mean: 75, swing: 4, noise: 2, drift: 0.03},
		{name: "spindle_load", mean: 60, swing: 8, noise: 3, drift: 0.05},
		{name: "efficiency", mean: 90, swing: 1.5, noise: 1, drift: -0.015},
	},
	"injector": {
		{name: "temperature", mean: 210, swing: 6, noise: 2.5, drift: 0.04},
		{name: "pressure", mean: 140, swing: 5, noise: 2, drift: 0.02},
		{name: "cycle_time", mean: 32, swing: 1, noise: 0.5, drift: 0.01},
	},
	"robot": {
		{name: "joint_torque", mean: 45, swing: 4, noise: 1.5, drift: 0.01},
		{name: "positioning_error", mean: 0.08, swing: 0.01, noise: 0.005, drift: 0.0002},
	},
	"compressor": {
		{name: "pressure", mean: 8.5, swing: 0.4, noise: 0.2, drift: -0.002},
		{name: "power_draw", mean: 55, swing: 5, noise: 2, drift: 0.03},
	},
}

func main() {
	cfg := parseConfig()
	if cfg.machineCount <= 0 {
		log.Fatal("machine-count must be > 0")
	}
	if cfg.hours <= 0 {
		log.Fatal("hours must be > 0")
	}
	if cfg.stepMinutes <= 0 {
		log.Fatal("step-minutes must be > 0")
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	client := &http.Client{Timeout: 30 * time.Second}
	ctx := context.Background()

	types := make([]string, 0, len(typeProfiles))
	for name := range typeProfiles {
		types = append(types, name)
	}

	machineIDs := make([]string, 0, cfg.machineCount)
	machineTypes := make(map[string]string, cfg.machineCount)
	for i := 1; i <= cfg.machineCount; i++ {
		machineType := types[i%len(types)]
		id := fmt.Sprintf("mach-%s-%03d", machineType, i)
		if err := registerMachine(ctx, client, cfg, id, machineType); err != nil {
			log.Fatalf("register machine %s: %v", id, err)
		}
		machineIDs = append(machineIDs, id)
		machineTypes[id] = machineType
	}
	log.Printf("registered %d machines", len(machineIDs))

	start := time.Now().UTC().Add(-time.Duration(cfg.hours) * time.Hour)
	step := time.Duration(cfg.stepMinutes) * time.Minute
	total := 0
	for at := start; at.Before(time.Now().UTC()); at = at.Add(step) {
		batch := make([]map[string]any, 0, len(machineIDs)*3)
		for _, id := range machineIDs {
			for _, profile := range typeProfiles[machineTypes[id]] {
				value := sample(profile, at.Sub(start), rng)
				if cfg.anomalyRate > 0 && rng.Float64() < cfg.anomalyRate {
					value += profile.mean * 0.25
				}
				batch = append(batch, map[string]any{
					"machine_id": id,
					"parameter":  profile.name,
					"value":      value,
					"timestamp":  at.Format(time.RFC3339),
				})
			}
		}
		if err := postBatch(ctx, client, cfg, batch); err != nil {
			log.Fatalf("post batch at %s: %v", at.Format(time.RFC3339), err)
		}
		total += len(batch)
	}
	log.Printf("seed completed: %d readings", total)
}

func sample(p parameterProfile, elapsed time.Duration, rng *rand.Rand) float64 {
	hours := elapsed.Hours()
	cycle := p.swing * math.Sin(2*math.Pi*hours/24)
	noise := rng.NormFloat64() * p.noise
	return p.mean + cycle + noise + p.drift*hours
}

func registerMachine(ctx context.Context, client *http.Client, cfg config, id, machineType string) error {
	body := map[string]any{
		"id":   id,
		"name": strings.ToUpper(machineType[:1]) + machineType[1:] + " " + id,
		"type": machineType,
	}
	return post(ctx, client, cfg, "/api/v1/machines", body)
}

func postBatch(ctx context.Context, client *http.Client, cfg config, batch []map[string]any) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return send(ctx, client, cfg, "/api/v1/readings/batch", payload)
}

func post(ctx context.Context, client *http.Client, cfg config, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return send(ctx, client, cfg, path, payload)
}

func send(ctx context.Context, client *http.Client, cfg config, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(cfg.baseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d for %s", resp.StatusCode, path)
	}
	return nil
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.token, "token", envOrDefault("SEED_TOKEN", ""), "bearer token for authenticated APIs")
	flag.IntVar(&cfg.machineCount, "machine-count", envOrInt("MACHINE_COUNT", 10), "number of machines to register")
	flag.IntVar(&cfg.hours, "hours", envOrInt("HOURS", 48), "hours of history to generate")
	flag.IntVar(&cfg.stepMinutes, "step-minutes", envOrInt("STEP_MINUTES", 5), "minutes between readings")
	flag.Float64Var(&cfg.anomalyRate, "anomaly-rate", 0.002, "probability of an injected spike per reading")
	flag.Int64Var(&cfg.seed, "seed", 1, "random seed")
	flag.Parse()
	return cfg
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
