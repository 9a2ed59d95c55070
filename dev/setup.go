package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	devenv "insights-backend/dev/env"
	"insights-backend/internal/db"
)

func cmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fullCmd := name
	for _, a := range args {
		fullCmd += " "
		fullCmd += a
	}

	fmt.Printf("$ %s\n", fullCmd)
	return cmd.Run()
}

func CreateLocalStack() error {
	return cmd("docker", "compose", "-f", "dev/local_stack/docker-compose.yml", "up", "-d")
}

func CreateDevDB() error {
	path, err := devenv.ResolvePath("<dev_state>/insights.db")
	if err != nil {
		return err
	}
	fmt.Println("migrating database at", path)
	conn, err := db.OpenAndMigrate(db.Config{File: path})
	if err != nil {
		return err
	}
	return conn.Close()
}

const configTemplate = `{
  database: { file: "dev/.state/insights.db" },
  cache: %s,
  linkedin: {
    requests_per_second: 1,
    max_posts: 20,
    max_comments: 10,
    max_people: 20,
    dump_dir: "dev/.state/http",
  },
  session: {
    // username and password go in config.local.json5
    cookie_file: "dev/.state/cookies.json",
  },
  mirror: %s,
  serve: {
    addr: "127.0.0.1:8080",
    refresh_schedule: "@every 6h",
  },
}
`

const memoryCache = `{ backend: "memory", ttl_seconds: 3600 }`

const redisCache = `{ backend: "redis", ttl_seconds: 3600, redis: { addr: "127.0.0.1:6379" } }`

const noMirror = `{}`

const minioMirror = `{
    bucket: "insights",
    region: "us-east-1",
    endpoint: "http://127.0.0.1:9000",
    access_key_id: "insights",
    secret_access_key: "insights-secret",
    public_base_url: "http://127.0.0.1:9000/insights",
  }`

const telemetryTemplate = `{
  environment: "dev",
  traces: { endpoint: "http://127.0.0.1:4318" },
  metrics: { endpoint: "http://127.0.0.1:4318" },
}
`

const liveTestTemplate = `{
  // cookie export of a logged in account, see "insights session import"
  cookie_file: "",
  organization: "linkedin",
}
`

func writeIfAbsent(path, contents string) error {
	_, err := os.Stat(path)
	if err == nil {
		slog.Info("keeping existing file", "path", path)
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	fmt.Println("writing", path)
	return os.WriteFile(path, []byte(contents), 0o644)
}

func WriteConfigTemplates(stack bool) error {
	cache, mirror := memoryCache, noMirror
	if stack {
		cache, mirror = redisCache, minioMirror
	}
	err := writeIfAbsent("config.json5", fmt.Sprintf(configTemplate, cache, mirror))
	if err != nil {
		return err
	}
	if stack {
		err = writeIfAbsent("telemetry.json5", telemetryTemplate)
		if err != nil {
			return err
		}
	}
	livePath, err := devenv.ResolvePath("<dev_state>/linkedin_test.json5")
	if err != nil {
		return err
	}
	return writeIfAbsent(livePath, liveTestTemplate)
}

func PrintConfigLocations() {
	slog.Info("put credentials in config.local.json5 (never committed), the live scraper tests are skipped until dev/.state/linkedin_test.json5 names a cookie file.")
}
