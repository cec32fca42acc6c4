// Package config provides configuration management for the cement quality
// recorder. It loads settings from the environment and an optional YAML file,
// validates them and exposes typed sections to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. config.yaml (CQR_CONFIG_FILE, ./config.yaml, ./configs/config.yaml or
//	   next to the executable)
//	3. Default values from struct tags (lowest priority)
//
// # Environment Variables
//
// All environment variables use the CQR_ prefix followed by the section:
//
//	CQR_SERVER_PORT=8080
//	CQR_LOGGING_LEVEL=debug
//	CQR_STORE_SESSION_IDLE_TIMEOUT=2h
//	CQR_STORE_MAX_UPLOAD_BYTES=10485760
//	CQR_EVENTS_MQTT_BROKER=tcp://localhost:1883
//	CQR_CHARTS_WIDTH=1280
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Tests use config.Default() for a valid configuration that needs no
// environment.
package config
