package config

import (
	"os"
	"strconv"
)

const DATABASE_TYPE = "CREDITFLOW_DATABASE_TYPE"
const DATABASE_URL = "CREDITFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "CREDITFLOW_DATABASE_SQLLITE_FILE_NAME"
const REDIS_ADDR = "CREDITFLOW_REDIS_ADDR"
const REDIS_NAMESPACE = "CREDITFLOW_REDIS_NAMESPACE"
const SERVER_WEB_PORT = "CREDITFLOW_SERVER_WEB_PORT"
const ENGINE_MAX_ACTIVE = "CREDITFLOW_ENGINE_MAX_ACTIVE"     //cap on concurrently driven workflows, starts beyond it queue
const ENGINE_MAX_ATTEMPTS = "CREDITFLOW_ENGINE_MAX_ATTEMPTS" //evaluator attempts per stage before the workflow errors
const ENGINE_RETRY_INTERVAL_MIN = "CREDITFLOW_ENGINE_RETRY_INTERVAL_MIN"
const ENGINE_RETRY_INTERVAL_MAX = "CREDITFLOW_ENGINE_RETRY_INTERVAL_MAX"
const ENGINE_CHECKPOINT_WRITE_RETRIES = "CREDITFLOW_ENGINE_CHECKPOINT_WRITE_RETRIES"
const ANALYSIS_CONFIG_FILE = "CREDITFLOW_ANALYSIS_CONFIG_FILE"
const STATUS_CACHE_TTL = "CREDITFLOW_STATUS_CACHE_TTL"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"
const DATABASE_TYPE_REDIS = "REDIS"
const DATABASE_TYPE_MEMORY = "MEMORY"

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, _ := strconv.Atoi(val)
		return intValue
	}
	return 0
}

func GetSystemSettingString(settingKey string) string {
	val := os.Getenv(settingKey)
	if val != "" {
		return val
	}
	if settingKey == DATABASE_TYPE {
		return DATABASE_TYPE_SQLLITE
	}
	if settingKey == DATABASE_SQLLITE_FILE_NAME {
		return "./creditflow.db"
	}
	if settingKey == REDIS_ADDR {
		return "localhost:6379"
	}
	if settingKey == REDIS_NAMESPACE {
		return "creditflow"
	}
	if settingKey == SERVER_WEB_PORT {
		return "8080"
	}
	if settingKey == ENGINE_MAX_ACTIVE {
		return "10"
	}
	if settingKey == ENGINE_MAX_ATTEMPTS {
		return "3"
	}
	if settingKey == ENGINE_RETRY_INTERVAL_MIN {
		return "500ms"
	}
	if settingKey == ENGINE_RETRY_INTERVAL_MAX {
		return "10s"
	}
	if settingKey == ENGINE_CHECKPOINT_WRITE_RETRIES {
		return "3"
	}
	if settingKey == STATUS_CACHE_TTL {
		return "2s"
	}
	return ""
}
