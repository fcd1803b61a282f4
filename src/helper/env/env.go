package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetString extracts a String value from the given environment variable
func GetString(name string, defaultValue ...string) string {
	value := os.Getenv(name)
	if value == "" && len(defaultValue) > 0 {
		value = defaultValue[0]
	}
	return value
}

// MustGetString extracts a String value from the given environment variable
// It panics if the environment variable is not present
func MustGetString(name string) string {
	value := os.Getenv(name)
	if value == "" {
		panic(fmt.Sprintf("%s can't be empty", name))
	}
	return value
}

// GetInt extracts an Int value from the given environment variable
func GetInt(name string, defaultValue ...int) int {
	value, err := strconv.Atoi(os.Getenv(name))
	if err != nil && len(defaultValue) > 0 {
		value = defaultValue[0]
	}
	return value
}

// GetBool extracts a Bool value from the given environment variable
func GetBool(name string, defaultValue ...bool) bool {
	value, err := strconv.ParseBool(os.Getenv(name))
	if err != nil && len(defaultValue) > 0 {
		value = defaultValue[0]
	}
	return value
}

// GetSeconds lê um inteiro em segundos (ex.: REDIS_DEFAULT_TTL_SECONDS).
func GetSeconds(name string, defaultSeconds int) time.Duration {
	return time.Duration(GetInt(name, defaultSeconds)) * time.Second
}

// GetList separa o valor por vírgula, ignorando itens vazios.
func GetList(name string, defaultValue ...string) []string {
	var list []string
	for _, item := range strings.Split(GetString(name, defaultValue...), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
