// Copyright 2025 The Watchdog Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/watchdogproxy/relay/internal/execlock"
	"github.com/watchdogproxy/relay/internal/matcher"
)

// Config aggregates configuration for the relay. Each section is owned
// by the package it configures.
type Config struct {
	AWS      AWSConfig      `mapstructure:"aws"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Content  ContentConfig  `mapstructure:"content"`
	Tables   TablesConfig   `mapstructure:"tables"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Mutex    MutexConfig    `mapstructure:"mutex"`
	HitRate  HitRateConfig  `mapstructure:"hitrate"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Email    EmailConfig    `mapstructure:"email"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
}

type AWSConfig struct {
	Region  string `mapstructure:"region"`
	RoleARN string `mapstructure:"role_arn"`
}

type QueueConfig struct {
	Name string `mapstructure:"name"`
	// AckOnSuccess deletes a message after its item processed cleanly;
	// when false every message is left to visibility-timeout expiry.
	AckOnSuccess bool `mapstructure:"ack_on_success"`
}

type ContentConfig struct {
	Bucket string `mapstructure:"bucket"`
	// SignTTL bounds the presigned URLs handed to the upstream matcher
	// and embedded in notification emails.
	SignTTL time.Duration `mapstructure:"sign_ttl"`
}

type TablesConfig struct {
	Config  string `mapstructure:"config"`
	HitRate string `mapstructure:"hitrate"`
}

type PollerConfig struct {
	RateLimit         int           `mapstructure:"rate_limit"`
	RatePeriod        time.Duration `mapstructure:"rate_period"`
	MaxLongPoll       time.Duration `mapstructure:"max_long_poll"`
	PollDelay         time.Duration `mapstructure:"poll_delay"`
	RunBudget         time.Duration `mapstructure:"run_budget"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxWorkers        int           `mapstructure:"max_workers"`
}

type MutexConfig struct {
	Key string        `mapstructure:"key"`
	TTL time.Duration `mapstructure:"ttl"`
}

type HitRateConfig struct {
	Limit   int           `mapstructure:"limit"`
	Period  time.Duration `mapstructure:"period"`
	Wait    time.Duration `mapstructure:"wait"`
	MaxWait time.Duration `mapstructure:"max_wait"`
}

type UpstreamConfig struct {
	ServiceURL  string `mapstructure:"service_url"`
	ServiceKey  string `mapstructure:"service_key"`
	SuccessCode int    `mapstructure:"success_code"`
}

type EmailConfig struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
	// Expires bounds the signed URLs embedded in notification emails.
	Expires time.Duration `mapstructure:"expires"`
}

type MetricsConfig struct {
	URL        string        `mapstructure:"url"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

type HealthConfig struct {
	Port int `mapstructure:"port"`
}

func defaults() *Config {
	return &Config{
		Queue: QueueConfig{
			AckOnSuccess: true,
		},
		Content: ContentConfig{
			SignTTL: 15 * time.Minute,
		},
		Poller: PollerConfig{
			RateLimit:         5,
			RatePeriod:        time.Second,
			MaxLongPoll:       20 * time.Second,
			PollDelay:         100 * time.Millisecond,
			RunBudget:         time.Minute,
			HeartbeatInterval: 10 * time.Second,
			MaxWorkers:        10,
		},
		Mutex: MutexConfig{
			Key: execlock.DefaultKey,
			TTL: 50 * time.Second,
		},
		HitRate: HitRateConfig{
			Limit:   5,
			Period:  time.Second,
			Wait:    2 * time.Second,
			MaxWait: 2 * time.Minute,
		},
		Upstream: UpstreamConfig{
			SuccessCode: matcher.DefaultSuccessCode,
		},
		Email: EmailConfig{
			Expires: time.Hour,
		},
		Metrics: MetricsConfig{
			PingPeriod: time.Minute,
		},
		Health: HealthConfig{
			Port: 8090,
		},
	}
}

// Load reads configuration from an optional config file and from
// environment variables. Env keys use the prefix "WATCHDOG" with dots
// replaced by underscores, e.g. "poller.rate_limit" becomes
// "WATCHDOG_POLLER_RATE_LIMIT".
func Load() (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("WATCHDOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
